package mqtt

import (
	"sync"

	"github.com/sweeney/hazard-sim/internal/command"
)

// FakeBridge records published messages for test assertions and lets tests
// inject inbound messages. Safe for concurrent use.
type FakeBridge struct {
	mu sync.Mutex

	topics  Topics
	handler Handler

	// Sensors contains every sensor snapshot that was published.
	Sensors []SensorPayload

	// Commands contains every command that was published.
	Commands []command.Command

	// SystemEvents contains every system event that was published.
	SystemEvents []SystemEvent

	// PublishError, if set, is returned by every Publish method.
	PublishError error

	closed    bool
	connected bool
	lastErr   string
}

// NewFakeBridge creates a disconnected FakeBridge using the default topics.
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{topics: DefaultTopics()}
}

// SetHandler sets the handler Deliver dispatches to.
func (f *FakeBridge) SetHandler(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// SetConnected controls IsConnected. Disconnecting with a non-empty reason
// records it as the last error.
func (f *FakeBridge) SetConnected(connected bool, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
	f.lastErr = reason
}

// Deliver simulates an inbound message on topic.
func (f *FakeBridge) Deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h, topics := f.handler, f.topics
	f.mu.Unlock()
	return Dispatch(topics, topic, payload, h)
}

// PublishSensors records the snapshot.
func (f *FakeBridge) PublishSensors(p SensorPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	if !f.connected {
		return ErrNotConnected
	}
	f.Sensors = append(f.Sensors, p)
	return nil
}

// PublishCommand records the command.
func (f *FakeBridge) PublishCommand(cmd command.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Commands = append(f.Commands, cmd)
	return nil
}

// PublishSystem records the system event.
func (f *FakeBridge) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Close marks the bridge closed and disconnected.
func (f *FakeBridge) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

// Closed reports whether Close was called.
func (f *FakeBridge) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// IsConnected reports the value set by SetConnected.
func (f *FakeBridge) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// LastError reports the reason set by SetConnected.
func (f *FakeBridge) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// SensorCount returns how many snapshots were published.
func (f *FakeBridge) SensorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sensors)
}

// Reset clears recorded messages and errors.
func (f *FakeBridge) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sensors = nil
	f.Commands = nil
	f.SystemEvents = nil
	f.PublishError = nil
	f.closed = false
	f.connected = false
	f.lastErr = ""
}
