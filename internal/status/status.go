// Package status provides a thread-safe status tracker for the hazard-sim daemon.
// It is read by HTTP handlers and by the MQTT system events.
package status

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/publish"
)

// DefaultTelemetryTTL is how long an external reading stays on display.
const DefaultTelemetryTTL = 60 * time.Second

const telemetryKey = "latest"

// Config contains daemon configuration for display.
type Config struct {
	Broker            string
	ClientID          string
	SensorsTopic      string
	CommandsTopic     string
	MonitorTopic      string
	HTTPAddr          string
	DecayIntervalMs   int64
	PublishIntervalMs int64
}

// Telemetry is the last message seen on the external telemetry topic.
type Telemetry struct {
	Raw        json.RawMessage
	ReceivedAt time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTLastError string
	LastCommand   *command.Record
	Publish       publish.Counts
	LastPublish   time.Time
	DecayTicks    int
	Telemetry     *Telemetry
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. External telemetry
// lives in a TTL cache so a silent controller drops off the display.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	telemetry *cache.Cache
	now       func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// A ttl of zero uses DefaultTelemetryTTL.
func NewTracker(startTime time.Time, cfg Config, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTelemetryTTL
	}
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		telemetry: cache.New(ttl, 2*ttl),
		now:       time.Now,
	}
}

// SetMQTT sets the MQTT connection status and last transport error.
func (t *Tracker) SetMQTT(connected bool, lastErr string) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTLastError = lastErr
	t.mu.Unlock()
}

// SetLastCommand records the most recent inbound command.
func (t *Tracker) SetLastCommand(rec command.Record) {
	t.mu.Lock()
	t.snap.LastCommand = &rec
	t.mu.Unlock()
}

// SetPublish records scheduler counts. at is zero when nothing was published.
func (t *Tracker) SetPublish(counts publish.Counts, at time.Time) {
	t.mu.Lock()
	t.snap.Publish = counts
	if !at.IsZero() {
		t.snap.LastPublish = at
	}
	t.mu.Unlock()
}

// IncDecayTicks counts one decay tick.
func (t *Tracker) IncDecayTicks() {
	t.mu.Lock()
	t.snap.DecayTicks++
	t.mu.Unlock()
}

// SetTelemetry stores an external reading verbatim.
func (t *Tracker) SetTelemetry(raw json.RawMessage) {
	t.telemetry.SetDefault(telemetryKey, Telemetry{Raw: raw, ReceivedAt: t.now()})
}

// Telemetry returns the last external reading if it has not expired.
func (t *Tracker) Telemetry() (Telemetry, bool) {
	v, ok := t.telemetry.Get(telemetryKey)
	if !ok {
		return Telemetry{}, false
	}
	return v.(Telemetry), true
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastCommand != nil {
		rec := *s.LastCommand
		s.LastCommand = &rec
	}
	if tel, ok := t.Telemetry(); ok {
		s.Telemetry = &tel
	}
	s.Now = t.now()
	return s
}
