package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/logger"
)

// Options configures a RealBridge.
type Options struct {
	Broker            string
	ClientID          string // generated when empty
	Topics            Topics
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	PublishTimeout    time.Duration
	Quiesce           time.Duration
	PendingCapacity   int
}

// DefaultOptions returns the public-broker settings.
func DefaultOptions() Options {
	return Options{
		Broker:            DefaultBroker,
		Topics:            DefaultTopics(),
		ConnectTimeout:    5 * time.Second,
		ReconnectInterval: 3 * time.Second,
		PublishTimeout:    5 * time.Second,
		Quiesce:           250 * time.Millisecond,
		PendingCapacity:   100,
	}
}

// NewClientID returns a randomized "simulation-xxxxxxxx" client identifier.
func NewClientID() string {
	return "simulation-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// RealBridge publishes to and subscribes on an actual MQTT broker.
type RealBridge struct {
	client  paho.Client
	opts    Options
	handler Handler
	log     *logger.Logger

	mu            sync.Mutex
	connected     bool
	everConnected bool
	lastErr       string
	pending       *pendingQueue
}

// clientOptions builds the paho options. The broker connection is retried and
// re-established at a fixed interval; the last will marks the simulator
// offline on the system topic.
func clientOptions(o Options) *paho.ClientOptions {
	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})

	return paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(o.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(o.ReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(o.ReconnectInterval).
		SetBinaryWill(o.Topics.System, will, 1, true)
}

// NewRealBridge creates a bridge and starts connecting in the background.
// It never blocks on the broker; use IsConnected to observe the connection.
func NewRealBridge(o Options, h Handler, log *logger.Logger) *RealBridge {
	if o.ClientID == "" {
		o.ClientID = NewClientID()
	}

	b := &RealBridge{
		opts:    o,
		handler: h,
		log:     log,
		pending: newPendingQueue(o.PendingCapacity),
	}

	popts := clientOptions(o).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost).
		SetReconnectingHandler(b.onReconnecting)
	b.client = paho.NewClient(popts)

	log.Infow("mqtt_connecting", "broker", o.Broker, "client_id", o.ClientID)
	token := b.client.Connect()
	go func() {
		// With connect-retry enabled this only completes once connected or
		// after Close.
		token.Wait()
		if err := token.Error(); err != nil {
			b.setError(err)
			log.Warnw("mqtt_connect_failed", "err", err)
		}
	}()

	return b
}

func (b *RealBridge) setError(err error) {
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}

func (b *RealBridge) onConnect(c paho.Client) {
	b.mu.Lock()
	b.connected = true
	b.lastErr = ""
	reconnect := b.everConnected
	b.everConnected = true
	b.mu.Unlock()

	b.log.Infow("mqtt_connected", "broker", b.opts.Broker, "reconnect", reconnect)

	filters := map[string]byte{
		b.opts.Topics.Commands: 0,
		b.opts.Topics.Monitor:  0,
	}
	token := c.SubscribeMultiple(filters, b.onMessage)
	if !token.WaitTimeout(b.opts.PublishTimeout) {
		b.setError(fmt.Errorf("subscribe timeout"))
		b.log.Warnw("mqtt_subscribe_timeout", "topics", filters)
	} else if err := token.Error(); err != nil {
		b.setError(err)
		b.log.Warnw("mqtt_subscribe_failed", "err", err)
	}

	if reconnect {
		if err := b.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventReconnected}); err != nil {
			b.log.Warnw("mqtt_publish_reconnected_failed", "err", err)
		}
	}
	b.flushPending()
}

func (b *RealBridge) onConnectionLost(_ paho.Client, err error) {
	b.mu.Lock()
	b.connected = false
	b.lastErr = err.Error()
	b.mu.Unlock()
	b.log.Warnw("mqtt_connection_lost", "err", err)
}

func (b *RealBridge) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	b.log.Infow("mqtt_reconnecting", "interval", b.opts.ReconnectInterval)
}

func (b *RealBridge) onMessage(_ paho.Client, m paho.Message) {
	if err := Dispatch(b.opts.Topics, m.Topic(), m.Payload(), b.handler); err != nil {
		b.log.Warnw("mqtt_message_dropped", "topic", m.Topic(), "err", err)
	}
}

func (b *RealBridge) flushPending() {
	b.mu.Lock()
	msgs, dropped := b.pending.drain()
	b.mu.Unlock()

	if dropped > 0 {
		b.log.Warnw("mqtt_pending_overflow", "dropped", dropped)
	}
	for _, m := range msgs {
		if err := b.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			b.log.Warnw("mqtt_replay_failed", "topic", m.topic, "err", err)
		}
	}
	if len(msgs) > 0 {
		b.log.Infow("mqtt_replayed", "count", len(msgs))
	}
}

func (b *RealBridge) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := b.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(b.opts.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// publishOrQueue publishes immediately when connected and otherwise holds the
// message for replay on the next connect.
func (b *RealBridge) publishOrQueue(msg pendingMsg) error {
	b.mu.Lock()
	if !b.connected {
		if b.pending.push(msg) {
			b.log.Debugw("mqtt_pending_full", "capacity", b.opts.PendingCapacity)
		}
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return b.publish(msg.topic, msg.qos, msg.retained, msg.payload)
}

// PublishSensors sends a sensor snapshot. Snapshots are never queued.
func (b *RealBridge) PublishSensors(p SensorPayload) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	payload, err := FormatSensorPayload(p)
	if err != nil {
		return fmt.Errorf("format sensor payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return b.publish(b.opts.Topics.Sensors, 0, false, payload)
}

// PublishCommand sends a command onto the command topic.
func (b *RealBridge) PublishCommand(cmd command.Command) error {
	payload, err := cmd.Marshal()
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	return b.publishOrQueue(pendingMsg{topic: b.opts.Topics.Commands, payload: payload})
}

// PublishSystem sends a system lifecycle event.
func (b *RealBridge) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so shutdown and startup markers arrive
	return b.publishOrQueue(pendingMsg{topic: b.opts.Topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (b *RealBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// LastError returns the most recent transport error, or "" once reconnected.
func (b *RealBridge) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close disconnects from the broker, allowing in-flight work to finish
// within the quiesce period.
func (b *RealBridge) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.client.Disconnect(uint(b.opts.Quiesce / time.Millisecond))
	return nil
}
