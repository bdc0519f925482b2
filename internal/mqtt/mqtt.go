// Package mqtt bridges the simulator to an MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/hazard"
)

// DefaultBroker is the public broker the external controller listens on.
const DefaultBroker = "wss://broker.hivemq.com:8884/mqtt"

// Default topics.
const (
	TopicSensors  = "smart-corridor/sensors"
	TopicCommands = "smart-corridor/commands"
	TopicMonitor  = "smart-corridor/monitor"
	TopicSystem   = "smart-corridor/simulation/system"
)

// System lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventReconnected = "RECONNECTED"
)

var (
	ErrNotConnected = errors.New("not connected to broker")
	ErrUnknownTopic = errors.New("unknown topic")
)

// Topics groups the bridge's topic names.
type Topics struct {
	Sensors  string
	Commands string
	Monitor  string
	System   string
}

// DefaultTopics returns the smart-corridor topic set.
func DefaultTopics() Topics {
	return Topics{
		Sensors:  TopicSensors,
		Commands: TopicCommands,
		Monitor:  TopicMonitor,
		System:   TopicSystem,
	}
}

// Publisher publishes to the broker.
type Publisher interface {
	// PublishSensors sends an aggregated sensor snapshot.
	// Returns error if publishing fails (should not crash the process).
	PublishSensors(p SensorPayload) error

	// PublishCommand sends a command onto the command topic.
	PublishCommand(cmd command.Command) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports connection health.
type ConnectionStatus interface {
	IsConnected() bool
	LastError() string
}

// Handler receives decoded inbound messages. Methods are called from the
// MQTT client's goroutines.
type Handler interface {
	HandleCommand(cmd command.Command)
	HandleTelemetry(raw json.RawMessage)
}

// SensorPayload is the outbound telemetry message.
type SensorPayload struct {
	Smoke     float64 `json:"smoke"`
	CO2       float64 `json:"co2"`
	PM25      float64 `json:"pm25"`
	Temp      float64 `json:"temp"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
}

// NewSensorPayload stamps an aggregate with the publish time.
func NewSensorPayload(agg hazard.AggregatedSensors, at time.Time) SensorPayload {
	return SensorPayload{
		Smoke:     agg.Smoke,
		CO2:       agg.CO2,
		PM25:      agg.PM25,
		Temp:      agg.Temp,
		Status:    string(agg.Status),
		Timestamp: at.UnixMilli(),
	}
}

// FormatSensorPayload creates the JSON payload for a sensor snapshot.
func FormatSensorPayload(p SensorPayload) ([]byte, error) {
	return json.Marshal(p)
}

// SystemEvent is a simulator lifecycle event (startup, shutdown, reconnect).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// SystemPayload is the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// Events carrying a full status snapshot use RawPayload as-is.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Dispatch routes an inbound message to h. Malformed payloads return an
// error and never reach h.
func Dispatch(topics Topics, topic string, payload []byte, h Handler) error {
	switch topic {
	case topics.Commands:
		cmd, err := command.ParseCommand(payload)
		if err != nil {
			return err
		}
		h.HandleCommand(cmd)
		return nil
	case topics.Monitor:
		if !json.Valid(payload) {
			return fmt.Errorf("%w: telemetry is not valid JSON", command.ErrMalformed)
		}
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		h.HandleTelemetry(raw)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}
