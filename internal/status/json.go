package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/hazard"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                    `json:"event,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	StartTime     string                    `json:"start_time"`
	Timestamp     string                    `json:"timestamp"`
	MQTT          MQTTStatus                `json:"mqtt"`
	Publish       PublishJSON               `json:"publish"`
	DecayTicks    int                       `json:"decay_ticks"`
	Sensors       *hazard.AggregatedSensors `json:"sensors,omitempty"`
	LastCommand   *command.Record           `json:"last_command,omitempty"`
	Telemetry     *TelemetryJSON            `json:"external_telemetry,omitempty"`
	Config        ConfigJSON                `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
	LastError string `json:"last_error,omitempty"`
}

// PublishJSON reports telemetry publishing.
type PublishJSON struct {
	Published   int    `json:"published"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	LastPublish string `json:"last_publish,omitempty"`
}

// TelemetryJSON is the last external reading.
type TelemetryJSON struct {
	ReceivedAt string          `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker            string `json:"broker"`
	SensorsTopic      string `json:"sensors_topic"`
	CommandsTopic     string `json:"commands_topic"`
	MonitorTopic      string `json:"monitor_topic"`
	HTTPAddr          string `json:"http_addr"`
	DecayIntervalMs   int64  `json:"decay_interval_ms"`
	PublishIntervalMs int64  `json:"publish_interval_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			ClientID:  snap.Config.ClientID,
			LastError: snap.MQTTLastError,
		},
		Publish: PublishJSON{
			Published: snap.Publish.Published,
			Skipped:   snap.Publish.Skipped,
			Failed:    snap.Publish.Failed,
		},
		DecayTicks:  snap.DecayTicks,
		LastCommand: snap.LastCommand,
		Config: ConfigJSON{
			Broker:            snap.Config.Broker,
			SensorsTopic:      snap.Config.SensorsTopic,
			CommandsTopic:     snap.Config.CommandsTopic,
			MonitorTopic:      snap.Config.MonitorTopic,
			HTTPAddr:          snap.Config.HTTPAddr,
			DecayIntervalMs:   snap.Config.DecayIntervalMs,
			PublishIntervalMs: snap.Config.PublishIntervalMs,
		},
	}
	if !snap.LastPublish.IsZero() {
		inner.Publish.LastPublish = snap.LastPublish.UTC().Format(time.RFC3339)
	}
	if snap.Telemetry != nil {
		inner.Telemetry = &TelemetryJSON{
			ReceivedAt: snap.Telemetry.ReceivedAt.UTC().Format(time.RFC3339),
			Data:       snap.Telemetry.Raw,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
// sensors may be nil.
func FormatJSON(snap Snapshot, sensors *hazard.AggregatedSensors) []byte {
	inner := buildInner(snap)
	inner.Sensors = sensors

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
