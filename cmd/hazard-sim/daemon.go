package main

import (
	"context"
	"encoding/json"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/mqtt"
	"github.com/sweeney/hazard-sim/internal/publish"
	"github.com/sweeney/hazard-sim/internal/status"
)

// bridge is what the daemon needs from an MQTT connection.
type bridge interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// daemon owns the decay and publish ticks. runLoop is its only goroutine.
type daemon struct {
	store   *hazard.Store
	sched   *publish.Scheduler
	bridge  bridge
	tracker *status.Tracker
	console *console.Console
	log     *logger.Logger

	connected bool
}

// runLoop ticks the simulation until a signal arrives or ctx is done, then
// stops publishing and announces SHUTDOWN.
func (d *daemon) runLoop(ctx context.Context, now func() time.Time, decayTick, publishTick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			d.shutdown(now(), "CONTEXT_DONE")
			return nil

		case s := <-sig:
			d.log.Infow("shutdown_signal", "signal", s.String())
			d.shutdown(now(), signalName(s))
			return nil

		case <-decayTick:
			d.decay(now())

		case <-publishTick:
			d.publish(now())
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// startup announces the simulator on the system topic. The event is retained
// and queued by the bridge until the first connect.
func (d *daemon) startup(at time.Time) {
	d.syncMQTT()
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := d.bridge.PublishSystem(event); err != nil {
		d.log.Warnw("startup_publish_failed", "err", err)
		return
	}
	d.log.Infow("startup_published")
}

func (d *daemon) shutdown(at time.Time, reason string) {
	d.sched.Stop()
	d.syncMQTT()
	d.console.System("Shutting down (" + reason + ")")

	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      mqtt.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
	}
	if err := d.bridge.PublishSystem(event); err != nil {
		d.log.Warnw("shutdown_publish_failed", "err", err)
		return
	}
	d.log.Infow("shutdown_published", "reason", reason)
}

func (d *daemon) decay(at time.Time) {
	res := d.store.Decay(at)
	d.tracker.IncDecayTicks()
	if res.SmokeBefore != res.SmokeAfter || len(res.Extinguished) > 0 {
		d.log.Debugw("decay",
			"ventilated", res.Ventilated,
			"smoke_before", res.SmokeBefore,
			"smoke_after", res.SmokeAfter,
			"extinguished", len(res.Extinguished),
			"alarm_cleared", res.AlarmCleared,
		)
	}
	d.syncMQTT()
}

func (d *daemon) publish(at time.Time) {
	d.syncMQTT()
	var published time.Time
	if d.sched.Tick(at) == publish.Published {
		published = at
		if p, ok := d.sched.LastPayload(); ok {
			d.console.JSON("Published sensor data", p, console.TypeSensor)
		}
	}
	d.tracker.SetPublish(d.sched.Counts(), published)
}

// syncMQTT copies connection health into the tracker and logs transitions.
func (d *daemon) syncMQTT() {
	connected := d.bridge.IsConnected()
	lastErr := d.bridge.LastError()
	d.tracker.SetMQTT(connected, lastErr)
	if connected == d.connected {
		return
	}
	d.connected = connected
	if connected {
		d.console.Success("Connected to MQTT broker")
		d.log.Infow("mqtt_up")
		return
	}
	msg := "Disconnected from MQTT broker"
	if lastErr != "" {
		msg += ": " + lastErr
	}
	d.console.Error(msg)
	d.log.Warnw("mqtt_down", "err", lastErr)
}

// bridgeHandler routes inbound MQTT messages. Called on paho goroutines.
type bridgeHandler struct {
	interp  *command.Interpreter
	tracker *status.Tracker
	console *console.Console
	log     *logger.Logger
}

func (h *bridgeHandler) HandleCommand(cmd command.Command) {
	h.console.JSON("Received command", cmd, console.TypeMQTT)
	res := h.interp.Apply(cmd)
	h.log.Infow("command_applied", "command", cmd.String(), "outcome", res.Outcome, "reason", res.Reason)
}

func (h *bridgeHandler) HandleTelemetry(raw json.RawMessage) {
	h.tracker.SetTelemetry(raw)
	h.console.JSON("Monitor data", raw, console.TypeMQTT)
	h.log.Debugw("telemetry_received", "bytes", len(raw))
}
