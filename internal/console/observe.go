package console

import (
	"fmt"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/hazard"
)

// OnNotification turns hazard notifications into console lines. Register it
// with hazard.Store.Subscribe.
func (c *Console) OnNotification(n hazard.Notification) {
	switch n.Type {
	case hazard.NotifyStoveBurners:
		if n.Count > 0 {
			c.Warning(fmt.Sprintf("Stove: %d burner(s) active", n.Count))
		}
	case hazard.NotifyBurningItem:
		c.Error(fmt.Sprintf("ALERT: %d item(s) burning on stove!", n.Count))
	case hazard.NotifyChimney:
		if n.Active {
			c.Error("WARNING: Chimney blocked! Smoke building up...")
		} else {
			c.Success("Chimney cleared")
		}
	case hazard.NotifyEmergency:
		c.Error("EMERGENCY MODE ACTIVATED!")
	case hazard.NotifyHeaterOverload:
		if n.Active {
			c.Error(fmt.Sprintf("Heater overloaded in %s", n.Room))
		}
	case hazard.NotifyExplosion:
		if n.Active {
			c.Error(fmt.Sprintf("Explosion: %s", n.Appliance))
		} else {
			c.Success(fmt.Sprintf("Repaired: %s", n.Appliance))
		}
	case hazard.NotifyExtinguished:
		c.Success(fmt.Sprintf("Burning items extinguished, %d remaining", n.Count))
	case hazard.NotifyAlarm:
		if !n.Active {
			c.Success("All clear: alarm reset")
		}
	case hazard.NotifyReset:
		c.System("Simulation reset")
	}
}

// OnCommand logs an executed command. Register it with
// command.Interpreter.OnCommand.
func (c *Console) OnCommand(r command.Record) {
	room := r.Command.Room
	if room == "" {
		room = "global"
	}
	action := string(r.Command.Action)
	if action == "" {
		action = "UNKNOWN"
	}
	c.Command(fmt.Sprintf("Executing: %s [room: %s] [level: %s]", action, room, r.Command.Level))

	switch r.Result.Outcome {
	case command.Interlocked:
		c.Warning(fmt.Sprintf("Refused %s in %s: %s", action, room, r.Result.Reason))
	case command.Ignored:
		c.Warning(fmt.Sprintf("Ignored %s: %s", action, r.Result.Reason))
	}
}
