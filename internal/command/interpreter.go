package command

import (
	"sync"
	"time"

	"github.com/sweeney/hazard-sim/internal/hazard"
)

// Store is the subset of the hazard store the interpreter drives.
type Store interface {
	SetVentilation(room hazard.RoomID, v hazard.VentilationState) error
	DeactivateVentilationIfClear(room hazard.RoomID) (bool, error)
	SetAlertLevel(room hazard.RoomID, level hazard.AlertLevel) error
	SetGlobalAlarm(active, critical bool)
}

// Interpreter applies commands to a Store.
type Interpreter struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	last *Record
	obs  []func(Record)
}

// NewInterpreter creates an interpreter. If now is nil, time.Now is used.
func NewInterpreter(store Store, now func() time.Time) *Interpreter {
	if now == nil {
		now = time.Now
	}
	return &Interpreter{store: store, now: now}
}

// OnCommand registers fn to be called after every applied, ignored or
// interlocked command.
func (i *Interpreter) OnCommand(fn func(Record)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.obs = append(i.obs, fn)
}

// LastCommand returns the most recently received command.
func (i *Interpreter) LastCommand() (Record, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.last == nil {
		return Record{}, false
	}
	return *i.last, true
}

// Apply executes cmd against the store and records it as the last command.
func (i *Interpreter) Apply(cmd Command) Result {
	rec := Record{Command: cmd, ReceivedAt: i.now(), Result: i.apply(cmd)}

	i.mu.Lock()
	i.last = &rec
	obs := make([]func(Record), len(i.obs))
	copy(obs, i.obs)
	i.mu.Unlock()

	for _, fn := range obs {
		fn(rec)
	}
	return rec.Result
}

func ignored(reason string) Result {
	return Result{Outcome: Ignored, Reason: reason}
}

// room validates the room of a room-scoped command. A non-empty reason means
// the command must be ignored.
func room(cmd Command) (id hazard.RoomID, reason string) {
	if cmd.Room == "" {
		return "", "missing room"
	}
	id = hazard.RoomID(cmd.Room)
	if _, ok := hazard.LookupRoom(id); !ok {
		return "", "unknown room " + cmd.Room
	}
	return id, ""
}

func (i *Interpreter) apply(cmd Command) Result {
	switch cmd.Action {
	case ActionActivateVent:
		id, reason := room(cmd)
		if reason != "" {
			return ignored(reason)
		}
		level := hazard.VentHigh
		if cmd.Level != "" {
			l, ok := hazard.ParseVentLevel(cmd.Level)
			if !ok {
				return ignored("unknown ventilation level " + cmd.Level)
			}
			level = l
		}
		if err := i.store.SetVentilation(id, hazard.VentilationState{Active: true, Level: level}); err != nil {
			return ignored(err.Error())
		}
		return Result{Outcome: Applied}

	case ActionDeactivateVent:
		id, reason := room(cmd)
		if reason != "" {
			return ignored(reason)
		}
		switched, err := i.store.DeactivateVentilationIfClear(id)
		if err != nil {
			return ignored(err.Error())
		}
		if !switched {
			return Result{Outcome: Interlocked, Reason: "smoke still present"}
		}
		return Result{Outcome: Applied}

	case ActionSetAlert:
		id, reason := room(cmd)
		if reason != "" {
			return ignored(reason)
		}
		level := hazard.AlertNormal
		if cmd.Level != "" {
			l, ok := hazard.ParseAlertLevel(cmd.Level)
			if !ok {
				return ignored("unknown alert level " + cmd.Level)
			}
			level = l
		}
		if err := i.store.SetAlertLevel(id, level); err != nil {
			return ignored(err.Error())
		}
		return Result{Outcome: Applied}

	case ActionGlobalAlarm:
		i.store.SetGlobalAlarm(cmd.Active == nil || *cmd.Active, hazard.AlertLevel(cmd.Level) == hazard.AlertCritical)
		return Result{Outcome: Applied}
	}

	return ignored("unknown action " + string(cmd.Action))
}
