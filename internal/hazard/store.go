package hazard

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Smoke-level side effects of hazard triggers.
const (
	overloadSmoke        = 30.0
	explosionSmoke       = 40.0
	chimneyBlockSmoke    = 50.0
	chimneyClearSmoke    = 30.0
	emergencySmokeLevel  = 80.0
	maxHeaterLevel       = 3
	minHeaterLevel       = 1
	burnRadius           = 1.5
	burnDecayGracePeriod = 10 * time.Second
)

// StovePosition is the centre of the hob in scene coordinates.
var StovePosition = Position{X: -17.5, Y: 1.0, Z: -5.5}

// FireproofItems never ignite on the stove.
var FireproofItems = []string{"kettle", "pot", "pan", "mug"}

// Store is the single owner of hazard state. Every method is atomic with
// respect to every other method. Notifications are delivered synchronously
// to subscribers after the mutation, outside the lock.
type Store struct {
	mu  sync.Mutex
	st  State
	now func() time.Time

	subMu   sync.Mutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn func(Notification)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to timestamp burning items.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store holding InitialState.
func NewStore(opts ...Option) *Store {
	s := &Store{
		st:  InitialState(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for every notification. The returned func removes it.
func (s *Store) Subscribe(fn func(Notification)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// update runs fn under the lock and then delivers whatever it emitted.
func (s *Store) update(fn func(st *State) ([]Notification, error)) error {
	s.mu.Lock()
	ns, err := fn(&s.st)
	var snap State
	if len(ns) > 0 {
		snap = s.st.clone()
	}
	s.mu.Unlock()

	if err != nil || len(ns) == 0 {
		return err
	}

	s.subMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subMu.Unlock()

	for _, n := range ns {
		n.State = snap
		for _, sub := range subs {
			sub.fn(n)
		}
	}
	return nil
}

func addSmoke(st *State, delta float64) {
	st.SmokeLevel = clamp(st.SmokeLevel+delta, 0, MaxSmoke)
}

func roomExists(id RoomID) error {
	if _, ok := LookupRoom(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	return nil
}

func heaterRoom(st *State, id RoomID) (HeaterState, error) {
	if err := roomExists(id); err != nil {
		return HeaterState{}, err
	}
	h, ok := st.Heaters[id]
	if !ok {
		return HeaterState{}, fmt.Errorf("%w: %q", ErrNoHeater, id)
	}
	return h, nil
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Readings derives every room's sensor reading from the current state.
func (s *Store) Readings() map[RoomID]SensorReading {
	return Derive(s.State())
}

// Aggregate derives the building-wide aggregate from the current state.
func (s *Store) Aggregate() AggregatedSensors {
	return Aggregate(s.Readings())
}

// SmokeLevel returns the global smoke accumulator.
func (s *Store) SmokeLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SmokeLevel
}

// AnyBurnerOn reports whether at least one stove burner is lit.
func (s *Store) AnyBurnerOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ActiveBurners() > 0
}

// Room returns one room's state and reading.
func (s *Store) Room(id RoomID) (RoomStatus, error) {
	r, ok := LookupRoom(id)
	if !ok {
		return RoomStatus{}, fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	st := s.State()
	rs := RoomStatus{
		Room:        r,
		Reading:     DeriveRoom(st, id),
		Ventilation: st.Ventilation[id],
		AlertLevel:  st.AlertLevels[id],
	}
	if h, ok := st.Heaters[id]; ok {
		rs.Heater = &h
	}
	return rs, nil
}

// SetStoveBurners replaces the burner array.
func (s *Store) SetStoveBurners(burners [BurnerCount]bool) {
	_ = s.update(func(st *State) ([]Notification, error) {
		if st.Burners == burners {
			return nil, nil
		}
		prev := st.ActiveBurners()
		st.Burners = burners
		return []Notification{{
			Type:     NotifyStoveBurners,
			Count:    st.ActiveBurners(),
			Previous: prev,
			Active:   st.ActiveBurners() > 0,
		}}, nil
	})
}

// SetHeater sets a heater's power and level. The level is clamped to 1..3.
// Anything other than on at level 3 clears an overload.
func (s *Store) SetHeater(room RoomID, on bool, level int) error {
	return s.update(func(st *State) ([]Notification, error) {
		h, err := heaterRoom(st, room)
		if err != nil {
			return nil, err
		}
		if level < minHeaterLevel {
			level = minHeaterLevel
		}
		if level > maxHeaterLevel {
			level = maxHeaterLevel
		}
		h.On = on
		h.Level = level
		if !on || level != maxHeaterLevel {
			h.Overloaded = false
		}
		st.Heaters[room] = h
		return []Notification{{Type: NotifyHeater, Room: room, Active: on, Count: level}}, nil
	})
}

func applyOverload(st *State, room RoomID, h HeaterState, overloaded bool) []Notification {
	if h.Overloaded == overloaded {
		return nil
	}
	if overloaded {
		st.Heaters[room] = HeaterState{On: true, Level: maxHeaterLevel, Overloaded: true}
		st.AlarmActive = true
		addSmoke(st, overloadSmoke)
	} else {
		st.Heaters[room] = DefaultHeater
	}
	return []Notification{{Type: NotifyHeaterOverload, Room: room, Active: overloaded}}
}

// SetOverloaded forces a heater into or out of overload. Overloading raises
// the alarm and adds smoke; clearing returns the heater to DefaultHeater.
// Repeating the current state is a no-op.
func (s *Store) SetOverloaded(room RoomID, overloaded bool) error {
	return s.update(func(st *State) ([]Notification, error) {
		h, err := heaterRoom(st, room)
		if err != nil {
			return nil, err
		}
		return applyOverload(st, room, h, overloaded), nil
	})
}

// OverloadHeater toggles overload: calling it twice is a full on/off cycle.
func (s *Store) OverloadHeater(room RoomID) error {
	return s.update(func(st *State) ([]Notification, error) {
		h, err := heaterRoom(st, room)
		if err != nil {
			return nil, err
		}
		return applyOverload(st, room, h, !h.Overloaded), nil
	})
}

// RepairHeater returns a heater to DefaultHeater.
func (s *Store) RepairHeater(room RoomID) error {
	return s.update(func(st *State) ([]Notification, error) {
		if _, err := heaterRoom(st, room); err != nil {
			return nil, err
		}
		st.Heaters[room] = DefaultHeater
		return []Notification{{Type: NotifyHeater, Room: room, Active: false, Count: DefaultHeater.Level}}, nil
	})
}

func applyExplosion(st *State, id ApplianceID, exploded bool) []Notification {
	if st.Explosions[id].Exploded == exploded {
		return nil
	}
	st.Explosions[id] = ExplosionState{Exploded: exploded, Smoking: exploded}
	if exploded {
		st.AlarmActive = true
		addSmoke(st, explosionSmoke)
	}
	return []Notification{{Type: NotifyExplosion, Appliance: id, Active: exploded}}
}

// SetExploded sets or clears an appliance explosion. Exploding raises the
// alarm and adds smoke. Repeating the current state is a no-op.
func (s *Store) SetExploded(id ApplianceID, exploded bool) error {
	return s.update(func(st *State) ([]Notification, error) {
		if !isAppliance(id) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAppliance, id)
		}
		return applyExplosion(st, id, exploded), nil
	})
}

// TriggerExplosion toggles an appliance explosion.
func (s *Store) TriggerExplosion(id ApplianceID) error {
	return s.update(func(st *State) ([]Notification, error) {
		if !isAppliance(id) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAppliance, id)
		}
		return applyExplosion(st, id, !st.Explosions[id].Exploded), nil
	})
}

// RepairAppliance clears an explosion.
func (s *Store) RepairAppliance(id ApplianceID) error {
	return s.SetExploded(id, false)
}

// AddBurningItem appends a burning item stamped with the store clock and
// raises the alarm. Names are not deduplicated.
func (s *Store) AddBurningItem(name string) {
	_ = s.update(func(st *State) ([]Notification, error) {
		return addBurning(st, name, s.now()), nil
	})
}

func addBurning(st *State, name string, at time.Time) []Notification {
	st.BurningItems = append(st.BurningItems, BurningItem{Name: name, StartTime: at})
	st.AlarmActive = true
	return []Notification{{Type: NotifyBurningItem, Item: name, Count: len(st.BurningItems), Active: true}}
}

// IsFireproof reports whether item is one of FireproofItems.
func IsFireproof(item string) bool {
	for _, f := range FireproofItems {
		if f == item {
			return true
		}
	}
	return false
}

func distance(a, b Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ExposeToStove reports an object resting at pos. It ignites, and is added as
// a burning item, when it is flammable, not in hand, within the burn radius of
// the stove and a burner is lit. Callers report each object instance once.
func (s *Store) ExposeToStove(item string, pos Position) bool {
	ignited := false
	_ = s.update(func(st *State) ([]Notification, error) {
		if IsFireproof(item) || st.HeldItem == item {
			return nil, nil
		}
		if st.ActiveBurners() == 0 || distance(pos, StovePosition) >= burnRadius {
			return nil, nil
		}
		ignited = true
		return addBurning(st, item, s.now()), nil
	})
	return ignited
}

// PickUp takes item into the player's hand. Only one item can be held.
func (s *Store) PickUp(item string) bool {
	ok := false
	_ = s.update(func(st *State) ([]Notification, error) {
		if st.HeldItem != "" {
			return nil, nil
		}
		st.HeldItem = item
		ok = true
		return []Notification{{Type: NotifyHeld, Item: item, Active: true}}, nil
	})
	return ok
}

// Drop releases item if it is the one held.
func (s *Store) Drop(item string) bool {
	ok := false
	_ = s.update(func(st *State) ([]Notification, error) {
		if st.HeldItem == "" || st.HeldItem != item {
			return nil, nil
		}
		st.HeldItem = ""
		ok = true
		return []Notification{{Type: NotifyHeld, Item: item, Active: false}}, nil
	})
	return ok
}

// HeldItem returns the item in hand, or "".
func (s *Store) HeldItem() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.HeldItem
}

// SetChimneyBlocked blocks or clears the chimney. Blocking adds 50 smoke and
// raises the alarm; clearing removes 30. Repeating the current state changes
// nothing.
func (s *Store) SetChimneyBlocked(blocked bool) {
	_ = s.update(func(st *State) ([]Notification, error) {
		if st.ChimneyBlocked == blocked {
			return nil, nil
		}
		st.ChimneyBlocked = blocked
		if blocked {
			st.AlarmActive = true
			addSmoke(st, chimneyBlockSmoke)
		} else {
			addSmoke(st, -chimneyClearSmoke)
		}
		return []Notification{{Type: NotifyChimney, Active: blocked}}, nil
	})
}

// SetSmokeLevel overwrites the global smoke accumulator, clamped to 0..100.
func (s *Store) SetSmokeLevel(level float64) {
	_ = s.update(func(st *State) ([]Notification, error) {
		st.SmokeLevel = clamp(level, 0, MaxSmoke)
		return []Notification{{Type: NotifySmoke, Level: st.SmokeLevel}}, nil
	})
}

// SetAlarm sets the alarm flag directly.
func (s *Store) SetAlarm(active bool) {
	_ = s.update(func(st *State) ([]Notification, error) {
		if st.AlarmActive == active {
			return nil, nil
		}
		st.AlarmActive = active
		return []Notification{{Type: NotifyAlarm, Active: active}}, nil
	})
}

// SetVentilation overwrites a room's fan state.
func (s *Store) SetVentilation(room RoomID, v VentilationState) error {
	return s.update(func(st *State) ([]Notification, error) {
		if err := roomExists(room); err != nil {
			return nil, err
		}
		st.Ventilation[room] = v
		return []Notification{{Type: NotifyVentilation, Room: room, Active: v.Active, Vent: v.Level}}, nil
	})
}

// DeactivateVentilationIfClear switches a room's fan off only when no smoke
// remains. The smoke check and the switch happen under one lock.
func (s *Store) DeactivateVentilationIfClear(room RoomID) (bool, error) {
	switched := false
	err := s.update(func(st *State) ([]Notification, error) {
		if err := roomExists(room); err != nil {
			return nil, err
		}
		if st.SmokeLevel > 0 {
			return nil, nil
		}
		st.Ventilation[room] = VentilationState{Active: false, Level: VentOff}
		switched = true
		return []Notification{{Type: NotifyVentilation, Room: room, Active: false, Vent: VentOff}}, nil
	})
	return switched, err
}

// SetAlertLevel overwrites one room's alert level.
func (s *Store) SetAlertLevel(room RoomID, level AlertLevel) error {
	return s.update(func(st *State) ([]Notification, error) {
		if err := roomExists(room); err != nil {
			return nil, err
		}
		st.AlertLevels[room] = level
		return []Notification{{Type: NotifyAlertLevel, Room: room, Alert: level}}, nil
	})
}

func setAllAlerts(st *State, level AlertLevel) Notification {
	for id := range st.AlertLevels {
		st.AlertLevels[id] = level
	}
	return Notification{Type: NotifyAlertLevel, Alert: level}
}

// SetAllAlertLevels overwrites every room's alert level.
func (s *Store) SetAllAlertLevels(level AlertLevel) {
	_ = s.update(func(st *State) ([]Notification, error) {
		return []Notification{setAllAlerts(st, level)}, nil
	})
}

// SetGlobalAlarm sets the alarm flag and, when critical is true, raises
// every room to AlertCritical in the same mutation.
func (s *Store) SetGlobalAlarm(active, critical bool) {
	_ = s.update(func(st *State) ([]Notification, error) {
		var ns []Notification
		if st.AlarmActive != active {
			st.AlarmActive = active
			ns = append(ns, Notification{Type: NotifyAlarm, Active: active})
		}
		if critical {
			ns = append(ns, setAllAlerts(st, AlertCritical))
		}
		return ns, nil
	})
}

// TriggerEmergency puts the whole house into emergency. Only
// ResetSimulation leaves it.
func (s *Store) TriggerEmergency() {
	_ = s.update(func(st *State) ([]Notification, error) {
		st.EmergencyMode = true
		st.AlarmActive = true
		st.ChimneyBlocked = true
		st.SmokeLevel = emergencySmokeLevel
		setAllAlerts(st, AlertCritical)
		return []Notification{{Type: NotifyEmergency, Active: true}}, nil
	})
}

// ResetSimulation restores InitialState.
func (s *Store) ResetSimulation() {
	_ = s.update(func(st *State) ([]Notification, error) {
		*st = InitialState()
		return []Notification{{Type: NotifyReset}}, nil
	})
}
