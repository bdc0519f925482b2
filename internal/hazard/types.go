// Package hazard owns the simulated house's hazard state and derives sensor
// readings from it.
// This package has NO external dependencies (no MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters or the store clock.
package hazard

import (
	"errors"
	"time"
)

var (
	ErrUnknownRoom      = errors.New("unknown room")
	ErrUnknownAppliance = errors.New("unknown appliance")
	ErrNoHeater         = errors.New("room has no heater")
)

// RoomID identifies a room in the static registry.
type RoomID string

const (
	RoomKitchen       RoomID = "kitchen"
	RoomLiving        RoomID = "living-room"
	RoomDining        RoomID = "dining-room"
	RoomLaundry       RoomID = "laundry-room"
	RoomMasterBedroom RoomID = "master-bedroom"
	RoomGuestBedroom  RoomID = "guest-bedroom"
	RoomChildren      RoomID = "children-room"
	RoomOffice        RoomID = "home-office"
	RoomBathroom      RoomID = "bathroom"
)

// Room is a static registry entry. Floor 0 is the ground floor, -1 the basement.
type Room struct {
	ID        RoomID `json:"id"`
	Name      string `json:"name"`
	Floor     int    `json:"floor"`
	HasHeater bool   `json:"has_heater"`
}

// Rooms is the registry, in display order. Not mutated at runtime.
var Rooms = []Room{
	{ID: RoomKitchen, Name: "Kitchen", Floor: 0},
	{ID: RoomLiving, Name: "Living Room", Floor: 0, HasHeater: true},
	{ID: RoomDining, Name: "Dining Room", Floor: 0, HasHeater: true},
	{ID: RoomLaundry, Name: "Laundry Room", Floor: -1},
	{ID: RoomMasterBedroom, Name: "Master Bedroom", Floor: 1, HasHeater: true},
	{ID: RoomGuestBedroom, Name: "Guest Bedroom", Floor: 1, HasHeater: true},
	{ID: RoomChildren, Name: "Children's Room", Floor: 1, HasHeater: true},
	{ID: RoomOffice, Name: "Home Office", Floor: 1, HasHeater: true},
	{ID: RoomBathroom, Name: "Bathroom", Floor: 1},
}

// LookupRoom returns the registry entry for id.
func LookupRoom(id RoomID) (Room, bool) {
	for _, r := range Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// ApplianceID identifies an appliance that can explode.
type ApplianceID string

const (
	ApplianceTVLiving ApplianceID = "tv-living"
	ApplianceTVMaster ApplianceID = "tv-master"
	ApplianceStove    ApplianceID = "stove"
	ApplianceFridge   ApplianceID = "fridge"
)

// Appliances lists every appliance with an explosion state.
var Appliances = []ApplianceID{ApplianceTVLiving, ApplianceTVMaster, ApplianceStove, ApplianceFridge}

func isAppliance(id ApplianceID) bool {
	for _, a := range Appliances {
		if a == id {
			return true
		}
	}
	return false
}

// HeaterState is a room heater. Overloaded implies On and Level == 3.
type HeaterState struct {
	On         bool `json:"on"`
	Level      int  `json:"level"`
	Overloaded bool `json:"overloaded"`
}

// DefaultHeater is the state after repair or reset.
var DefaultHeater = HeaterState{On: false, Level: 1, Overloaded: false}

// ExplosionState tracks an appliance. Smoking always equals Exploded.
type ExplosionState struct {
	Exploded bool `json:"exploded"`
	Smoking  bool `json:"smoking"`
}

// BurningItem is an object set alight on the stove.
type BurningItem struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
}

// VentLevel is a ventilation fan speed.
type VentLevel string

const (
	VentOff  VentLevel = "OFF"
	VentLow  VentLevel = "LOW"
	VentMed  VentLevel = "MED"
	VentHigh VentLevel = "HIGH"
)

// DecayRate returns the fractional smoke reduction per second contributed by
// a fan at this level.
func (l VentLevel) DecayRate() float64 {
	switch l {
	case VentLow:
		return 0.02
	case VentMed:
		return 0.05
	case VentHigh:
		return 0.1
	default:
		return 0
	}
}

// ParseVentLevel accepts the four canonical names plus "MEDIUM".
func ParseVentLevel(s string) (VentLevel, bool) {
	switch s {
	case "OFF":
		return VentOff, true
	case "LOW":
		return VentLow, true
	case "MED", "MEDIUM":
		return VentMed, true
	case "HIGH":
		return VentHigh, true
	}
	return "", false
}

// VentilationState is a room's fan.
type VentilationState struct {
	Active bool      `json:"active"`
	Level  VentLevel `json:"level"`
}

// AlertLevel is the per-room alert assigned by the external controller.
type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertWarning  AlertLevel = "warning"
	AlertDanger   AlertLevel = "danger"
	AlertCritical AlertLevel = "critical"
)

// ParseAlertLevel validates an alert level name.
func ParseAlertLevel(s string) (AlertLevel, bool) {
	switch l := AlertLevel(s); l {
	case AlertNormal, AlertWarning, AlertDanger, AlertCritical:
		return l, true
	}
	return "", false
}

// BurnerCount is the number of stove burners.
const BurnerCount = 4

// State is a point-in-time copy of all hazard state.
// It is a value type, safe to use after the store lock is released.
type State struct {
	Burners        [BurnerCount]bool              `json:"stove_burners"`
	Heaters        map[RoomID]HeaterState         `json:"heaters"`
	Explosions     map[ApplianceID]ExplosionState `json:"explosions"`
	BurningItems   []BurningItem                  `json:"burning_items"`
	Ventilation    map[RoomID]VentilationState    `json:"ventilation"`
	AlertLevels    map[RoomID]AlertLevel          `json:"alert_levels"`
	SmokeLevel     float64                        `json:"smoke_level"`
	ChimneyBlocked bool                           `json:"chimney_blocked"`
	AlarmActive    bool                           `json:"alarm_active"`
	EmergencyMode  bool                           `json:"emergency_mode"`
	HeldItem       string                         `json:"held_item,omitempty"`
}

// ActiveBurners returns how many burners are on.
func (s State) ActiveBurners() int {
	n := 0
	for _, b := range s.Burners {
		if b {
			n++
		}
	}
	return n
}

// AnyVentilationActive reports whether any room fan is running.
func (s State) AnyVentilationActive() bool {
	for _, v := range s.Ventilation {
		if v.Active {
			return true
		}
	}
	return false
}

// InitialState returns the defaults every reset restores.
func InitialState() State {
	st := State{
		Heaters:     make(map[RoomID]HeaterState),
		Explosions:  make(map[ApplianceID]ExplosionState),
		Ventilation: make(map[RoomID]VentilationState),
		AlertLevels: make(map[RoomID]AlertLevel),
	}
	for _, r := range Rooms {
		if r.HasHeater {
			st.Heaters[r.ID] = DefaultHeater
		}
		st.Ventilation[r.ID] = VentilationState{Active: false, Level: VentOff}
		st.AlertLevels[r.ID] = AlertNormal
	}
	for _, a := range Appliances {
		st.Explosions[a] = ExplosionState{}
	}
	return st
}

func (s State) clone() State {
	c := s
	c.Heaters = make(map[RoomID]HeaterState, len(s.Heaters))
	for k, v := range s.Heaters {
		c.Heaters[k] = v
	}
	c.Explosions = make(map[ApplianceID]ExplosionState, len(s.Explosions))
	for k, v := range s.Explosions {
		c.Explosions[k] = v
	}
	c.Ventilation = make(map[RoomID]VentilationState, len(s.Ventilation))
	for k, v := range s.Ventilation {
		c.Ventilation[k] = v
	}
	c.AlertLevels = make(map[RoomID]AlertLevel, len(s.AlertLevels))
	for k, v := range s.AlertLevels {
		c.AlertLevels[k] = v
	}
	if s.BurningItems != nil {
		c.BurningItems = append([]BurningItem(nil), s.BurningItems...)
	}
	return c
}

// SensorReading is one room's derived sensor values.
type SensorReading struct {
	Smoke float64 `json:"smoke"`
	CO2   float64 `json:"co2"`
	PM25  float64 `json:"pm25"`
	Temp  float64 `json:"temp"`
}

// Status is the overall air-quality verdict.
type Status string

const (
	StatusSafe     Status = "SAFE"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// AggregatedSensors is the element-wise maximum over all rooms plus status.
type AggregatedSensors struct {
	Smoke  float64 `json:"smoke"`
	CO2    float64 `json:"co2"`
	PM25   float64 `json:"pm25"`
	Temp   float64 `json:"temp"`
	Status Status  `json:"status"`
}

// RoomStatus is one room's state together with its derived reading.
type RoomStatus struct {
	Room        Room             `json:"room"`
	Reading     SensorReading    `json:"reading"`
	Heater      *HeaterState     `json:"heater,omitempty"`
	Ventilation VentilationState `json:"ventilation"`
	AlertLevel  AlertLevel       `json:"alert_level"`
}

// Position is a point in scene coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
