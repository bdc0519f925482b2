package hazard

// NotificationType names a hazard state change.
type NotificationType string

const (
	NotifyStoveBurners   NotificationType = "STOVE_BURNERS"
	NotifyHeater         NotificationType = "HEATER"
	NotifyHeaterOverload NotificationType = "HEATER_OVERLOAD"
	NotifyExplosion      NotificationType = "EXPLOSION"
	NotifyBurningItem    NotificationType = "BURNING_ITEM"
	NotifyExtinguished   NotificationType = "EXTINGUISHED"
	NotifyHeld           NotificationType = "HELD_ITEM"
	NotifyChimney        NotificationType = "CHIMNEY"
	NotifySmoke          NotificationType = "SMOKE"
	NotifyAlarm          NotificationType = "ALARM"
	NotifyVentilation    NotificationType = "VENTILATION"
	NotifyAlertLevel     NotificationType = "ALERT_LEVEL"
	NotifyEmergency      NotificationType = "EMERGENCY"
	NotifyReset          NotificationType = "RESET"
)

// Notification describes one change. Only the fields relevant to Type are
// set; State is the snapshot taken right after the mutation.
type Notification struct {
	Type      NotificationType
	Room      RoomID // empty for building-wide changes
	Appliance ApplianceID
	Item      string
	Active    bool // new on/off value of whatever changed
	Count     int  // burners lit, burning items, heater level
	Previous  int
	Level     float64
	Vent      VentLevel
	Alert     AlertLevel
	State     State
}
