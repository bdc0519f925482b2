package hazard

import "math"

// Sensor ceilings.
const (
	MaxSmoke = 100.0
	MaxPM25  = 200.0
	MaxCO2   = 2000.0
	MaxTemp  = 60.0
)

// Baseline is the clean-air reading every room starts from.
var Baseline = SensorReading{Smoke: 0, CO2: 400, PM25: 15, Temp: 22}

// Emergency floors.
const (
	emergencySmokeFloor = 60.0
	emergencyCO2Floor   = 800.0
)

// Status thresholds, applied to the worst room.
const (
	criticalSmoke = 50.0
	warningSmoke  = 30.0
	warningPM25   = 80.0
)

var (
	perBurner      = SensorReading{Smoke: 5, Temp: 3, CO2: 50}
	perBurningItem = SensorReading{Smoke: 40, PM25: 30, CO2: 150}
	stoveExplosion = SensorReading{Smoke: 45, PM25: 60, CO2: 250, Temp: 15}
	fridgeBurst    = SensorReading{Smoke: 20, PM25: 25, CO2: 80}
	tvExplosion    = SensorReading{Smoke: 30, PM25: 40, CO2: 120, Temp: 8}
	chimneyBackup  = SensorReading{Smoke: 35, PM25: 45, CO2: 300, Temp: 2}
	heaterOverload = SensorReading{Smoke: 50, Temp: 25, PM25: 40}
)

// heaterTempPerLevel is the temperature rise of a normally running heater.
const heaterTempPerLevel = 4.0

func (r *SensorReading) add(d SensorReading, times float64) {
	r.Smoke += d.Smoke * times
	r.CO2 += d.CO2 * times
	r.PM25 += d.PM25 * times
	r.Temp += d.Temp * times
}

func (r *SensorReading) clamp() {
	r.Smoke = clamp(r.Smoke, 0, MaxSmoke)
	r.CO2 = clamp(r.CO2, Baseline.CO2, MaxCO2)
	r.PM25 = clamp(r.PM25, 0, MaxPM25)
	r.Temp = clamp(r.Temp, Baseline.Temp, MaxTemp)
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Derive computes every room's reading from st. Pure; st is not modified.
func Derive(st State) map[RoomID]SensorReading {
	out := make(map[RoomID]SensorReading, len(Rooms))
	for _, room := range Rooms {
		out[room.ID] = DeriveRoom(st, room.ID)
	}
	return out
}

// DeriveRoom computes a single room's reading. Contributions are applied in
// a fixed order: room-specific sources, heater, global smoke, emergency
// floors, then ceilings.
func DeriveRoom(st State, id RoomID) SensorReading {
	r := Baseline

	switch id {
	case RoomKitchen:
		r.add(perBurner, float64(st.ActiveBurners()))
		r.add(perBurningItem, float64(len(st.BurningItems)))
		if st.Explosions[ApplianceStove].Exploded {
			r.add(stoveExplosion, 1)
		}
		if st.Explosions[ApplianceFridge].Exploded {
			r.add(fridgeBurst, 1)
		}
	case RoomLiving:
		if st.ChimneyBlocked {
			r.add(chimneyBackup, 1)
		}
		if st.Explosions[ApplianceTVLiving].Exploded {
			r.add(tvExplosion, 1)
		}
	case RoomMasterBedroom:
		// Shares the chimney breast with the living room.
		if st.ChimneyBlocked {
			r.add(chimneyBackup, 1)
		}
		if st.Explosions[ApplianceTVMaster].Exploded {
			r.add(tvExplosion, 1)
		}
	}

	if h, ok := st.Heaters[id]; ok {
		if h.Overloaded {
			r.add(heaterOverload, 1)
		} else if h.On {
			r.Temp += float64(h.Level) * heaterTempPerLevel
		}
	}

	r.Smoke += st.SmokeLevel

	if st.EmergencyMode {
		if r.Smoke < emergencySmokeFloor {
			r.Smoke = emergencySmokeFloor
		}
		if r.CO2 < emergencyCO2Floor {
			r.CO2 = emergencyCO2Floor
		}
	}

	r.clamp()
	return r
}

// Aggregate folds per-room readings into the element-wise maximum and
// classifies the result.
func Aggregate(readings map[RoomID]SensorReading) AggregatedSensors {
	agg := AggregatedSensors{
		Smoke: Baseline.Smoke,
		CO2:   Baseline.CO2,
		PM25:  Baseline.PM25,
		Temp:  Baseline.Temp,
	}
	for _, r := range readings {
		if r.Smoke > agg.Smoke {
			agg.Smoke = r.Smoke
		}
		if r.CO2 > agg.CO2 {
			agg.CO2 = r.CO2
		}
		if r.PM25 > agg.PM25 {
			agg.PM25 = r.PM25
		}
		if r.Temp > agg.Temp {
			agg.Temp = r.Temp
		}
	}
	agg.Status = classify(agg)
	return agg
}

// classify works on the aggregate: the per-field maximum exceeds a threshold
// exactly when some room does.
func classify(agg AggregatedSensors) Status {
	switch {
	case agg.Smoke > criticalSmoke:
		return StatusCritical
	case agg.Smoke > warningSmoke || agg.PM25 > warningPM25:
		return StatusWarning
	default:
		return StatusSafe
	}
}
