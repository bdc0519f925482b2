package hazard

import "time"

// Decay tuning, per one-second tick.
const (
	maxVentDecay      = 0.3
	naturalDecay      = 0.01
	ventilatedSnap    = 1.0
	naturalSnap       = 0.5
	DecayTickInterval = time.Second
)

// DecayResult summarises one decay tick.
type DecayResult struct {
	Ventilated   bool
	Fraction     float64
	SmokeBefore  float64
	SmokeAfter   float64
	Extinguished []BurningItem
	AlarmCleared bool
}

// Decay applies one tick of smoke decay at time now.
//
// With any fan running, the summed fan rates (capped at 0.3) are removed from
// the smoke level and burning items older than ten seconds are put out.
// Without ventilation smoke falls by 1%. Afterwards the alarm clears when no
// smoke, no chimney blockage and no burning items remain.
func (s *Store) Decay(now time.Time) DecayResult {
	var res DecayResult
	_ = s.update(func(st *State) ([]Notification, error) {
		res = decayState(st, now)
		var ns []Notification
		if len(res.Extinguished) > 0 {
			ns = append(ns, Notification{
				Type:  NotifyExtinguished,
				Count: len(st.BurningItems),
			})
		}
		if res.AlarmCleared {
			ns = append(ns, Notification{Type: NotifyAlarm, Active: false})
		}
		return ns, nil
	})
	return res
}

func decayState(st *State, now time.Time) DecayResult {
	res := DecayResult{SmokeBefore: st.SmokeLevel}

	fraction := 0.0
	for _, v := range st.Ventilation {
		if v.Active {
			res.Ventilated = true
			fraction += v.Level.DecayRate()
		}
	}

	if res.Ventilated {
		if fraction > maxVentDecay {
			fraction = maxVentDecay
		}
		res.Fraction = fraction
		st.SmokeLevel *= 1 - fraction
		if st.SmokeLevel < ventilatedSnap {
			st.SmokeLevel = 0
		}

		var kept []BurningItem
		for _, item := range st.BurningItems {
			if now.Sub(item.StartTime) > burnDecayGracePeriod {
				res.Extinguished = append(res.Extinguished, item)
				continue
			}
			kept = append(kept, item)
		}
		st.BurningItems = kept
	} else if st.SmokeLevel > 0 {
		res.Fraction = naturalDecay
		st.SmokeLevel *= 1 - naturalDecay
		if st.SmokeLevel < naturalSnap {
			st.SmokeLevel = 0
		}
	}

	if st.AlarmActive && st.SmokeLevel == 0 && !st.ChimneyBlocked && len(st.BurningItems) == 0 {
		st.AlarmActive = false
		res.AlarmCleared = true
	}

	res.SmokeAfter = st.SmokeLevel
	return res
}
