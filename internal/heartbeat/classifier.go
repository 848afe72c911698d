package heartbeat

import "time"

// Band is the power-draw classification of the host's outlet.
type Band string

const (
	BandOff       Band = "off"       // ~0-2W, machine is powered down
	BandStandby   Band = "standby"   // 2-15W, suspended / WoL armed
	BandAmbiguous Band = "ambiguous" // 15-30W, between standby and idle
	BandIdle      Band = "idle"      // 30-60W, running, no load
	BandActive    Band = "active"    // 60W+, running under load
	BandUnknown   Band = "unknown"   // no usable sample
)

// Power thresholds in watts.
const (
	thresholdOff     = 2.0
	thresholdStandby = 15.0
	thresholdIdle    = 30.0
)

// Confidence grades how certain the combined verdict is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Verdict is the transient outcome of one heartbeat cycle. Produced fresh
// each cycle, consumed once by the monitor, never persisted.
type Verdict struct {
	Reachable  bool       `json:"reachable"`
	PowerWatts *float64   `json:"power_watts,omitempty"`
	Band       Band       `json:"band"`
	Confidence Confidence `json:"confidence"`
	ObservedAt time.Time  `json:"observed_at"`
}

// ClassifyPower maps a wattage to its band.
func ClassifyPower(watts float64) Band {
	switch {
	case watts < thresholdOff:
		return BandOff
	case watts < thresholdStandby:
		return BandStandby
	case watts < thresholdIdle:
		return BandAmbiguous
	default:
		if watts < 60.0 {
			return BandIdle
		}
		return BandActive
	}
}

// Combine merges the probe result with the latest power sample into a
// single verdict:
//
//	probe ok                     -> reachable, high
//	probe fail + idle/active     -> unreachable, medium (likely booting or crashed-but-powered)
//	probe fail + off/standby     -> unreachable, high
//	probe fail + ambiguous/none  -> unreachable, low
func Combine(probeOK bool, watts *float64) Verdict {
	v := Verdict{
		Reachable:  probeOK,
		PowerWatts: watts,
		Band:       BandUnknown,
		ObservedAt: time.Now().UTC(),
	}
	if watts != nil {
		v.Band = ClassifyPower(*watts)
	}

	if probeOK {
		v.Confidence = ConfidenceHigh
		return v
	}

	switch v.Band {
	case BandIdle, BandActive:
		v.Confidence = ConfidenceMedium
	case BandOff, BandStandby:
		v.Confidence = ConfidenceHigh
	default:
		v.Confidence = ConfidenceLow
	}
	return v
}
