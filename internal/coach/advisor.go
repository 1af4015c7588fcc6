package coach

import "fmt"

// EfficiencyUnit tags which ratio the efficiency value expresses
type EfficiencyUnit int

const (
	DistancePerBeat EfficiencyUnit = iota // pace-per-heartbeat (running)
	PowerPerBeat                          // watts-per-heartbeat (cycling)
)

func (u EfficiencyUnit) String() string {
	switch u {
	case PowerPerBeat:
		return "W/beat"
	case DistancePerBeat:
		return "min·km⁻¹/beat"
	default:
		return "unknown"
	}
}

// Cadence reference values. The modality is inferred from the presence of a
// power signal: a running session has no power source in this setup.
const (
	RunningCadenceTarget uint = 176 // steps per minute
	CyclingCadenceTarget uint = 90  // revolutions per minute

	// CadenceBand is the dead zone around the target within which no
	// corrective prompt is issued. Without it the prompt flickers between
	// "increase" and "optimal" on every step.
	CadenceBand = 5
)

// DefaultPaceSecPerKm is the assumed pace when no pace source is configured.
// 300 s/km = 5:00 min/km.
const DefaultPaceSecPerKm uint = 300

// Advisory is the derived output recomputed on every metric update.
// It is never stored on its own; the Sample Recorder captures it into
// an EffSample when triggered.
type Advisory struct {
	Efficiency    float64
	Unit          EfficiencyUnit
	CadenceTarget uint
	CadenceDiff   int // target − current, signed
	Prompt        string
}

// Recompute derives the advisory from a snapshot. Pure: the same snapshot
// always yields the identical advisory.
func Recompute(s Snapshot) Advisory {
	cycling := s.PowerWatts > 0

	var advisory Advisory
	if s.HeartRateBpm > 0 {
		if cycling {
			advisory.Efficiency = float64(s.PowerWatts) / float64(s.HeartRateBpm)
			advisory.Unit = PowerPerBeat
		} else {
			paceMinPerKm := float64(s.PaceSecPerKm) / 60.0
			advisory.Efficiency = paceMinPerKm / float64(s.HeartRateBpm)
			advisory.Unit = DistancePerBeat
		}
	}
	// No heartbeat signal: efficiency stays 0.0 and the unit stays
	// DistancePerBeat regardless of power.

	if cycling {
		advisory.CadenceTarget = CyclingCadenceTarget
	} else {
		advisory.CadenceTarget = RunningCadenceTarget
	}

	advisory.CadenceDiff = int(advisory.CadenceTarget) - int(s.CadenceSpm)

	switch {
	case advisory.CadenceDiff >= CadenceBand:
		advisory.Prompt = fmt.Sprintf("Increase cadence (+%d) → target %d", advisory.CadenceDiff, advisory.CadenceTarget)
	case advisory.CadenceDiff <= -CadenceBand:
		advisory.Prompt = fmt.Sprintf("Decrease cadence (-%d) → target %d", -advisory.CadenceDiff, advisory.CadenceTarget)
	default:
		advisory.Prompt = fmt.Sprintf("Cadence optimal (%d)", advisory.CadenceTarget)
	}

	return advisory
}
