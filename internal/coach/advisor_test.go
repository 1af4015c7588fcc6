package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecompute_CyclingEfficiency(t *testing.T) {
	advisory := Recompute(Snapshot{
		HeartRateBpm: 140,
		PowerWatts:   200,
		CadenceSpm:   80,
		PaceSecPerKm: DefaultPaceSecPerKm,
	})

	assert.InDelta(t, 200.0/140.0, advisory.Efficiency, 1e-9)
	assert.Equal(t, PowerPerBeat, advisory.Unit)
	assert.Equal(t, CyclingCadenceTarget, advisory.CadenceTarget)
	assert.Equal(t, 10, advisory.CadenceDiff)
	assert.Equal(t, "Increase cadence (+10) → target 90", advisory.Prompt)
}

func TestRecompute_RunningEfficiency(t *testing.T) {
	advisory := Recompute(Snapshot{
		HeartRateBpm: 150,
		PowerWatts:   0,
		CadenceSpm:   178,
		PaceSecPerKm: 300,
	})

	// 300 s/km = 5.0 min/km, divided by 150 bpm
	assert.InDelta(t, 5.0/150.0, advisory.Efficiency, 1e-9)
	assert.Equal(t, DistancePerBeat, advisory.Unit)
	assert.Equal(t, RunningCadenceTarget, advisory.CadenceTarget)
	assert.Equal(t, -2, advisory.CadenceDiff)
	assert.Equal(t, "Cadence optimal (176)", advisory.Prompt)
}

func TestRecompute_NoHeartRate(t *testing.T) {
	// Without a heartbeat signal the ratio is meaningless: efficiency stays
	// zero even when power is present, and the unit stays the zero value.
	advisory := Recompute(Snapshot{
		HeartRateBpm: 0,
		PowerWatts:   250,
		CadenceSpm:   90,
		PaceSecPerKm: DefaultPaceSecPerKm,
	})

	assert.Equal(t, 0.0, advisory.Efficiency)
	assert.Equal(t, DistancePerBeat, advisory.Unit)

	// Cadence guidance still works without heart rate
	assert.Equal(t, CyclingCadenceTarget, advisory.CadenceTarget)
	assert.Equal(t, "Cadence optimal (90)", advisory.Prompt)
}

func TestRecompute_CadenceBand(t *testing.T) {
	base := Snapshot{HeartRateBpm: 140, PowerWatts: 200, PaceSecPerKm: DefaultPaceSecPerKm}

	// Exactly at the band edge the prompt flips to corrective
	tests := []struct {
		cadence uint
		prompt  string
	}{
		{85, "Increase cadence (+5) → target 90"},
		{86, "Cadence optimal (90)"},
		{90, "Cadence optimal (90)"},
		{94, "Cadence optimal (90)"},
		{95, "Decrease cadence (-5) → target 90"},
		{110, "Decrease cadence (-20) → target 90"},
		{0, "Increase cadence (+90) → target 90"},
	}
	for _, tc := range tests {
		s := base
		s.CadenceSpm = tc.cadence
		assert.Equal(t, tc.prompt, Recompute(s).Prompt, "cadence=%d", tc.cadence)
	}
}

func TestRecompute_RunningCadencePrompts(t *testing.T) {
	advisory := Recompute(Snapshot{
		HeartRateBpm: 150,
		CadenceSpm:   160,
		PaceSecPerKm: 300,
	})
	assert.Equal(t, "Increase cadence (+16) → target 176", advisory.Prompt)

	advisory = Recompute(Snapshot{
		HeartRateBpm: 150,
		CadenceSpm:   190,
		PaceSecPerKm: 300,
	})
	assert.Equal(t, "Decrease cadence (-14) → target 176", advisory.Prompt)
}

func TestRecompute_Idempotent(t *testing.T) {
	s := Snapshot{HeartRateBpm: 142, PowerWatts: 210, CadenceSpm: 84, PaceSecPerKm: 280}
	first := Recompute(s)
	second := Recompute(s)
	assert.Equal(t, first, second)
}

func TestEfficiencyUnit_String(t *testing.T) {
	assert.Equal(t, "W/beat", PowerPerBeat.String())
	assert.Equal(t, "min·km⁻¹/beat", DistancePerBeat.String())
	assert.Equal(t, "unknown", EfficiencyUnit(99).String())
}
