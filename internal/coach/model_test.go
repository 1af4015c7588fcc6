package coach

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestNewModel_NilLogger(t *testing.T) {
	assert.Panics(t, func() {
		NewModel(300, nil)
	})
}

func TestNewModel_DefaultPace(t *testing.T) {
	model := NewModel(0, testLogger())
	assert.Equal(t, DefaultPaceSecPerKm, model.Snapshot().PaceSecPerKm)

	model = NewModel(270, testLogger())
	assert.Equal(t, uint(270), model.Snapshot().PaceSecPerKm)
}

func TestModel_InitialAdvisory(t *testing.T) {
	model := NewModel(300, testLogger())

	// The advisory is defined from the start, before any sensor update
	advisory := model.Advisory()
	assert.Equal(t, 0.0, advisory.Efficiency)
	assert.Equal(t, RunningCadenceTarget, advisory.CadenceTarget)
	assert.Equal(t, "Increase cadence (+176) → target 176", advisory.Prompt)
}

func TestModel_Apply(t *testing.T) {
	model := NewModel(300, testLogger())

	snapshot, advisory := model.Apply(sensor.MetricHeartRate, 140)
	assert.Equal(t, uint(140), snapshot.HeartRateBpm)
	assert.InDelta(t, 5.0/140.0, advisory.Efficiency, 1e-9)
	assert.Equal(t, DistancePerBeat, advisory.Unit)

	snapshot, advisory = model.Apply(sensor.MetricPower, 200)
	assert.Equal(t, uint(200), snapshot.PowerWatts)
	assert.InDelta(t, 200.0/140.0, advisory.Efficiency, 1e-9)
	assert.Equal(t, PowerPerBeat, advisory.Unit)

	snapshot, advisory = model.Apply(sensor.MetricCadence, 80)
	assert.Equal(t, uint(80), snapshot.CadenceSpm)
	assert.Equal(t, "Increase cadence (+10) → target 90", advisory.Prompt)

	// Each Apply touches exactly one field; the others survive
	final := model.Snapshot()
	assert.Equal(t, uint(140), final.HeartRateBpm)
	assert.Equal(t, uint(200), final.PowerWatts)
	assert.Equal(t, uint(80), final.CadenceSpm)
	assert.Equal(t, uint(300), final.PaceSecPerKm)
}

func TestModel_ApplyPace(t *testing.T) {
	model := NewModel(300, testLogger())
	model.Apply(sensor.MetricHeartRate, 150)

	_, advisory := model.Apply(sensor.MetricPace, 240)
	assert.InDelta(t, 4.0/150.0, advisory.Efficiency, 1e-9)
}

func TestModel_AdvisoryMatchesSnapshot(t *testing.T) {
	model := NewModel(300, testLogger())
	model.Apply(sensor.MetricHeartRate, 140)
	model.Apply(sensor.MetricPower, 200)
	model.Apply(sensor.MetricCadence, 80)

	// The stored advisory is always the recompute of the stored snapshot
	assert.Equal(t, Recompute(model.Snapshot()), model.Advisory())
}

func TestModel_ListenToAdvisory(t *testing.T) {
	model := NewModel(300, testLogger())

	ch := make(chan Advisory, 10)
	unregister := model.ListenToAdvisory(ch)
	defer unregister()

	model.Apply(sensor.MetricHeartRate, 140)

	select {
	case advisory := <-ch:
		assert.InDelta(t, 5.0/140.0, advisory.Efficiency, 1e-9)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timeout waiting for advisory event")
	}
}

func TestModel_OnAdvisory(t *testing.T) {
	model := NewModel(300, testLogger())

	received := make(chan Advisory, 10)
	unregister := model.OnAdvisory(func(a Advisory) {
		received <- a
	})
	defer unregister()

	model.Apply(sensor.MetricCadence, 80)

	select {
	case advisory := <-received:
		assert.Equal(t, "Increase cadence (+96) → target 176", advisory.Prompt)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timeout waiting for advisory callback")
	}
}

func TestModel_LogTail(t *testing.T) {
	model := NewModel(300, testLogger())

	model.AppendLog("first")
	model.AppendLog("second")
	model.AppendLog("third")

	tail := model.LogTail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, []string{"second", "third"}, tail)

	all := model.LogTail(10)
	assert.Equal(t, []string{"first", "second", "third"}, all)
}
