package coach

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/storage"
)

// fakeSampleStore records appended samples in memory
type fakeSampleStore struct {
	mu      sync.Mutex
	samples []storage.EffSample
	err     error
}

func (f *fakeSampleStore) Append(sample storage.EffSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeSampleStore) all() []storage.EffSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.EffSample, len(f.samples))
	copy(out, f.samples)
	return out
}

func TestNewRecorder_NilDeps(t *testing.T) {
	model := NewModel(300, testLogger())
	store := &fakeSampleStore{}

	assert.Panics(t, func() { NewRecorder(nil, store, time.Second, testLogger()) })
	assert.Panics(t, func() { NewRecorder(model, nil, time.Second, testLogger()) })
	assert.Panics(t, func() { NewRecorder(model, store, time.Second, nil) })
}

func TestRecorder_Capture(t *testing.T) {
	model := NewModel(300, testLogger())
	store := &fakeSampleStore{}
	recorder := NewRecorder(model, store, time.Second, testLogger())
	defer recorder.Shutdown()

	model.Apply(sensor.MetricHeartRate, 140)
	model.Apply(sensor.MetricPower, 200)
	model.Apply(sensor.MetricCadence, 80)

	now := time.Now()
	err := recorder.Capture(model.Advisory(), model.Snapshot(), now)
	require.NoError(t, err)

	samples := store.all()
	require.Len(t, samples, 1)
	assert.Equal(t, now, samples[0].Time)
	assert.InDelta(t, 200.0/140.0, samples[0].Efficiency, 1e-9)
	assert.Equal(t, 80, samples[0].Rhythm)
	assert.Equal(t, "Increase cadence (+10) → target 90", samples[0].Prompt)
}

func TestRecorder_Capture_NoDeduplication(t *testing.T) {
	model := NewModel(300, testLogger())
	store := &fakeSampleStore{}
	recorder := NewRecorder(model, store, time.Second, testLogger())
	defer recorder.Shutdown()

	// Identical consecutive captures are all appended
	now := time.Now()
	require.NoError(t, recorder.Capture(model.Advisory(), model.Snapshot(), now))
	require.NoError(t, recorder.Capture(model.Advisory(), model.Snapshot(), now))
	require.NoError(t, recorder.Capture(model.Advisory(), model.Snapshot(), now))

	assert.Len(t, store.all(), 3)
}

func TestRecorder_Capture_StoreError(t *testing.T) {
	model := NewModel(300, testLogger())
	store := &fakeSampleStore{err: errors.New("disk full")}
	recorder := NewRecorder(model, store, time.Second, testLogger())
	defer recorder.Shutdown()

	err := recorder.CaptureNow()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRecorder_IntervalCapture(t *testing.T) {
	model := NewModel(300, testLogger())
	model.Apply(sensor.MetricHeartRate, 140)
	store := &fakeSampleStore{}

	recorder := NewRecorder(model, store, 20*time.Millisecond, testLogger())
	defer recorder.Shutdown()

	assert.False(t, recorder.IsCapturing())

	recorder.StartCapture()
	// Wait for the running flag to propagate through the command channel
	require.Eventually(t, recorder.IsCapturing, 500*time.Millisecond, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(store.all()) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	recorder.StopCapture()
	require.Eventually(t, func() bool {
		return !recorder.IsCapturing()
	}, 500*time.Millisecond, 5*time.Millisecond)

	countAfterStop := len(store.all())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, countAfterStop, len(store.all()))
}

func TestRecorder_ShutdownIdempotent(t *testing.T) {
	model := NewModel(300, testLogger())
	recorder := NewRecorder(model, &fakeSampleStore{}, time.Second, testLogger())

	recorder.Shutdown()
	recorder.Shutdown() // second call is a no-op
}
