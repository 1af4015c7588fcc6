package coach

import (
	"log"
	"sync"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/events"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
)

// Snapshot holds the latest known value of each tracked metric for the
// current session. It is not a point-in-time copy unless explicitly captured.
type Snapshot struct {
	HeartRateBpm uint
	CadenceSpm   uint // steps or revolutions per minute, depending on modality
	PowerWatts   uint
	PaceSecPerKm uint // configured, not sensor-derived
}

// Model is the metric fusion state: the single point of mutation for the
// session snapshot. Decoded values arrive one field at a time and each update
// recomputes the advisory inside the same critical section, so no listener
// ever observes a snapshot/advisory pair that disagree.
type Model struct {
	mu       sync.RWMutex
	snapshot Snapshot
	advisory Advisory

	snapshotEvent     *events.ChannelEvent[Snapshot]
	advisoryEvent     *events.ChannelEvent[Advisory]
	advisoryCallbacks *events.CallbackEvent[Advisory]
	logEvent          *events.ChannelEvent[string]

	logLines []string
	logMu    sync.RWMutex

	logger *log.Logger
}

const maxLogLines = 1000

// NewModel creates the session model. paceSecPerKm seeds the pace field;
// pass 0 to use DefaultPaceSecPerKm.
func NewModel(paceSecPerKm uint, logger *log.Logger) *Model {
	if logger == nil {
		panic("Model: logger cannot be nil")
	}
	if paceSecPerKm == 0 {
		paceSecPerKm = DefaultPaceSecPerKm
	}
	m := &Model{
		snapshot:          Snapshot{PaceSecPerKm: paceSecPerKm},
		snapshotEvent:     events.NewChannelEvent[Snapshot](true),
		advisoryEvent:     events.NewChannelEvent[Advisory](true),
		advisoryCallbacks: events.NewCallbackEvent[Advisory](true),
		logEvent:          events.NewChannelEvent[string](false),
		logLines:          make([]string, 0, maxLogLines),
		logger:            logger,
	}
	m.advisory = Recompute(m.snapshot)
	return m
}

// Apply mutates exactly one snapshot field and recomputes the advisory.
// Returns the resulting snapshot and advisory. Pace updates are accepted so
// a future pace source can feed the same path; unknown kinds are ignored.
func (m *Model) Apply(kind sensor.MetricKind, value uint) (Snapshot, Advisory) {
	m.mu.Lock()
	switch kind {
	case sensor.MetricHeartRate:
		m.snapshot.HeartRateBpm = value
	case sensor.MetricCadence:
		m.snapshot.CadenceSpm = value
	case sensor.MetricPower:
		m.snapshot.PowerWatts = value
	case sensor.MetricPace:
		m.snapshot.PaceSecPerKm = value
	default:
		snap, adv := m.snapshot, m.advisory
		m.mu.Unlock()
		m.logger.Printf("Model: ignoring update for unknown metric %q", kind)
		return snap, adv
	}
	m.advisory = Recompute(m.snapshot)
	snap, adv := m.snapshot, m.advisory
	m.mu.Unlock()

	// Notify outside the lock; sends are non-blocking.
	m.snapshotEvent.Notify(snap)
	m.advisoryEvent.Notify(adv)
	m.advisoryCallbacks.Notify(adv)
	return snap, adv
}

// Snapshot returns the current snapshot by value
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Advisory returns the advisory derived from the current snapshot
func (m *Model) Advisory() Advisory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.advisory
}

// ListenToSnapshot registers a channel to receive snapshot updates.
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToSnapshot(ch chan<- Snapshot) func() {
	return m.snapshotEvent.Listen(ch)
}

// ListenToAdvisory registers a channel to receive advisory updates.
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToAdvisory(ch chan<- Advisory) func() {
	return m.advisoryEvent.Listen(ch)
}

// OnAdvisory registers a callback invoked on every advisory recompute.
// Returns a deregistration function that can be called to remove the listener
func (m *Model) OnAdvisory(fn func(Advisory)) func() {
	return m.advisoryCallbacks.Listen(fn)
}

// ListenToLog registers a channel to receive log lines for display
func (m *Model) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

// AppendLog stores a log line for the display tail and notifies listeners
func (m *Model) AppendLog(line string) {
	m.logMu.Lock()
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	m.logMu.Unlock()

	m.logEvent.Notify(line)
}

// LogTail returns the last n stored log lines
func (m *Model) LogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n >= len(m.logLines) {
		result := make([]string, len(m.logLines))
		copy(result, m.logLines)
		return result
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}
