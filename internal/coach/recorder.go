package coach

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/go_func_utils"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/storage"
)

// SampleStore is the persistence capability the recorder appends to
type SampleStore interface {
	Append(sample storage.EffSample) error
}

// recorderCommand represents commands sent to the capture goroutine
type recorderCommand int

const (
	cmdStartCapture recorderCommand = iota
	cmdStopCapture
)

// Recorder captures point-in-time efficiency snapshots into durable storage.
// Capture itself is stateless: it supports per-update, timer, and explicit
// user triggers, and never deduplicates. The optional interval loop is just
// a built-in timer trigger.
type Recorder struct {
	model  *Model
	store  SampleStore
	logger *log.Logger

	interval time.Duration

	mu      sync.RWMutex
	running bool

	cmdChan      chan recorderCommand
	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewRecorder creates a Recorder and starts its (idle) capture goroutine.
// interval is the tick period used once StartCapture is called.
func NewRecorder(model *Model, store SampleStore, interval time.Duration, logger *log.Logger) *Recorder {
	if model == nil {
		panic("Recorder: model cannot be nil")
	}
	if store == nil {
		panic("Recorder: store cannot be nil")
	}
	if logger == nil {
		panic("Recorder: logger cannot be nil")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	r := &Recorder{
		model:    model,
		store:    store,
		logger:   logger,
		interval: interval,
		cmdChan:  make(chan recorderCommand, 1),
		doneChan: make(chan struct{}),
	}

	r.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { r.runCaptureLoop() })

	return r
}

// Capture appends one sample built from the given advisory and snapshot.
// Persistence failures propagate to the caller.
func (r *Recorder) Capture(advisory Advisory, snapshot Snapshot, now time.Time) error {
	sample := storage.EffSample{
		Time:       now,
		Efficiency: advisory.Efficiency,
		Rhythm:     int(snapshot.CadenceSpm),
		Prompt:     advisory.Prompt,
	}
	if err := r.store.Append(sample); err != nil {
		return fmt.Errorf("failed to capture sample: %w", err)
	}
	return nil
}

// CaptureNow captures the model's current advisory and snapshot
func (r *Recorder) CaptureNow() error {
	return r.Capture(r.model.Advisory(), r.model.Snapshot(), time.Now())
}

// StartCapture begins interval-triggered capture
func (r *Recorder) StartCapture() {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if running {
		r.logger.Printf("Recorder: capture already running")
		return
	}
	r.cmdChan <- cmdStartCapture
}

// StopCapture halts interval-triggered capture. Explicit CaptureNow calls
// still work while stopped.
func (r *Recorder) StopCapture() {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		r.logger.Printf("Recorder: capture not running")
		return
	}
	r.cmdChan <- cmdStopCapture
}

// IsCapturing reports whether the interval loop is active
func (r *Recorder) IsCapturing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Shutdown stops the capture goroutine and waits for it to finish.
// Safe to call multiple times - only the first call has effect
func (r *Recorder) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.logger.Printf("Recorder: shutting down")
		close(r.doneChan)
		r.wg.Wait()
		r.logger.Printf("Recorder: shutdown complete")
	})
}

func (r *Recorder) setRunning(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

// runCaptureLoop is the goroutine that owns the interval ticker
func (r *Recorder) runCaptureLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	ticker.Stop() // starts idle, armed by cmdStartCapture

	for {
		select {
		case <-r.doneChan:
			ticker.Stop()
			return

		case cmd := <-r.cmdChan:
			switch cmd {
			case cmdStartCapture:
				r.setRunning(true)
				ticker.Reset(r.interval)
				r.logger.Printf("Recorder: interval capture started (every %v)", r.interval)
			case cmdStopCapture:
				r.setRunning(false)
				ticker.Stop()
				r.logger.Printf("Recorder: interval capture stopped")
			}

		case <-ticker.C:
			// A failed tick is logged and the loop keeps going; the next
			// tick gets a fresh chance. The error is not swallowed on the
			// explicit CaptureNow path.
			if err := r.CaptureNow(); err != nil {
				r.logger.Printf("Recorder: %v", err)
			}
		}
	}
}
