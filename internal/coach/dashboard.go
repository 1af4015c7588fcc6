package coach

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/go_func_utils"
)

// Dashboard is the terminal UI: live metrics and the cadence prompt on the
// left, the log tail on the right.
type Dashboard struct {
	logger   *log.Logger
	app      *tview.Application
	model    *Model
	handler  *SessionHandler
	recorder *Recorder

	mainFlex      *tview.Flex
	metricsPanel  *tview.TextView
	advisoryPanel *tview.TextView
	logView       *tview.TextView
	tabWidgets    []*tview.Box

	ctx        context.Context
	cancelFunc context.CancelFunc
	waitGroup  sync.WaitGroup
}

// NewDashboardArg holds the arguments for creating a Dashboard
type NewDashboardArg struct {
	App      *tview.Application
	Model    *Model
	Handler  *SessionHandler
	Recorder *Recorder
	Logger   *log.Logger
}

// NewDashboard creates the dashboard and wires it to the model's events
func NewDashboard(args NewDashboardArg) *Dashboard {
	if args.Logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if args.App == nil {
		panic("Dashboard: app cannot be nil")
	}
	if args.Model == nil {
		panic("Dashboard: model cannot be nil")
	}
	if args.Handler == nil {
		panic("Dashboard: handler cannot be nil")
	}
	if args.Recorder == nil {
		panic("Dashboard: recorder cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		logger:     args.Logger,
		app:        args.App,
		model:      args.Model,
		handler:    args.Handler,
		recorder:   args.Recorder,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	d.initWidgets()
	d.setupKeyboardHandlers()
	d.setupEventListeners()

	d.waitGroup.Add(1)
	go_func_utils.SafeGo(d.logger, func() { d.monitorLogResize() })
	d.updateLogDisplay()

	return d
}

func (d *Dashboard) initWidgets() {
	instructionsText := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructionsText.SetText("[yellow]S[white] Toggle Scan  |  [yellow]R[white] Toggle Recording  |  [yellow]C[white] Capture Sample\n[yellow]Tab[white] Cycle Panels  |  [yellow]Esc[white] Quit")

	d.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.metricsPanel.SetBorder(true).SetTitle(" Metrics ")

	d.advisoryPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.advisoryPanel.SetBorder(true).SetTitle(" Coach ")

	// Don't use SetChangedFunc with app.Draw() here - it can hang during
	// shutdown when the app has stopped but log lines are still arriving.
	// The event listeners call Draw() after updating content.
	d.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	d.updateMetricsDisplay(d.model.Snapshot())
	d.updateAdvisoryDisplay(d.model.Advisory())

	d.tabWidgets = append(d.tabWidgets, d.metricsPanel.Box, d.advisoryPanel.Box, d.logView.Box)

	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructionsText, 2, 0, false).
		AddItem(d.metricsPanel, 0, 1, true).
		AddItem(d.advisoryPanel, 0, 1, false)

	d.mainFlex = tview.NewFlex().
		AddItem(leftColumn, 0, 1, true).
		AddItem(d.logView, 0, 1, false)
}

func (d *Dashboard) setupKeyboardHandlers() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyTab {
			widgetCount := len(d.tabWidgets)
			for idx := 0; idx < widgetCount; idx++ {
				if d.tabWidgets[idx].HasFocus() {
					d.app.SetFocus(d.tabWidgets[(idx+1)%widgetCount])
					break
				}
			}
			return nil
		}

		if event.Key() == tcell.KeyEscape {
			d.app.Stop()
			return nil
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 's':
				if d.handler.IsScanning() {
					if err := d.handler.StopScan(); err != nil {
						d.logger.Printf("Dashboard: error stopping scan: %v", err)
					}
				} else {
					d.handler.StartScan()
				}
				return nil
			case 'r':
				if d.recorder.IsCapturing() {
					d.recorder.StopCapture()
				} else {
					d.recorder.StartCapture()
				}
				d.updateAdvisoryDisplay(d.model.Advisory())
				return nil
			case 'c':
				if err := d.recorder.CaptureNow(); err != nil {
					d.logger.Printf("Dashboard: capture failed: %v", err)
				} else {
					d.logger.Printf("Sample captured")
				}
				return nil
			}
		}

		return event
	})
}

func (d *Dashboard) setupEventListeners() {
	snapshotChan := make(chan Snapshot, 1)
	snapshotUnregister := d.model.ListenToSnapshot(snapshotChan)
	d.waitGroup.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.waitGroup.Done()
		defer snapshotUnregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case snapshot, ok := <-snapshotChan:
				if !ok {
					return
				}
				d.updateMetricsDisplay(snapshot)
				d.app.Draw()
			}
		}
	})

	advisoryChan := make(chan Advisory, 1)
	advisoryUnregister := d.model.ListenToAdvisory(advisoryChan)
	d.waitGroup.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.waitGroup.Done()
		defer advisoryUnregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case advisory, ok := <-advisoryChan:
				if !ok {
					return
				}
				d.updateAdvisoryDisplay(advisory)
				d.app.Draw()
			}
		}
	})

	logChan := make(chan string, 1)
	logUnregister := d.model.ListenToLog(logChan)
	d.waitGroup.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.waitGroup.Done()
		defer logUnregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case _, ok := <-logChan:
				if !ok {
					return
				}
				d.updateLogDisplay()
				d.app.Draw()
			}
		}
	})
}

func (d *Dashboard) updateMetricsDisplay(snapshot Snapshot) {
	text := "\n"
	if snapshot.HeartRateBpm > 0 {
		text += fmt.Sprintf("  [red]♥[white] Heart Rate:  [yellow]%d[white] bpm\n\n", snapshot.HeartRateBpm)
	} else {
		text += "  [red]♥[white] Heart Rate:  [gray]--[white]\n\n"
	}
	if snapshot.PowerWatts > 0 {
		text += fmt.Sprintf("  [blue]⚡[white] Power:       [yellow]%d[white] W\n\n", snapshot.PowerWatts)
	} else {
		text += "  [blue]⚡[white] Power:       [gray]--[white]\n\n"
	}
	if snapshot.CadenceSpm > 0 {
		text += fmt.Sprintf("  [cyan]↻[white] Cadence:     [yellow]%d[white] spm\n\n", snapshot.CadenceSpm)
	} else {
		text += "  [cyan]↻[white] Cadence:     [gray]--[white]\n\n"
	}
	text += fmt.Sprintf("  [green]→[white] Pace:        [yellow]%s[white] /km\n", formatPace(snapshot.PaceSecPerKm))

	d.metricsPanel.SetText(text)
}

func (d *Dashboard) updateAdvisoryDisplay(advisory Advisory) {
	text := "\n"
	if advisory.Efficiency > 0 {
		text += fmt.Sprintf("  [gray]Efficiency:[white] [yellow]%.3f[white] %s\n\n", advisory.Efficiency, advisory.Unit)
	} else {
		text += "  [gray]Efficiency:[white] [gray]waiting for heart rate[white]\n\n"
	}

	switch {
	case advisory.CadenceDiff >= CadenceBand:
		text += fmt.Sprintf("  [yellow]▲ %s[white]\n\n", advisory.Prompt)
	case advisory.CadenceDiff <= -CadenceBand:
		text += fmt.Sprintf("  [yellow]▼ %s[white]\n\n", advisory.Prompt)
	default:
		text += fmt.Sprintf("  [green]● %s[white]\n\n", advisory.Prompt)
	}

	if d.recorder.IsCapturing() {
		text += "  [green]● Recording[white]\n"
	} else {
		text += "  [gray]○ Not recording[white]\n"
	}

	d.advisoryPanel.SetText(text)
}

func formatPace(secPerKm uint) string {
	return fmt.Sprintf("%d:%02d", secPerKm/60, secPerKm%60)
}

func (d *Dashboard) updateLogDisplay() {
	_, _, _, height := d.logView.GetInnerRect()
	if height <= 0 {
		return
	}

	logLines := d.model.LogTail(height)
	d.logView.Clear()
	for _, line := range logLines {
		fmt.Fprintln(d.logView, line)
	}
}

func (d *Dashboard) monitorLogResize() {
	defer d.waitGroup.Done()
	var lastHeight int
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			_, _, _, height := d.logView.GetInnerRect()
			if height != lastHeight && height > 0 {
				lastHeight = height
				d.updateLogDisplay()
				d.app.Draw()
			}
		}
	}
}

// Run starts the UI and blocks until it exits
func (d *Dashboard) Run() error {
	d.app.SetRoot(d.mainFlex, true)
	d.app.SetFocus(d.metricsPanel)
	return d.app.Run()
}

// Shutdown stops the listener goroutines and waits for them to finish
func (d *Dashboard) Shutdown() {
	d.logger.Println("Dashboard: shutting down")
	d.cancelFunc()
	d.waitGroup.Wait()
	d.logger.Println("Dashboard: shutdown complete")
}
