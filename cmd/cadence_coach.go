package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rivo/tview"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/bt"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/coach"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/config"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/storage"
)

// modelLogWriter mirrors every log line into the session model so the
// dashboard can show the tail. The model is attached after construction
// because the logger has to exist before the model does.
type modelLogWriter struct {
	mu    sync.Mutex
	model *coach.Model
}

func (w *modelLogWriter) SetModel(m *coach.Model) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.model = m
}

func (w *modelLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	model := w.model
	w.mu.Unlock()

	if model != nil {
		model.AppendLog(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	defer logFile.Close()

	uiWriter := &modelLogWriter{}
	logFlags := log.LstdFlags
	if cfg.Debug {
		logFlags |= log.Lshortfile
	}
	logger := log.New(io.MultiWriter(logFile, uiWriter), "", logFlags)

	logger.Printf("cadence-coach starting (db=%s, mock=%v)", cfg.DBPath, cfg.Mock)

	model := coach.NewModel(cfg.PaceSecPerKm, logger)
	uiWriter.SetModel(model)

	var btManager bt.BTManagerInterface
	if cfg.Mock {
		btManager = coach.NewMockSensorManager(logger)
	} else {
		btManager = bt.NewBTManager(bluetooth.DefaultAdapter, logger)
	}
	if err := btManager.Enable(); err != nil {
		log.Fatalf("Failed to enable Bluetooth adapter: %v", err)
	}

	store, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		log.Fatalf("Failed to open sample store: %v", err)
	}

	recorder := coach.NewRecorder(model, store, cfg.CaptureInterval, logger)
	handler := coach.NewSessionHandler(model, btManager, cfg.PrefsPath, logger)
	handler.SetConnectTimeout(cfg.ConnectTimeout)

	app := tview.NewApplication()
	dashboard := coach.NewDashboard(coach.NewDashboardArg{
		App:      app,
		Model:    model,
		Handler:  handler,
		Recorder: recorder,
		Logger:   logger,
	})

	// Scan from the start so known sensors bind without a keypress
	handler.StartScan()

	runErr := dashboard.Run()

	// UI has exited: tear down back to front
	dashboard.Shutdown()
	handler.Shutdown()
	recorder.Shutdown()
	btManager.Shutdown()
	if err := store.Close(); err != nil {
		logger.Printf("Error closing sample store: %v", err)
	}

	if runErr != nil {
		logger.Printf("UI error: %v", runErr)
		os.Exit(1)
	}
	logger.Println("cadence-coach exited")
}
