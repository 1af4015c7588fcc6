package coach

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/bt"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/go_func_utils"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
)

// sensorUpdate is one raw notification queued for the decode pipeline
type sensorUpdate struct {
	Metric  sensor.MetricKind
	Payload []byte
}

const (
	updateQueueSize       = 64
	defaultConnectTimeout = 10 * time.Second
)

// SessionHandler owns the scan → classify → bind → decode path. Notification
// callbacks from every subscribed characteristic funnel into one buffered
// queue drained by a single consumer goroutine, so snapshot mutation and
// advisory recompute are strictly serialized no matter how many sensors or
// delivery threads are active.
type SessionHandler struct {
	model     *Model
	btManager bt.BTManagerInterface
	prefs     *preferences // nil when preference persistence is disabled
	logger    *log.Logger

	updates        chan sensorUpdate
	connectTimeout time.Duration

	// Binding tracking: device address -> bound sensor family
	boundMu       sync.RWMutex
	boundFamilies map[string]sensor.FamilyID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionHandler creates a SessionHandler and starts its pipeline.
// prefsPath points at the preferred-device JSON file; pass "" to disable
// preference persistence (tests do).
func NewSessionHandler(model *Model, btManager bt.BTManagerInterface, prefsPath string, logger *log.Logger) *SessionHandler {
	if model == nil {
		panic("SessionHandler: model cannot be nil")
	}
	if btManager == nil {
		panic("SessionHandler: btManager cannot be nil")
	}
	if logger == nil {
		panic("SessionHandler: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &SessionHandler{
		model:          model,
		btManager:      btManager,
		logger:         logger,
		updates:        make(chan sensorUpdate, updateQueueSize),
		connectTimeout: defaultConnectTimeout,
		boundFamilies:  make(map[string]sensor.FamilyID),
		ctx:            ctx,
		cancel:         cancel,
	}
	if prefsPath != "" {
		h.prefs = newPreferences(prefsPath, logger)
	}

	h.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { h.consumeUpdates(ctx) })

	h.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { h.watchScanResults(ctx) })

	return h
}

// SetConnectTimeout overrides how long Bind waits for a pending connection.
// A non-positive value keeps the current timeout.
func (h *SessionHandler) SetConnectTimeout(d time.Duration) {
	if d > 0 {
		h.connectTimeout = d
	}
}

// StartScan starts scanning for sensors. Devices are matched by advertised
// name, not service filter, so the scan itself is unfiltered.
func (h *SessionHandler) StartScan() {
	h.logger.Printf("Starting BLE scan...")
	h.btManager.StartScan(nil)
}

// StopScan stops scanning for sensors
func (h *SessionHandler) StopScan() error {
	if err := h.btManager.StopScan(); err != nil {
		h.logger.Printf("SessionHandler: error stopping scan: %v", err)
		return err
	}
	h.logger.Printf("Scanning stopped")
	return nil
}

// IsScanning returns true if currently scanning
func (h *SessionHandler) IsScanning() bool {
	return h.btManager.IsScanning()
}

// Bind connects to a device and subscribes to every characteristic its
// protocol descriptor names, routing notifications into the decode queue.
func (h *SessionHandler) Bind(desc *sensor.ProtocolDescriptor, address string) error {
	btDevice := h.btManager.GetBTDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}

	deviceName := fmt.Sprintf("%s (%s)", btDevice.GetLocalName(), btDevice.GetAddressString())

	if btDevice.IsConnected() {
		h.logger.Printf("Device %s already connected, subscribing %s streams", deviceName, desc.DisplayName)
	} else {
		h.logger.Printf("Connecting to %s as %s", deviceName, desc.DisplayName)

		if err := h.btManager.Connect(btDevice); err != nil {
			h.logger.Printf("SessionHandler: error initiating connection: %v", err)
			return fmt.Errorf("failed to initiate connection: %w", err)
		}
		if err := btDevice.WaitForConnection(h.connectTimeout); err != nil {
			h.logger.Printf("SessionHandler: connection timeout: %v", err)
			return fmt.Errorf("connection timeout: %w", err)
		}
		h.logger.Printf("SessionHandler: connected to %s", deviceName)
	}

	subscribed := 0
	for _, binding := range desc.Bindings {
		h.logger.Printf("SessionHandler: enabling %s notifications (service: %s, char: %s)",
			binding.Metric, desc.ServiceUUID, binding.CharacteristicUUID)

		err := btDevice.EnableNotifications(
			desc.ServiceUUID,
			binding.CharacteristicUUID,
			h.createNotificationHandler(binding.Metric),
		)
		if err != nil {
			h.logger.Printf("SessionHandler: failed to enable %s notifications: %v", binding.Metric, err)
			continue
		}
		subscribed++
	}
	if subscribed == 0 {
		return fmt.Errorf("no subscribable characteristics on device for %s", desc.DisplayName)
	}

	h.boundMu.Lock()
	h.boundFamilies[address] = desc.ID
	h.boundMu.Unlock()

	if h.prefs != nil {
		h.prefs.setPreferredDevice(desc.ID, address)
	}

	h.logger.Printf("Bound %s as %s (%d/%d streams)", deviceName, desc.DisplayName, subscribed, len(desc.Bindings))
	return nil
}

// Unbind disables notifications and disconnects a bound device
func (h *SessionHandler) Unbind(address string) error {
	h.boundMu.Lock()
	familyID, bound := h.boundFamilies[address]
	delete(h.boundFamilies, address)
	h.boundMu.Unlock()

	if !bound {
		h.logger.Printf("SessionHandler: no binding for device %s", address)
		return nil
	}

	btDevice := h.btManager.GetBTDeviceByAddressString(address)
	if btDevice == nil {
		return fmt.Errorf("device not found: %s", address)
	}

	if desc, ok := sensor.GetProtocolByID(familyID); ok && btDevice.IsConnected() {
		for _, binding := range desc.Bindings {
			if err := btDevice.DisableNotifications(desc.ServiceUUID, binding.CharacteristicUUID); err != nil {
				h.logger.Printf("SessionHandler: failed to disable %s notifications: %v", binding.Metric, err)
			}
		}
	}

	if err := h.btManager.Disconnect(btDevice); err != nil {
		h.logger.Printf("SessionHandler: error disconnecting: %v", err)
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

// BoundFamily returns the sensor family bound at the given address
func (h *SessionHandler) BoundFamily(address string) (sensor.FamilyID, bool) {
	h.boundMu.RLock()
	defer h.boundMu.RUnlock()
	id, ok := h.boundFamilies[address]
	return id, ok
}

// BoundAddresses returns the addresses of all bound devices
func (h *SessionHandler) BoundAddresses() []string {
	h.boundMu.RLock()
	defer h.boundMu.RUnlock()
	result := make([]string, 0, len(h.boundFamilies))
	for addr := range h.boundFamilies {
		result = append(result, addr)
	}
	return result
}

// Shutdown stops the pipeline goroutines and waits for them to finish
func (h *SessionHandler) Shutdown() {
	h.logger.Printf("SessionHandler: shutting down")
	h.cancel()
	h.wg.Wait()
	h.logger.Printf("SessionHandler: shutdown complete")
}

// createNotificationHandler returns the per-characteristic callback. It only
// enqueues; decode and fusion happen on the consumer goroutine so that the
// transport's delivery threads never touch the model.
func (h *SessionHandler) createNotificationHandler(metric sensor.MetricKind) func(buf []byte) {
	return func(buf []byte) {
		payload := make([]byte, len(buf))
		copy(payload, buf)

		select {
		case h.updates <- sensorUpdate{Metric: metric, Payload: payload}:
		default:
			// Queue full: drop the oldest-style, keep the link alive. A lost
			// packet is indistinguishable from radio loss downstream.
			h.logger.Printf("SessionHandler: update queue full, dropping %s notification", metric)
		}
	}
}

// consumeUpdates is the single event consumer: decode → fuse → recompute,
// one notification at a time.
func (h *SessionHandler) consumeUpdates(ctx context.Context) {
	defer h.wg.Done()
	defer h.logger.Printf("exiting update consumer loop")

	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-h.updates:
			value := sensor.Decode(upd.Metric, upd.Payload)
			_, advisory := h.model.Apply(upd.Metric, value)
			h.logger.Printf("[%s] %d -> %s", upd.Metric, value, advisory.Prompt)
		}
	}
}

// watchScanResults listens to the manager's device-list event and binds
// recognized sensors as they appear. If a preferred device is remembered for
// a family, only that address is auto-bound for it.
func (h *SessionHandler) watchScanResults(ctx context.Context) {
	defer h.wg.Done()
	defer h.logger.Printf("exiting scan watch loop")

	deviceChan := make(chan []bt.BTDevice, 1)
	unregister := h.btManager.ListenToDeviceList(deviceChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case devices, ok := <-deviceChan:
			if !ok {
				return
			}
			for _, device := range devices {
				h.maybeBind(device)
			}
		}
	}
}

func (h *SessionHandler) maybeBind(device bt.BTDevice) {
	desc := sensor.Classify(device.GetLocalName())
	if desc == nil {
		return // unrecognized devices are silently ignored
	}

	address := device.GetAddressString()

	h.boundMu.RLock()
	_, alreadyBound := h.boundFamilies[address]
	h.boundMu.RUnlock()
	if alreadyBound {
		return
	}

	if h.prefs != nil {
		if preferred := h.prefs.getPreferredDevice(desc.ID); preferred != "" && preferred != address {
			h.logger.Printf("SessionHandler: skipping %s (%s), preferred %s device is %s",
				device.GetLocalName(), address, desc.DisplayName, preferred)
			return
		}
	}

	if err := h.Bind(desc, address); err != nil {
		h.logger.Printf("SessionHandler: auto-bind of %s failed: %v", address, err)
	}
}
