package coach

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/bt"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/events"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/go_func_utils"
	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
)

// MockSensorDevice implements bt.BTDevice for running without real sensors
type MockSensorDevice struct {
	logger    *log.Logger
	address   string
	localName string

	serviceUUIDs []string

	mu        sync.RWMutex
	state     bt.BTDeviceState
	lastSeen  time.Time
	callbacks map[string]func([]byte) // serviceUuid_characteristicUuid -> handler

	// Simulated readings, sent by the manager's notification ticker
	heartRate uint8
	power     uint8
	cadence   uint8
}

// MockSensorDeviceConfig holds configuration for creating a mock sensor
type MockSensorDeviceConfig struct {
	Address      string
	LocalName    string
	ServiceUUIDs []string
}

// NewMockSensorDevice creates a new mock BLE sensor
func NewMockSensorDevice(logger *log.Logger, config MockSensorDeviceConfig) *MockSensorDevice {
	if logger == nil {
		panic("MockSensorDevice: logger cannot be nil")
	}

	return &MockSensorDevice{
		logger:       logger,
		address:      config.Address,
		localName:    config.LocalName,
		state:        bt.Disconnected,
		serviceUUIDs: config.ServiceUUIDs,
		lastSeen:     time.Now(),
		callbacks:    make(map[string]func([]byte)),
		heartRate:    140,
		power:        200,
		cadence:      80,
	}
}

// SetConnected changes the connection state of the mock sensor
func (m *MockSensorDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = bt.Connected
	} else {
		m.state = bt.Disconnected
	}
}

// SetReadings updates the simulated sensor values
func (m *MockSensorDevice) SetReadings(heartRate, power, cadence uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRate = heartRate
	m.power = power
	m.cadence = cadence
}

// --- bt.BTDevice Interface Implementation ---

func (m *MockSensorDevice) GetAddressString() string {
	return m.address
}

func (m *MockSensorDevice) GetScanRSSI() (int16, error) {
	return -50, nil
}

func (m *MockSensorDevice) GetScanLastSeen() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

func (m *MockSensorDevice) SetScanLastSeen(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = t
}

func (m *MockSensorDevice) GetLocalName() string {
	return m.localName
}

func (m *MockSensorDevice) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == bt.Connected
}

func (m *MockSensorDevice) GetState() bt.BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockSensorDevice) GetStateDescription() string {
	switch m.GetState() {
	case bt.Connected:
		return "Connected"
	case bt.Connecting:
		return "Connecting"
	case bt.Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

func (m *MockSensorDevice) IsRecentlyScanned() bool {
	return true
}

func (m *MockSensorDevice) WaitForConnection(timeout time.Duration) error {
	// Mock is always immediately connected
	return nil
}

func (m *MockSensorDevice) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasServiceUUIDLocked(serviceUuid) {
		return fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	key := serviceUuid + "_" + characteristicUuid
	m.callbacks[key] = callbackFunc
	m.logger.Printf("MockSensorDevice [%s]: notifications enabled for %s", m.localName, key)
	return nil
}

func (m *MockSensorDevice) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasServiceUUIDLocked(serviceUuid) {
		return fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	key := serviceUuid + "_" + characteristicUuid
	delete(m.callbacks, key)
	m.logger.Printf("MockSensorDevice [%s]: notifications disabled for %s", m.localName, key)
	return nil
}

func (m *MockSensorDevice) GetServiceUUIDs() []string {
	return m.serviceUUIDs
}

func (m *MockSensorDevice) HasServiceUUID(uuid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasServiceUUIDLocked(uuid)
}

// hasServiceUUIDLocked checks if service is supported (must hold mu)
func (m *MockSensorDevice) hasServiceUUIDLocked(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

// --- Notification Emission ---

// EmitRaw delivers a raw payload to the subscriber of the given characteristic
func (m *MockSensorDevice) EmitRaw(serviceUuid string, characteristicUuid string, payload []byte) {
	m.mu.RLock()
	callback := m.callbacks[serviceUuid+"_"+characteristicUuid]
	m.mu.RUnlock()

	if callback != nil {
		callback(payload)
	}
}

// EmitHeartRate sends a heart-rate measurement in the single-byte format
func (m *MockSensorDevice) EmitHeartRate(bpm uint8) {
	m.EmitRaw(sensor.ServiceUUIDHeartRate, sensor.CharUUIDHeartRateMeasurement, []byte{0x00, bpm})
}

// EmitHeartRate16 sends a heart-rate measurement in the two-byte format
func (m *MockSensorDevice) EmitHeartRate16(bpm uint16) {
	m.EmitRaw(sensor.ServiceUUIDHeartRate, sensor.CharUUIDHeartRateMeasurement,
		[]byte{0x01, byte(bpm & 0xFF), byte(bpm >> 8)})
}

// EmitPower sends a power reading
func (m *MockSensorDevice) EmitPower(watts uint8) {
	m.EmitRaw(sensor.ServiceUUIDStrydPod, sensor.CharUUIDStrydPower, []byte{watts})
}

// EmitCadence sends a cadence reading
func (m *MockSensorDevice) EmitCadence(spm uint8) {
	m.EmitRaw(sensor.ServiceUUIDStrydPod, sensor.CharUUIDStrydCadence, []byte{spm})
}

// EmitReadings sends the current simulated values on every subscribed stream
func (m *MockSensorDevice) EmitReadings() {
	m.mu.RLock()
	hr := m.heartRate
	power := m.power
	cadence := m.cadence
	m.mu.RUnlock()

	m.EmitHeartRate(hr)
	m.EmitPower(power)
	m.EmitCadence(cadence)
}

// --- MockSensorManager ---

// MockSensorManager is a mock implementation of bt.BTManagerInterface. It
// simulates one heart-rate strap and one foot pod, emitting readings once a
// second while either is connected.
type MockSensorManager struct {
	logger               *log.Logger
	mockDevices          []*MockSensorDevice
	scanning             bool
	notificationsRunning bool

	scanDeviceListEvent   *events.ChannelEvent[[]bt.BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]bt.BTDevice]

	ctx          context.Context
	cancel       context.CancelFunc
	notifyCancel context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

// Verify MockSensorManager implements bt.BTManagerInterface
var _ bt.BTManagerInterface = (*MockSensorManager)(nil)

// NewMockSensorManager creates a mock manager with one device per sensor family
func NewMockSensorManager(logger *log.Logger) *MockSensorManager {
	if logger == nil {
		panic("MockSensorManager: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	mockDevices := []*MockSensorDevice{
		NewMockSensorDevice(logger, MockSensorDeviceConfig{
			Address:      "00:11:22:33:44:01",
			LocalName:    "Garmin HRM-Dual",
			ServiceUUIDs: []string{sensor.ServiceUUIDHeartRate},
		}),
		NewMockSensorDevice(logger, MockSensorDeviceConfig{
			Address:      "00:11:22:33:44:02",
			LocalName:    "Stryd Pod",
			ServiceUUIDs: []string{sensor.ServiceUUIDStrydPod},
		}),
	}

	return &MockSensorManager{
		logger:                logger,
		mockDevices:           mockDevices,
		scanDeviceListEvent:   events.NewChannelEvent[[]bt.BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// Enable initializes the mock manager (devices start disconnected)
func (m *MockSensorManager) Enable() error {
	m.logger.Println("MockSensorManager: enabled (mock sensors appear when scanning)")
	m.connectedDevicesEvent.Notify([]bt.BTDevice{})
	return nil
}

// GetBTDeviceByAddressString returns a BTDevice by its address string
func (m *MockSensorManager) GetBTDeviceByAddressString(addressString string) bt.BTDevice {
	for _, device := range m.mockDevices {
		if device.address == addressString {
			return device
		}
	}
	return nil
}

// StartScan emits the mock sensors as scan results once a second
func (m *MockSensorManager) StartScan(serviceUuidFilter []string) {
	m.logger.Println("MockSensorManager: starting scan")
	m.mu.Lock()
	m.scanning = true
	m.mu.Unlock()

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		devices := make([]bt.BTDevice, len(m.mockDevices))
		for i, dev := range m.mockDevices {
			devices[i] = dev
		}

		m.scanDeviceListEvent.Notify(devices)
		for _, dev := range m.mockDevices {
			m.logger.Printf("MockSensorManager: found device: %s (%s)", dev.localName, dev.address)
		}

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.mu.RLock()
				scanning := m.scanning
				m.mu.RUnlock()
				if !scanning {
					return
				}
				for _, dev := range m.mockDevices {
					dev.SetScanLastSeen(time.Now())
				}
				m.scanDeviceListEvent.Notify(devices)
			}
		}
	})
}

// StopScan stops scanning
func (m *MockSensorManager) StopScan() error {
	m.logger.Println("MockSensorManager: stopping scan")
	m.mu.Lock()
	m.scanning = false
	m.mu.Unlock()
	return nil
}

// IsScanning returns whether currently scanning
func (m *MockSensorManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect connects to a mock sensor and starts the notification ticker
func (m *MockSensorManager) Connect(device bt.BTDevice) error {
	var mockDev *MockSensorDevice
	for _, dev := range m.mockDevices {
		if dev.address == device.GetAddressString() {
			mockDev = dev
			break
		}
	}
	if mockDev == nil {
		return fmt.Errorf("unknown device: %s", device.GetAddressString())
	}

	mockDev.SetConnected(true)
	m.startNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())

	m.logger.Printf("MockSensorManager: connected to %s", device.GetAddressString())
	return nil
}

// Disconnect disconnects from a mock sensor
func (m *MockSensorManager) Disconnect(device bt.BTDevice) error {
	for _, dev := range m.mockDevices {
		if dev.address == device.GetAddressString() {
			dev.SetConnected(false)
			break
		}
	}

	connectedDevices := m.GetConnectedDevices()
	m.connectedDevicesEvent.Notify(connectedDevices)

	if len(connectedDevices) == 0 {
		m.stopNotifications()
	}
	return nil
}

// startNotifications starts the periodic reading emitter
func (m *MockSensorManager) startNotifications() {
	m.mu.Lock()
	if m.notificationsRunning {
		m.mu.Unlock()
		return
	}
	m.notificationsRunning = true

	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel
	m.mu.Unlock()

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.notificationsRunning = false
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		m.logger.Println("MockSensorManager: started emitting readings")

		for {
			select {
			case <-notifyCtx.Done():
				m.logger.Println("MockSensorManager: stopped emitting readings")
				return
			case <-ticker.C:
				for _, dev := range m.mockDevices {
					if dev.IsConnected() {
						dev.EmitReadings()
					}
				}
			}
		}
	})
}

// stopNotifications stops the periodic reading emitter
func (m *MockSensorManager) stopNotifications() {
	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.mu.Unlock()
}

// GetConnectedDevices returns connected mock sensors
func (m *MockSensorManager) GetConnectedDevices() []bt.BTDevice {
	var connected []bt.BTDevice
	for _, dev := range m.mockDevices {
		if dev.IsConnected() {
			connected = append(connected, dev)
		}
	}
	return connected
}

// GetScanDevices returns the mock sensors while scanning
func (m *MockSensorManager) GetScanDevices() []bt.BTDevice {
	m.mu.RLock()
	scanning := m.scanning
	m.mu.RUnlock()

	if scanning {
		devices := make([]bt.BTDevice, len(m.mockDevices))
		for i, dev := range m.mockDevices {
			devices[i] = dev
		}
		return devices
	}
	return []bt.BTDevice{}
}

// ListenToDeviceList registers a channel to receive device list changes
func (m *MockSensorManager) ListenToDeviceList(ch chan<- []bt.BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes
func (m *MockSensorManager) ListenToConnectedDevices(ch chan<- []bt.BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

// Shutdown stops the mock manager
func (m *MockSensorManager) Shutdown() {
	m.logger.Println("MockSensorManager: shutting down")
	m.stopNotifications()
	m.cancel()
	m.wg.Wait()
	m.logger.Println("MockSensorManager: shutdown complete")
}

// GetMockDevices returns all mock sensors for direct access
func (m *MockSensorManager) GetMockDevices() []*MockSensorDevice {
	return m.mockDevices
}
