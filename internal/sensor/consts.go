package sensor

import "strings"

// Bluetooth Service and Characteristic UUIDs for the supported sensor families
const (
	// Heart Rate Service (standard GATT)
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"

	// Stryd foot pod vendor service. The pod exposes power and cadence on
	// two separate characteristics under one vendor service; the feb1/feb2
	// fragment is what tells them apart on the wire.
	ServiceUUIDStrydPod  = "0000feb0-0000-1000-8000-00805f9b34fb"
	CharUUIDStrydPower   = "0000feb1-0000-1000-8000-00805f9b34fb"
	CharUUIDStrydCadence = "0000feb2-0000-1000-8000-00805f9b34fb"
)

// MetricKind identifies an individual physiological metric
type MetricKind string

const (
	MetricHeartRate MetricKind = "heart_rate"
	MetricCadence   MetricKind = "cadence"
	MetricPower     MetricKind = "power"
	MetricPace      MetricKind = "pace"
)

// FamilyID uniquely identifies a supported sensor family
type FamilyID string

const (
	FamilyHeartRateStrap FamilyID = "heart_rate_strap"
	FamilyFootPod        FamilyID = "foot_pod"
)

// CharacteristicBinding maps one notification characteristic to the metric
// its payload decodes into
type CharacteristicBinding struct {
	CharacteristicUUID string
	Metric             MetricKind
}

// ProtocolDescriptor describes how to bind a discovered device of a known
// sensor family: which advertised-name fragment identifies it, which service
// to talk to, and which characteristics carry which metrics.
type ProtocolDescriptor struct {
	ID          FamilyID
	DisplayName string
	NameMatch   string // lowercase substring matched against the advertised name
	ServiceUUID string
	Bindings    []CharacteristicBinding
}

// AllProtocols is the registry of supported sensor families. Adding a family
// is a data change here, not new branching logic in the handler.
var AllProtocols = []ProtocolDescriptor{
	{
		ID:          FamilyHeartRateStrap,
		DisplayName: "Heart Rate Strap",
		NameMatch:   "garmin",
		ServiceUUID: ServiceUUIDHeartRate,
		Bindings: []CharacteristicBinding{
			{CharacteristicUUID: CharUUIDHeartRateMeasurement, Metric: MetricHeartRate},
		},
	},
	{
		ID:          FamilyFootPod,
		DisplayName: "Foot Pod",
		NameMatch:   "stryd",
		ServiceUUID: ServiceUUIDStrydPod,
		Bindings: []CharacteristicBinding{
			{CharacteristicUUID: CharUUIDStrydPower, Metric: MetricPower},
			{CharacteristicUUID: CharUUIDStrydCadence, Metric: MetricCadence},
		},
	},
}

// Classify matches an advertised device name against the registry.
// Matching is case-insensitive substring containment. Unrecognized names
// return nil and are simply ignored by the caller.
func Classify(advertisedName string) *ProtocolDescriptor {
	name := strings.ToLower(advertisedName)
	for i := range AllProtocols {
		if strings.Contains(name, AllProtocols[i].NameMatch) {
			return &AllProtocols[i]
		}
	}
	return nil
}

// GetProtocolByID returns a protocol descriptor by its family ID
func GetProtocolByID(id FamilyID) (ProtocolDescriptor, bool) {
	for _, p := range AllProtocols {
		if p.ID == id {
			return p, true
		}
	}
	return ProtocolDescriptor{}, false
}
