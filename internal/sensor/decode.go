package sensor

// Decode translates one raw notification payload into a metric value.
//
// Decoders never fail: sensor links are lossy, and a short or garbled packet
// must degrade to a zero reading instead of taking down the update loop.
func Decode(kind MetricKind, buf []byte) uint {
	switch kind {
	case MetricHeartRate:
		return decodeHeartRate(buf)
	case MetricPower:
		return decodeSingleByte(buf)
	case MetricCadence:
		return decodeSingleByte(buf)
	default:
		return 0
	}
}

// decodeHeartRate parses the standard Heart Rate Measurement characteristic.
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
// Flags bit 0 selects the value format: 0 = UINT8, 1 = UINT16 little-endian.
func decodeHeartRate(buf []byte) uint {
	if len(buf) == 0 {
		return 0
	}

	flags := buf[0]
	isUint16 := (flags & 0x01) != 0

	if isUint16 && len(buf) >= 3 {
		return uint(buf[1]) | (uint(buf[2]) << 8)
	}
	if len(buf) >= 2 {
		return uint(buf[1])
	}
	return 0
}

// decodeSingleByte handles the pod's power and cadence characteristics,
// both a single unscaled byte (watts, steps per minute).
func decodeSingleByte(buf []byte) uint {
	if len(buf) == 0 {
		return 0
	}
	return uint(buf[0])
}
