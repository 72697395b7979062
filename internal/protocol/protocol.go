package protocol

// Wire constants of the THB1S measurement exchange.
const (
	// CommandCharacteristic is the characteristic the measurement command is written to.
	CommandCharacteristic = "0000fff5-0000-1000-8000-00805f9b34fb"

	// StatusCharacteristic is the notify characteristic the frame is pushed through.
	StatusCharacteristic = "0000fff3-0000-1000-8000-00805f9b34fb"

	// FrameLength is the length of a measurement frame produced by EncodeFrame.
	// Decoding only requires the bytes covered by the profile offsets.
	FrameLength = 11

	// Sentinel is the raw value reported by an unplugged external probe.
	Sentinel int16 = -1

	// fixedPointScale converts raw readings into degrees / percent.
	fixedPointScale = 16.0
)

// Command triggers a measurement push on the status characteristic.
var Command = []byte{0x0D}

// ProbeType identifies a sensing point of the device.
type ProbeType string

const (
	ProbeMain     ProbeType = "main"
	ProbeExternal ProbeType = "external"
)

// MetricType identifies a value reported per probe.
type MetricType string

const (
	MetricTemperature MetricType = "temperature_c"
	MetricHumidity    MetricType = "humidity"
	MetricVPD         MetricType = "vpd"
)

// ProbeReading holds the decoded values of one probe.
type ProbeReading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity"`
	VPDKPa       float64 `json:"vpd"`
}

// Value returns the reading for the given metric.
func (r ProbeReading) Value(metric MetricType) (float64, bool) {
	switch metric {
	case MetricTemperature:
		return r.TemperatureC, true
	case MetricHumidity:
		return r.HumidityPct, true
	case MetricVPD:
		return r.VPDKPa, true
	default:
		return 0, false
	}
}

// Snapshot is the decoded content of one frame. Main is always set; External
// is nil while the external probe is disconnected.
type Snapshot struct {
	Main     ProbeReading  `json:"main"`
	External *ProbeReading `json:"external"`
}

// Probe returns the reading of the given probe, or nil when it is absent.
func (s *Snapshot) Probe(probe ProbeType) *ProbeReading {
	if s == nil {
		return nil
	}
	switch probe {
	case ProbeMain:
		main := s.Main
		return &main
	case ProbeExternal:
		if s.External == nil {
			return nil
		}
		external := *s.External
		return &external
	default:
		return nil
	}
}
