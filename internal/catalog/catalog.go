// Package catalog holds the static device and sensor tables. They are built once at init
// and never mutated.
package catalog

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/vivotherm/internal/protocol"
)

// Domain namespaces identifiers published to the host.
const Domain = "vivosun_thermo"

// DeviceType describes a supported product, keyed by its advertised name.
type DeviceType struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// SensorType describes how one metric is presented.
type SensorType struct {
	Key              protocol.MetricType `json:"key"`
	Name             string              `json:"name"`
	Unit             string              `json:"unit_of_measurement"`
	Icon             string              `json:"icon"`
	DeviceClass      string              `json:"device_class,omitempty"`
	StateClass       string              `json:"state_class"`
	EntityCategory   string              `json:"entity_category,omitempty"`
	DisplayPrecision int                 `json:"suggested_display_precision"`
}

var deviceTypes = map[string]DeviceType{
	"ThermoBeacon2": {
		Name:         "VIVOSUN AeroLab THB1S",
		Manufacturer: "VIVOSUN",
		Model:        "THB1S",
	},
}

var sensorTypes = func() *orderedmap.OrderedMap[protocol.MetricType, SensorType] {
	m := orderedmap.New[protocol.MetricType, SensorType]()
	for _, st := range []SensorType{
		{
			Key:              protocol.MetricTemperature,
			Name:             "Temperature",
			Unit:             "°C",
			Icon:             "mdi:thermometer",
			DeviceClass:      "temperature",
			StateClass:       "measurement",
			DisplayPrecision: 1,
		},
		{
			Key:              protocol.MetricHumidity,
			Name:             "Humidity",
			Unit:             "%",
			Icon:             "mdi:water-percent",
			DeviceClass:      "humidity",
			StateClass:       "measurement",
			DisplayPrecision: 0,
		},
		{
			Key:              protocol.MetricVPD,
			Name:             "Vapor Pressure Deficit",
			Unit:             "kPa",
			Icon:             "mdi:air-filter",
			StateClass:       "measurement",
			EntityCategory:   "diagnostic",
			DisplayPrecision: 2,
		},
	} {
		m.Set(st.Key, st)
	}
	return m
}()

var probeTypes = []protocol.ProbeType{protocol.ProbeMain, protocol.ProbeExternal}

// LookupDevice returns the device type advertised as discoveryName.
func LookupDevice(discoveryName string) (DeviceType, bool) {
	dt, ok := deviceTypes[discoveryName]
	return dt, ok
}

// IsSupported reports whether discoveryName is a catalogued device.
func IsSupported(discoveryName string) bool {
	_, ok := deviceTypes[discoveryName]
	return ok
}

// DiscoveryNames lists the advertised names of every catalogued device.
func DiscoveryNames() []string {
	names := make([]string, 0, len(deviceTypes))
	for name := range deviceTypes {
		names = append(names, name)
	}
	return names
}

// LookupSensor returns the presentation of metric.
func LookupSensor(metric protocol.MetricType) (SensorType, bool) {
	return sensorTypes.Get(metric)
}

// SensorTypes returns the sensor types in presentation order.
func SensorTypes() []SensorType {
	out := make([]SensorType, 0, sensorTypes.Len())
	for pair := sensorTypes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// ProbeTypes returns the probes in presentation order.
func ProbeTypes() []protocol.ProbeType {
	out := make([]protocol.ProbeType, len(probeTypes))
	copy(out, probeTypes)
	return out
}

// ProbeLabel capitalises a probe type for display names ("main" → "Main").
func ProbeLabel(p protocol.ProbeType) string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
