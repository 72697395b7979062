package hass

import (
	"fmt"
	"regexp"
	"time"

	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/sensor"
)

const availabilityModeAll = "all"

type availability struct {
	Topic string `json:"topic"`
}

// discoveryConfig is the retained payload of one sensor config topic.
type discoveryConfig struct {
	Name             string            `json:"name"`
	UniqueID         string            `json:"unique_id"`
	ObjectID         string            `json:"object_id"`
	StateTopic       string            `json:"state_topic"`
	ValueTemplate    string            `json:"value_template"`
	Unit             string            `json:"unit_of_measurement,omitempty"`
	DeviceClass      string            `json:"device_class,omitempty"`
	StateClass       string            `json:"state_class,omitempty"`
	EntityCategory   string            `json:"entity_category,omitempty"`
	Icon             string            `json:"icon,omitempty"`
	DisplayPrecision int               `json:"suggested_display_precision"`
	Availability     []availability    `json:"availability"`
	AvailabilityMode string            `json:"availability_mode"`
	Device           sensor.DeviceInfo `json:"device"`
}

// probeState holds the values of one probe keyed by metric. A nil probeState encodes
// as null, which is how an unplugged probe appears in the state payload.
type probeState map[protocol.MetricType]float64

// newStatePayload builds the state JSON from the entities of an entry, pinned to
// snapshot. Every probe that has entities gets a key.
func newStatePayload(entities []*sensor.Entity, snapshot *protocol.Snapshot, at time.Time) map[string]any {
	probes := make(map[protocol.ProbeType]probeState)
	for _, e := range entities {
		pinned := e.At(snapshot)
		state := probes[e.Probe]
		if v, ok := pinned.Value(); ok {
			if state == nil {
				state = make(probeState)
			}
			state[e.Metric] = v
		}
		probes[e.Probe] = state
	}

	payload := map[string]any{"updated_at": at.UTC()}
	for probe, state := range probes {
		payload[string(probe)] = state
	}
	return payload
}

// probeAvailability reports, per probe, whether its entities are available in snapshot.
func probeAvailability(entities []*sensor.Entity, snapshot *protocol.Snapshot) map[protocol.ProbeType]bool {
	available := make(map[protocol.ProbeType]bool)
	for _, e := range entities {
		available[e.Probe] = available[e.Probe] || e.At(snapshot).Available()
	}
	return available
}

var nodeIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// nodeID returns the discovery node id of an entry; only [a-zA-Z0-9_-] is allowed.
func nodeID(entryID string) string {
	return "vivotherm_" + nodeIDUnsafe.ReplaceAllString(entryID, "_")
}

// valueTemplate renders nothing while the probe is null so the template never errors
// on an unplugged probe.
func valueTemplate(e *sensor.Entity) string {
	return fmt.Sprintf("{%% if value_json.%[1]s %%}{{ value_json.%[1]s.%[2]s }}{%% endif %%}", e.Probe, e.Metric)
}
