// Package sensor projects the coordinator's cached snapshot onto one read-only entity per
// probe and metric.
package sensor

import (
	"fmt"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/protocol"
)

// Readable is the state surface of an entity.
type Readable interface {
	// Value returns the current reading; ok is false when the probe is absent.
	Value() (v float64, ok bool)
	// Available reports whether the probe is present in the latest successful snapshot.
	Available() bool
}

// SnapshotSource provides the latest successful snapshot, nil before the first one.
type SnapshotSource interface {
	Snapshot() *protocol.Snapshot
}

// DeviceInfo is the device-registry record shared by all entities of an entry.
type DeviceInfo struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer,omitempty"`
	Model        string      `json:"model,omitempty"`
}

// Entity is a projection of one (probe, metric) pair. It holds no state of its own.
type Entity struct {
	EntryID  string
	Probe    protocol.ProbeType
	Metric   protocol.MetricType
	UniqueID string
	Name     string
	Meta     catalog.SensorType
	Device   DeviceInfo

	source SnapshotSource
}

var _ Readable = (*Entity)(nil)

// Value implements Readable.
func (e *Entity) Value() (float64, bool) {
	reading := e.source.Snapshot().Probe(e.Probe)
	if reading == nil {
		return 0, false
	}
	return reading.Value(e.Metric)
}

// Available implements Readable.
func (e *Entity) Available() bool {
	return e.source.Snapshot().Probe(e.Probe) != nil
}

// At returns a copy of e that reads from snapshot instead of its live source, so a
// caller can project several entities onto the same snapshot.
func (e *Entity) At(snapshot *protocol.Snapshot) *Entity {
	pinned := *e
	pinned.source = fixedSource{snapshot}
	return &pinned
}

type fixedSource struct{ snapshot *protocol.Snapshot }

func (f fixedSource) Snapshot() *protocol.Snapshot { return f.snapshot }

// NewDeviceInfo builds the device record of e from the catalog, falling back to the entry name.
func NewDeviceInfo(e entry.Entry) DeviceInfo {
	info := DeviceInfo{
		Identifiers: [][2]string{{catalog.Domain, e.ID}},
		Name:        e.Data.Name,
	}
	if dt, ok := catalog.LookupDevice(e.Data.DiscoveryName); ok {
		info.Name = dt.Name
		info.Manufacturer = dt.Manufacturer
		info.Model = dt.Model
	}
	return info
}

// UniqueID returns "<entryID>-<probe>-<metric>".
func UniqueID(entryID string, probe protocol.ProbeType, metric protocol.MetricType) string {
	return fmt.Sprintf("%s-%s-%s", entryID, probe, metric)
}

// BuildEntities creates one entity per probe and metric, in catalog order (metric-major).
// Entities for an absent probe are created too; they report unavailable until it appears.
func BuildEntities(e entry.Entry, source SnapshotSource) []*Entity {
	device := NewDeviceInfo(e)

	var entities []*Entity
	for _, st := range catalog.SensorTypes() {
		for _, probe := range catalog.ProbeTypes() {
			entities = append(entities, &Entity{
				EntryID:  e.ID,
				Probe:    probe,
				Metric:   st.Key,
				UniqueID: UniqueID(e.ID, probe, st.Key),
				Name:     fmt.Sprintf("%s %s %s", device.Name, catalog.ProbeLabel(probe), st.Name),
				Meta:     st,
				Device:   device,
				source:   source,
			})
		}
	}
	return entities
}
