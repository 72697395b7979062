package telemetry

import (
	"context"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/groutine"
	"github.com/srg/vivotherm/internal/ringchan"
	"github.com/srg/vivotherm/internal/runtime"
)

const updateBuffer = 16

type follower struct {
	updates *ringchan.RingChannel[coordinator.Update]
	done    <-chan struct{}
}

// Sink is a runtime.Sink that writes one point per present probe per update.
type Sink struct {
	writer      PointWriter
	measurement string
	logger      *logrus.Logger

	followers *hashmap.Map[string, *follower]
}

var _ runtime.Sink = (*Sink)(nil)

// NewSink creates a Sink writing to w under measurement.
func NewSink(w PointWriter, measurement string, logger *logrus.Logger) *Sink {
	if measurement == "" {
		measurement = "vivotherm"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sink{
		writer:      w,
		measurement: measurement,
		logger:      logger,
		followers:   hashmap.New[string, *follower](),
	}
}

// Attach writes the current snapshot of in and every later update.
func (s *Sink) Attach(ctx context.Context, in *runtime.Integration) error {
	e := in.Entry()
	c := in.Coordinator()
	if snapshot := c.Snapshot(); snapshot != nil {
		s.write(coordinator.Update{EntryID: e.ID, Snapshot: snapshot, At: c.Health().LastSuccess}, e.Data.Name)
	}

	f := &follower{updates: c.Subscribe(updateBuffer)}
	f.done = groutine.Go(context.WithoutCancel(ctx), "influx-"+e.ID, func(context.Context) {
		for {
			u, ok := f.updates.Receive()
			if !ok {
				return
			}
			s.write(u, e.Data.Name)
		}
	})
	s.followers.Set(e.ID, f)
	return nil
}

// Detach stops following in and flushes queued points.
func (s *Sink) Detach(ctx context.Context, in *runtime.Integration) error {
	id := in.Entry().ID
	f, ok := s.followers.Get(id)
	if !ok {
		return nil
	}
	in.Coordinator().Unsubscribe(f.updates)
	select {
	case <-f.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.followers.Del(id)
	s.writer.Flush()
	return nil
}

func (s *Sink) write(u coordinator.Update, device string) {
	points := Points(s.measurement, device, u)
	for _, p := range points {
		s.writer.WritePoint(p)
	}
	s.logger.WithFields(logrus.Fields{
		"entry_id": u.EntryID,
		"points":   len(points),
	}).Debug("Telemetry queued")
}

// Points converts an update into one point per present probe, tagged with entry_id,
// device and probe.
func Points(measurement, device string, u coordinator.Update) []*write.Point {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}

	var points []*write.Point
	for _, probe := range catalog.ProbeTypes() {
		reading := u.Snapshot.Probe(probe)
		if reading == nil {
			continue
		}
		fields := make(map[string]interface{}, 3)
		for _, st := range catalog.SensorTypes() {
			if v, ok := reading.Value(st.Key); ok {
				fields[string(st.Key)] = v
			}
		}
		points = append(points, write.NewPoint(measurement, map[string]string{
			"entry_id": u.EntryID,
			"device":   device,
			"probe":    string(probe),
		}, fields, at))
	}
	return points
}
