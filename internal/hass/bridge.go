package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/groutine"
	"github.com/srg/vivotherm/internal/mqtt"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/ringchan"
	"github.com/srg/vivotherm/internal/runtime"
)

// Publisher is the MQTT surface used by the bridge. It is satisfied by *mqtt.Client.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	StatusTopic() string
	QoS() byte
}

// Config holds the topic layout.
type Config struct {
	DiscoveryPrefix string `yaml:"discovery_prefix" json:"discovery_prefix" default:"homeassistant"`
	BaseTopic       string `yaml:"-" json:"-" default:"vivotherm"`
	UpdateBuffer    int    `yaml:"update_buffer" json:"update_buffer" default:"4"`
}

// attachment is the per-entry state of an attached integration.
type attachment struct {
	in      *runtime.Integration
	updates *ringchan.RingChannel[coordinator.Update]
	done    <-chan struct{}

	mu   sync.Mutex
	last *coordinator.Update
}

// Bridge is a runtime.Sink publishing discovery configs and state over MQTT.
type Bridge struct {
	pub    Publisher
	cfg    Config
	logger *logrus.Logger

	attached *hashmap.Map[string, *attachment]
}

var _ runtime.Sink = (*Bridge)(nil)

// NewBridge creates a Bridge. Call Start to follow Home Assistant restarts.
func NewBridge(pub Publisher, cfg Config, logger *logrus.Logger) *Bridge {
	defaults.SetDefaults(&cfg)
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
		attached: hashmap.New[string, *attachment](),
	}
}

// BirthTopic is where Home Assistant announces its own availability.
func (b *Bridge) BirthTopic() string {
	return b.cfg.DiscoveryPrefix + "/status"
}

// ConfigTopic returns the discovery topic of one entity.
func (b *Bridge) ConfigTopic(entryID string, probe protocol.ProbeType, metric protocol.MetricType) string {
	return fmt.Sprintf("%s/sensor/%s/%s_%s/config", b.cfg.DiscoveryPrefix, nodeID(entryID), probe, metric)
}

// StateTopic returns the snapshot topic of an entry.
func (b *Bridge) StateTopic(entryID string) string {
	return fmt.Sprintf("%s/%s/state", b.cfg.BaseTopic, entryID)
}

// AvailabilityTopic returns the availability topic of one probe.
func (b *Bridge) AvailabilityTopic(entryID string, probe protocol.ProbeType) string {
	return fmt.Sprintf("%s/%s/%s/availability", b.cfg.BaseTopic, entryID, probe)
}

// Start subscribes to the Home Assistant birth topic.
func (b *Bridge) Start() error {
	return b.pub.Subscribe(b.BirthTopic(), b.pub.QoS(), b.handleBirth)
}

// Stop unsubscribes from the birth topic.
func (b *Bridge) Stop() error {
	return b.pub.Unsubscribe(b.BirthTopic())
}

func (b *Bridge) handleBirth(_ string, payload []byte) error {
	if strings.TrimSpace(string(payload)) != mqtt.PayloadOnline {
		return nil
	}
	b.logger.Info("Home Assistant online, republishing discovery")
	return b.Resync()
}

// Resync republishes the discovery configs and last state of every attached entry.
// Call it after the MQTT session is re-established.
func (b *Bridge) Resync() error {
	var errs []error
	b.attached.Range(func(_ string, a *attachment) bool {
		if err := b.announce(a); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// Attach publishes the discovery configs and the current state of in, then follows
// its coordinator updates.
func (b *Bridge) Attach(ctx context.Context, in *runtime.Integration) error {
	id := in.Entry().ID
	a := &attachment{in: in}
	if s := in.Coordinator().Snapshot(); s != nil {
		a.last = &coordinator.Update{EntryID: id, Snapshot: s, At: in.Coordinator().Health().LastSuccess}
	}

	if err := b.announce(a); err != nil {
		return err
	}

	a.updates = in.Coordinator().Subscribe(b.cfg.UpdateBuffer)
	a.done = groutine.Go(context.WithoutCancel(ctx), "hass-"+id, func(context.Context) {
		b.follow(a)
	})
	b.attached.Set(id, a)

	b.logger.WithFields(logrus.Fields{
		"entry_id": id,
		"entities": len(in.Entities()),
	}).Info("Home Assistant discovery published")
	return nil
}

// Detach stops following in, marks its probes offline and removes the discovery configs.
func (b *Bridge) Detach(ctx context.Context, in *runtime.Integration) error {
	id := in.Entry().ID
	if a, ok := b.attached.Get(id); ok {
		in.Coordinator().Unsubscribe(a.updates)
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.attached.Del(id)
	}

	var errs []error
	for _, probe := range catalog.ProbeTypes() {
		errs = append(errs, b.publish(b.AvailabilityTopic(id, probe), []byte(mqtt.PayloadOffline)))
	}
	for _, e := range in.Entities() {
		errs = append(errs, b.publish(b.ConfigTopic(id, e.Probe, e.Metric), nil))
	}

	b.logger.WithField("entry_id", id).Info("Home Assistant discovery removed")
	return errors.Join(errs...)
}

func (b *Bridge) follow(a *attachment) {
	log := b.logger.WithField("entry_id", a.in.Entry().ID)
	for {
		u, ok := a.updates.Receive()
		if !ok {
			return
		}
		a.mu.Lock()
		a.last = &u
		err := b.publishState(a)
		a.mu.Unlock()
		if err != nil {
			log.WithField("error", err).Warn("Failed to publish state")
		}
	}
}

// announce publishes every discovery config of a, then its last state if any.
func (b *Bridge) announce(a *attachment) error {
	id := a.in.Entry().ID
	for _, e := range a.in.Entities() {
		cfg := discoveryConfig{
			Name:             e.Name,
			UniqueID:         e.UniqueID,
			ObjectID:         strings.ReplaceAll(e.UniqueID, "-", "_"),
			StateTopic:       b.StateTopic(id),
			ValueTemplate:    valueTemplate(e),
			Unit:             e.Meta.Unit,
			DeviceClass:      e.Meta.DeviceClass,
			StateClass:       e.Meta.StateClass,
			EntityCategory:   e.Meta.EntityCategory,
			Icon:             e.Meta.Icon,
			DisplayPrecision: e.Meta.DisplayPrecision,
			Availability: []availability{
				{Topic: b.pub.StatusTopic()},
				{Topic: b.AvailabilityTopic(id, e.Probe)},
			},
			AvailabilityMode: availabilityModeAll,
			Device:           e.Device,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding discovery config of %s: %w", e.UniqueID, err)
		}
		if err := b.publish(b.ConfigTopic(id, e.Probe, e.Metric), payload); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return b.publishState(a)
}

// publishState publishes the last update of a and the availability of each probe.
// It must be called with a.mu held so a birth replay never overtakes a newer update.
func (b *Bridge) publishState(a *attachment) error {
	if a.last == nil {
		return nil
	}
	id := a.in.Entry().ID
	entities := a.in.Entities()

	at := a.last.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(newStatePayload(entities, a.last.Snapshot, at))
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := b.publish(b.StateTopic(id), payload); err != nil {
		return err
	}

	available := probeAvailability(entities, a.last.Snapshot)
	var errs []error
	for _, probe := range catalog.ProbeTypes() {
		status := mqtt.PayloadOffline
		if available[probe] {
			status = mqtt.PayloadOnline
		}
		errs = append(errs, b.publish(b.AvailabilityTopic(id, probe), []byte(status)))
	}
	return errors.Join(errs...)
}

func (b *Bridge) publish(topic string, payload []byte) error {
	if err := b.pub.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}
