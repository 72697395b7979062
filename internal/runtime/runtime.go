// Package runtime manages the lifecycle of configured entries: first refresh, entity
// registration, sink attachment and the background polling loop.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/groutine"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/sensor"
)

var (
	// ErrEntryNotLoaded is returned when unloading an entry that is not running.
	ErrEntryNotLoaded = errors.New("entry not loaded")
	// ErrEntryLoaded is returned when setting up an entry twice.
	ErrEntryLoaded = errors.New("entry already loaded")
)

// Sink receives the entities of an integration when it is set up and is told when it goes away.
type Sink interface {
	Attach(ctx context.Context, in *Integration) error
	Detach(ctx context.Context, in *Integration) error
}

// ReaderFactory returns the frame reader used to poll e.
type ReaderFactory func(e entry.Entry) device.FrameReader

// Options configure every integration started by a Manager.
type Options struct {
	Profile  protocol.Profile
	Poll     coordinator.Options
	Reporter coordinator.Reporter
}

// Integration is one running entry.
type Integration struct {
	entry       entry.Entry
	coordinator *coordinator.Coordinator
	entities    []*sensor.Entity

	cancel context.CancelFunc
	done   <-chan struct{}
}

func (in *Integration) Entry() entry.Entry {
	return in.entry
}

func (in *Integration) Coordinator() *coordinator.Coordinator {
	return in.coordinator
}

// Entities returns the registered sensor entities, in catalog order.
func (in *Integration) Entities() []*sensor.Entity {
	return in.entities
}

// Manager keeps the running integrations keyed by entry ID.
type Manager struct {
	readers ReaderFactory
	opts    Options
	sinks   []Sink
	logger  *logrus.Logger

	lifecycle    sync.Mutex // serializes setup and unload
	integrations *hashmap.Map[string, *Integration]
}

// NewManager creates a Manager. Sinks are attached in order and detached in reverse.
func NewManager(readers ReaderFactory, opts Options, logger *logrus.Logger, sinks ...Sink) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Profile.Name == "" {
		opts.Profile = protocol.DefaultProfile
	}
	return &Manager{
		readers:      readers,
		opts:         opts,
		sinks:        sinks,
		logger:       logger,
		integrations: hashmap.New[string, *Integration](),
	}
}

// SetupEntry performs the first refresh of e and, on success, registers its entities,
// attaches the sinks and starts polling. A failed first refresh returns a
// *coordinator.SetupError and registers nothing.
func (m *Manager) SetupEntry(ctx context.Context, e entry.Entry) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if _, ok := m.integrations.Get(e.ID); ok {
		return fmt.Errorf("%w: %s", ErrEntryLoaded, e.ID)
	}

	log := m.logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"address":  e.Address(),
	})

	c := coordinator.New(e, m.readers(e), m.opts.Profile, m.opts.Poll, m.opts.Reporter, m.logger)
	if err := c.FirstRefresh(ctx); err != nil {
		log.WithField("error", err).Warn("Entry setup failed")
		return err
	}

	in := &Integration{
		entry:       e,
		coordinator: c,
		entities:    sensor.BuildEntities(e, c),
	}

	for i, sink := range m.sinks {
		if err := sink.Attach(ctx, in); err != nil {
			for j := i - 1; j >= 0; j-- {
				if derr := m.sinks[j].Detach(ctx, in); derr != nil {
					log.WithField("error", derr).Warn("Sink detach after failed setup")
				}
			}
			c.Close()
			return fmt.Errorf("attaching sink: %w", err)
		}
	}

	// The loop must outlive the setup request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	in.cancel = cancel
	in.done = groutine.Go(runCtx, "coordinator-"+e.ID, c.Run)

	m.integrations.Set(e.ID, in)
	log.WithField("entities", len(in.entities)).Info("Entry set up")
	return nil
}

// UnloadEntry stops polling for entryID, waits for the loop to exit, detaches the sinks
// and forgets the integration.
func (m *Manager) UnloadEntry(ctx context.Context, entryID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	in, ok := m.integrations.Get(entryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotLoaded, entryID)
	}

	in.cancel()
	select {
	case <-in.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s to stop: %w", entryID, ctx.Err())
	}

	var errs []error
	for i := len(m.sinks) - 1; i >= 0; i-- {
		if err := m.sinks[i].Detach(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	in.coordinator.Close()
	m.integrations.Del(entryID)

	m.logger.WithField("entry_id", entryID).Info("Entry unloaded")
	return errors.Join(errs...)
}

// Shutdown unloads every running entry.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range m.EntryIDs() {
		if err := m.UnloadEntry(ctx, id); err != nil && !errors.Is(err, ErrEntryNotLoaded) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EntryIDs returns the IDs of the running entries.
func (m *Manager) EntryIDs() []string {
	ids := make([]string, 0, m.integrations.Len())
	m.integrations.Range(func(id string, _ *Integration) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Integration returns the running integration of entryID.
func (m *Manager) Integration(entryID string) (*Integration, bool) {
	return m.integrations.Get(entryID)
}

// Entities returns the entities of entryID, nil when it is not loaded.
func (m *Manager) Entities(entryID string) []*sensor.Entity {
	in, ok := m.integrations.Get(entryID)
	if !ok {
		return nil
	}
	return in.entities
}

// Coordinator returns the coordinator of entryID, nil when it is not loaded.
func (m *Manager) Coordinator(entryID string) *coordinator.Coordinator {
	in, ok := m.integrations.Get(entryID)
	if !ok {
		return nil
	}
	return in.coordinator
}

// Health returns the polling statistics of every running entry, keyed by entry ID.
func (m *Manager) Health() map[string]coordinator.Health {
	health := make(map[string]coordinator.Health, m.integrations.Len())
	m.integrations.Range(func(id string, in *Integration) bool {
		health[id] = in.coordinator.Health()
		return true
	})
	return health
}

// RetrySetup keeps calling SetupEntry for e until it succeeds or ctx is done, waiting
// backoff between attempts. Errors other than a failed first refresh stop the retries.
func (m *Manager) RetrySetup(ctx context.Context, e entry.Entry, backoff time.Duration) error {
	for {
		err := m.SetupEntry(ctx, e)
		var setupErr *coordinator.SetupError
		if err == nil || !errors.As(err, &setupErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", err, ctx.Err())
		case <-time.After(backoff):
		}
	}
}
