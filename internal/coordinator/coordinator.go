package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/groutine"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/ringchan"
)

// Pollable produces one fresh snapshot per call.
type Pollable interface {
	Update(ctx context.Context) (*protocol.Snapshot, error)
}

// Options tune the polling loop. Zero fields take their defaults.
type Options struct {
	Interval       time.Duration `default:"60s"`
	ConnectTimeout time.Duration `default:"30s"`
	ReadTimeout    time.Duration `default:"1s"`
}

// Update is delivered to subscribers after each successful cycle.
type Update struct {
	EntryID  string
	Snapshot *protocol.Snapshot
	At       time.Time
}

// Health summarises polling outcomes for diagnostics.
type Health struct {
	LastSuccess         time.Time `json:"last_success"`
	LastFailure         time.Time `json:"last_failure"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalPolls          int64     `json:"total_polls"`
	TotalFailures       int64     `json:"total_failures"`
}

// Coordinator owns the polling schedule and the cached snapshot of one entry.
type Coordinator struct {
	entry    entry.Entry
	reader   device.FrameReader
	profile  protocol.Profile
	opts     Options
	reporter Reporter
	logger   *logrus.Logger

	cycle    sync.Mutex // held while a read cycle is in flight
	snapshot atomic.Pointer[protocol.Snapshot]

	healthMu sync.Mutex
	health   Health

	subsMu sync.Mutex
	subs   []*ringchan.RingChannel[Update]
	closed bool

	now func() time.Time
}

var _ Pollable = (*Coordinator)(nil)

// New creates a Coordinator for e reading through reader. A nil reporter logs through logger.
func New(e entry.Entry, reader device.FrameReader, profile protocol.Profile, opts Options, reporter Reporter, logger *logrus.Logger) *Coordinator {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
	}
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	return &Coordinator{
		entry:    e,
		reader:   reader,
		profile:  profile,
		opts:     opts,
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Entry returns the entry the coordinator polls.
func (c *Coordinator) Entry() entry.Entry {
	return c.entry
}

// Identity returns the configured device identity.
func (c *Coordinator) Identity() entry.DeviceIdentity {
	return c.entry.Data
}

// Options returns the effective options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// Snapshot returns the latest successful snapshot, or nil before the first one.
func (c *Coordinator) Snapshot() *protocol.Snapshot {
	return c.snapshot.Load()
}

// Health returns a copy of the polling statistics.
func (c *Coordinator) Health() Health {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	return c.health
}

// Update performs one read-decode exchange without touching the cache.
func (c *Coordinator) Update(ctx context.Context) (*protocol.Snapshot, error) {
	frame, err := c.reader.ReadFrame(ctx, &device.ReadRequest{
		Address:               c.entry.Address(),
		Command:               protocol.Command,
		CommandCharacteristic: protocol.CommandCharacteristic,
		StatusCharacteristic:  protocol.StatusCharacteristic,
		ConnectTimeout:        c.opts.ConnectTimeout,
		ReadTimeout:           c.opts.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	snapshot, err := c.profile.DecodeFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("decoding %d byte frame with profile %s: %w", len(frame), c.profile.Name, err)
	}
	return snapshot, nil
}

// FirstRefresh runs the initial cycle. Its failure is a *SetupError.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return &SetupError{EntryID: c.entry.ID, Address: c.entry.Address(), Err: err}
	}
	return nil
}

// Refresh runs one cycle, waiting for an in-flight cycle to finish first.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.cycle.Lock()
	defer c.cycle.Unlock()
	return c.refresh(ctx)
}

// refresh must be called with c.cycle held.
func (c *Coordinator) refresh(ctx context.Context) error {
	log := c.logger.WithFields(logrus.Fields{
		"entry_id": c.entry.ID,
		"address":  c.entry.Address(),
	})

	snapshot, err := c.Update(ctx)
	at := c.now()
	if err != nil {
		consecutive := c.recordFailure(at, err)
		c.reporter.PollFailed(c.entry, err, consecutive)
		return err
	}

	c.snapshot.Store(snapshot)
	if failures := c.recordSuccess(at); failures > 0 {
		c.reporter.PollRecovered(c.entry, failures)
	}
	log.WithField("external", snapshot.External != nil).Debug("Snapshot refreshed")

	c.publish(Update{EntryID: c.entry.ID, Snapshot: snapshot, At: at})
	return nil
}

func (c *Coordinator) recordFailure(at time.Time, err error) int {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.health.TotalPolls++
	c.health.TotalFailures++
	c.health.ConsecutiveFailures++
	c.health.LastFailure = at
	c.health.LastError = err.Error()
	return c.health.ConsecutiveFailures
}

// recordSuccess returns the failure streak the success ended.
func (c *Coordinator) recordSuccess(at time.Time) int {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	streak := c.health.ConsecutiveFailures
	c.health.TotalPolls++
	c.health.ConsecutiveFailures = 0
	c.health.LastSuccess = at
	return streak
}

// Run refreshes every Interval until ctx is done. A tick that fires while the previous
// cycle is still running is skipped. Run returns after the in-flight cycle ends.
func (c *Coordinator) Run(ctx context.Context) {
	log := c.logger.WithFields(logrus.Fields{
		"entry_id": c.entry.ID,
		"interval": c.opts.Interval,
	})
	log.Info("Polling started")

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info("Polling stopped")
			return
		case <-ticker.C:
			if !c.cycle.TryLock() {
				log.Warn("Previous poll still running, skipping tick")
				continue
			}
			inFlight.Add(1)
			groutine.Go(ctx, "poll-"+c.entry.ID, func(ctx context.Context) {
				defer inFlight.Done()
				defer c.cycle.Unlock()
				_ = c.refresh(ctx) // reported through Reporter and Health
			})
		}
	}
}

// Subscribe returns a channel receiving every future Update. Slow readers lose the oldest
// updates; the coordinator never blocks on them.
func (c *Coordinator) Subscribe(capacity int) *ringchan.RingChannel[Update] {
	if capacity <= 0 {
		capacity = 1
	}
	rc := ringchan.New[Update](capacity)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed {
		rc.Close()
		return rc
	}
	c.subs = append(c.subs, rc)
	return rc
}

// Unsubscribe stops deliveries to rc and closes it.
func (c *Coordinator) Unsubscribe(rc *ringchan.RingChannel[Update]) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, sub := range c.subs {
		if sub == rc {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	rc.Close()
}

// Close closes every subscriber channel. Later subscriptions are returned closed.
func (c *Coordinator) Close() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		sub.Close()
	}
	c.subs = nil
	c.closed = true
}

func (c *Coordinator) publish(u Update) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		if sub.Send(u) {
			c.logger.WithField("entry_id", u.EntryID).Debug("Subscriber lagging, dropped oldest update")
		}
	}
}
