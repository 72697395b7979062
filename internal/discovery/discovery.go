// Package discovery scans for advertising thermo-hygrometers and turns advertisements into
// config-flow discoveries.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/configflow"
	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// EventType marks whether a device was newly discovered or seen again.
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

type Event struct {
	Type      EventType
	Discovery Discovery
}

// Discovery is the latest advertisement of one address.
type Discovery struct {
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	RSSI             int       `json:"rssi"`
	Connectable      bool      `json:"connectable"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Services         []string  `json:"services,omitempty"`
	Supported        bool      `json:"supported"`
	LastSeen         time.Time `json:"last_seen"`
	Seen             int       `json:"seen"`
}

// Info converts d into the input of a config flow.
func (d Discovery) Info() configflow.DiscoveryInfo {
	return configflow.DiscoveryInfo{
		Name:             d.Name,
		Address:          d.Address,
		RSSI:             d.RSSI,
		ManufacturerData: d.ManufacturerData,
		ServiceUUIDs:     d.Services,
	}
}

// Options configure a scan.
type Options struct {
	Duration        time.Duration
	DuplicateFilter bool
	// SupportedOnly drops devices whose advertised name is not catalogued.
	SupportedOnly bool
	AllowList     []string
	BlockList     []string
}

func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
		SupportedOnly:   true,
	}
}

// Scanner collects advertisements into a deduplicated set of discoveries.
type Scanner struct {
	scanner device.Scanner
	logger  *logrus.Logger
	events  *ringchan.RingChannel[Event]
	now     func() time.Time

	devices *hashmap.Map[string, *Discovery]
	opts    *Options
}

// NewScanner creates a Scanner on top of a transport scanner.
func NewScanner(s device.Scanner, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		scanner: s,
		logger:  logger,
		events:  ringchan.New[Event](100),
		now:     time.Now,
	}
}

// Scan listens for opts.Duration (or until ctx is done) and returns the discoveries,
// strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *Options, progress ProgressCallback) ([]Discovery, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}
	s.devices = hashmap.New[string, *Discovery]()
	s.opts = opts
	defer func() { s.opts = nil }()

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progress("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}
	if err := s.scanner.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress("Processing results")
	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	result := make([]Discovery, 0, s.devices.Len())
	s.devices.Range(func(_ string, d *Discovery) bool {
		result = append(result, *d)
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].RSSI != result[j].RSSI {
			return result[i].RSSI > result[j].RSSI
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// Events returns a channel of discovery events. Slow readers lose the oldest events.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	addr := strings.ToUpper(adv.Addr())

	d, existing := s.devices.Get(addr)
	if !existing {
		if !s.shouldInclude(adv, addr) {
			return
		}
		// Advertisements arrive on the single scan goroutine, so Get then Set is race free.
		d = &Discovery{Address: addr}
		s.devices.Set(addr, d)
	}

	// Some stacks send the name only in the scan response.
	if name := adv.LocalName(); name != "" {
		d.Name = name
		d.Supported = catalog.IsSupported(name)
	}
	d.RSSI = adv.RSSI()
	d.Connectable = adv.Connectable()
	if md := adv.ManufacturerData(); len(md) > 0 {
		d.ManufacturerData = md
	}
	if svcs := adv.Services(); len(svcs) > 0 {
		d.Services = svcs
	}
	d.LastSeen = s.now()
	d.Seen++

	event := Event{Type: EventUpdated, Discovery: *d}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":    d.Name,
			"address":   d.Address,
			"rssi":      d.RSSI,
			"supported": d.Supported,
		}).Info("Discovered new device")
	}
	s.events.Send(event)
}

func (s *Scanner) shouldInclude(adv device.Advertisement, addr string) bool {
	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(s.opts.AllowList) > 0 {
		allowed := false
		for _, a := range s.opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if s.opts.SupportedOnly && !catalog.IsSupported(adv.LocalName()) {
		return false
	}
	return true
}
