// Package simulated provides an in-memory device.FrameReader that answers with encoded frames.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/protocol"
)

// Reader emulates a thermo-hygrometer. It is safe for concurrent use.
type Reader struct {
	profile protocol.Profile

	mu       sync.Mutex
	main     protocol.ProbeReading
	external *protocol.ProbeReading
	delay    time.Duration
	failures []error
	reads    int
}

var _ device.FrameReader = (*Reader)(nil)

// NewReader creates a Reader encoding frames with profile, reporting main and external readings.
func NewReader(profile protocol.Profile, main protocol.ProbeReading, external *protocol.ProbeReading) *Reader {
	r := &Reader{profile: profile}
	r.Set(main, external)
	return r
}

// Set replaces the readings reported by subsequent reads. A nil external unplugs the probe.
func (r *Reader) Set(main protocol.ProbeReading, external *protocol.ProbeReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.main = main
	if external != nil {
		ext := *external
		r.external = &ext
	} else {
		r.external = nil
	}
}

// SetDelay makes every read take d before answering.
func (r *Reader) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// FailNext queues errors returned by the next reads, in order.
func (r *Reader) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, errs...)
}

// Reads returns the number of ReadFrame calls served.
func (r *Reader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// ReadFrame returns a freshly encoded frame, a queued failure, or ErrReadTimeout when the
// configured delay exceeds the request read timeout.
func (r *Reader) ReadFrame(ctx context.Context, req *device.ReadRequest) ([]byte, error) {
	if req == nil || req.Address == "" {
		return nil, device.ErrNoAddress
	}

	r.mu.Lock()
	r.reads++
	delay := r.delay
	var failure error
	if len(r.failures) > 0 {
		failure, r.failures = r.failures[0], r.failures[1:]
	}
	frame := r.profile.EncodeFrame(r.main, r.external)
	r.mu.Unlock()

	if failure != nil {
		return nil, failure
	}

	if delay > 0 {
		wait := delay
		timedOut := req.ReadTimeout > 0 && delay > req.ReadTimeout
		if timedOut {
			wait = req.ReadTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", device.ErrReadTimeout, ctx.Err())
		case <-timer.C:
		}
		if timedOut {
			return nil, fmt.Errorf("%w after %s", device.ErrReadTimeout, req.ReadTimeout)
		}
	}
	return frame, nil
}
