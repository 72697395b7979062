package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/groutine"
)

// healthChecker is implemented by the store and by every output client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// entryHealth is implemented by *runtime.Manager.
type entryHealth interface {
	Health() map[string]coordinator.Health
}

type healthCheck struct {
	name    string
	checker healthChecker
	fields  func() logrus.Fields
}

// componentHealth is the outcome of one check.
type componentHealth struct {
	Err    error
	Fields logrus.Fields
}

type healthReport struct {
	Components map[string]componentHealth
	Entries    map[string]coordinator.Health
}

// healthMonitor periodically logs the state of the outputs and of every polled device.
type healthMonitor struct {
	checks  []healthCheck
	entries entryHealth
	logger  *logrus.Logger
}

func newHealthMonitor(logger *logrus.Logger) *healthMonitor {
	return &healthMonitor{logger: logger}
}

// add registers a component; fields, when set, adds details to its log line.
func (m *healthMonitor) add(name string, checker healthChecker, fields func() logrus.Fields) {
	m.checks = append(m.checks, healthCheck{name: name, checker: checker, fields: fields})
}

func (m *healthMonitor) report(ctx context.Context) healthReport {
	r := healthReport{Components: make(map[string]componentHealth, len(m.checks))}
	for _, c := range m.checks {
		h := componentHealth{Err: c.checker.HealthCheck(ctx)}
		if c.fields != nil {
			h.Fields = c.fields()
		}
		r.Components[c.name] = h
	}
	if m.entries != nil {
		r.Entries = m.entries.Health()
	}
	return r
}

func (m *healthMonitor) log(ctx context.Context, r healthReport) {
	log := m.logger.WithField("goroutine", groutine.GetName(ctx))

	for name, h := range r.Components {
		l := log.WithField("component", name).WithFields(h.Fields)
		if h.Err != nil {
			l.WithField("error", h.Err).Warn("Component unhealthy")
			continue
		}
		l.Debug("Component healthy")
	}

	for id, h := range r.Entries {
		l := log.WithFields(logrus.Fields{
			"entry_id":             id,
			"last_success":         h.LastSuccess,
			"consecutive_failures": h.ConsecutiveFailures,
			"total_polls":          h.TotalPolls,
			"total_failures":       h.TotalFailures,
		})
		if h.ConsecutiveFailures > 0 {
			l.WithField("last_error", h.LastError).Warn("Device failing")
			continue
		}
		l.Info("Device healthy")
	}
}

// start logs a report every interval until ctx is done.
func (m *healthMonitor) start(ctx context.Context, interval time.Duration) <-chan struct{} {
	return groutine.Go(ctx, "health", func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.log(ctx, m.report(ctx))
			}
		}
	})
}
