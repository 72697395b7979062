package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/vivotherm/internal/coordinator"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type staticHealth map[string]coordinator.Health

func (h staticHealth) Health() map[string]coordinator.Health { return h }

func TestHealthMonitorReport(t *testing.T) {
	down := errors.New("not connected")
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	m := newHealthMonitor(logger)
	m.add("store", checkerFunc(func(context.Context) error { return nil }), nil)
	m.add("mqtt", checkerFunc(func(context.Context) error { return down }), func() logrus.Fields {
		return logrus.Fields{"subscriptions": 1}
	})
	m.entries = staticHealth{
		"entry-1": {TotalPolls: 3},
		"entry-2": {TotalPolls: 2, ConsecutiveFailures: 2, LastError: "unreachable"},
	}

	r := m.report(context.Background())
	require.Len(t, r.Components, 2)
	assert.NoError(t, r.Components["store"].Err)
	assert.ErrorIs(t, r.Components["mqtt"].Err, down)
	assert.Equal(t, 1, r.Components["mqtt"].Fields["subscriptions"])
	assert.Len(t, r.Entries, 2, "every running entry MUST be reported")

	m.log(context.Background(), r)

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.ElementsMatch(t, []string{"Component unhealthy", "Device failing"}, warnings)
}

func TestHealthMonitorStart(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := newHealthMonitor(logger)
	m.entries = staticHealth{"entry-1": {TotalPolls: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	done := m.start(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "Device healthy" {
				return e.Data["goroutine"] == "health"
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "periodic report MUST be logged from the named goroutine")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor MUST stop when its context is cancelled")
	}
}
