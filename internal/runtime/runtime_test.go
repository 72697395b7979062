//go:build test

package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/device/simulated"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/runtime"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Attach(ctx context.Context, in *runtime.Integration) error {
	return m.Called(in.Entry().ID).Error(0)
}

func (m *mockSink) Detach(ctx context.Context, in *runtime.Integration) error {
	return m.Called(in.Entry().ID).Error(0)
}

type RuntimeTestSuite struct {
	suite.Suite
	reader *simulated.Reader
	sink   *mockSink
	entry  entry.Entry
	logger *logrus.Logger
}

func (s *RuntimeTestSuite) SetupTest() {
	s.reader = simulated.NewReader(protocol.DefaultProfile,
		protocol.ProbeReading{TemperatureC: 22.5, HumidityPct: 65}, nil)
	s.sink = &mockSink{}
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.entry = entry.Entry{
		ID:       "entry-1",
		Version:  entry.CurrentVersion,
		Title:    "Grow Tent",
		UniqueID: "ThermoBeacon2-AA:BB:CC:DD:EE:FF",
		Data: entry.DeviceIdentity{
			Name:             "Grow Tent",
			DiscoveryName:    "ThermoBeacon2",
			DiscoveryAddress: "AA:BB:CC:DD:EE:FF",
		},
	}
}

func (s *RuntimeTestSuite) newManager(sinks ...runtime.Sink) *runtime.Manager {
	readers := func(entry.Entry) device.FrameReader { return s.reader }
	return runtime.NewManager(readers, runtime.Options{
		Poll: coordinator.Options{Interval: 10 * time.Millisecond},
	}, s.logger, sinks...)
}

// TestSetupAndUnload verifies the full entry lifecycle.
func (s *RuntimeTestSuite) TestSetupAndUnload() {
	// GOAL: Verify setup registers entities and attaches sinks, unload reverses it
	//
	// TEST SCENARIO: Setup a healthy entry → six entities, polling runs → unload → sink detached, registry empty

	s.sink.On("Attach", "entry-1").Return(nil).Once()
	s.sink.On("Detach", "entry-1").Return(nil).Once()
	m := s.newManager(s.sink)
	ctx := context.Background()

	s.Require().NoError(m.SetupEntry(ctx, s.entry))
	s.Len(m.Entities("entry-1"), 6, "MUST register every probe and metric")
	s.NotNil(m.Coordinator("entry-1"))
	s.Equal([]string{"entry-1"}, m.EntryIDs())

	s.Eventually(func() bool { return s.reader.Reads() >= 3 }, time.Second, 5*time.Millisecond,
		"polling loop MUST be running after setup")

	s.Require().NoError(m.UnloadEntry(ctx, "entry-1"))
	s.Nil(m.Coordinator("entry-1"))
	s.Empty(m.EntryIDs())

	reads := s.reader.Reads()
	time.Sleep(30 * time.Millisecond)
	s.Equal(reads, s.reader.Reads(), "polling MUST stop after unload")
	s.sink.AssertExpectations(s.T())
}

// TestSetupFailureRegistersNothing verifies that a failed first refresh aborts setup.
func (s *RuntimeTestSuite) TestSetupFailureRegistersNothing() {
	// GOAL: Verify first-refresh failure surfaces a setup error and leaves no trace
	//
	// TEST SCENARIO: Reader times out → SetupError → no entities, sinks untouched

	s.reader.FailNext(device.ErrReadTimeout)
	m := s.newManager(s.sink)

	err := m.SetupEntry(context.Background(), s.entry)

	var setupErr *coordinator.SetupError
	s.Require().ErrorAs(err, &setupErr)
	s.ErrorIs(err, device.ErrReadTimeout)
	s.Nil(m.Entities("entry-1"))
	s.sink.AssertNotCalled(s.T(), "Attach", mock.Anything)
}

// TestSinkFailureRollsBack verifies earlier sinks are detached when a later sink fails.
func (s *RuntimeTestSuite) TestSinkFailureRollsBack() {
	// GOAL: Verify partial sink attachment is undone
	//
	// TEST SCENARIO: First sink attaches, second fails → first detached, entry not loaded

	failing := &mockSink{}
	failing.On("Attach", "entry-1").Return(errors.New("broker down")).Once()
	s.sink.On("Attach", "entry-1").Return(nil).Once()
	s.sink.On("Detach", "entry-1").Return(nil).Once()
	m := s.newManager(s.sink, failing)

	err := m.SetupEntry(context.Background(), s.entry)

	s.ErrorContains(err, "broker down")
	s.Empty(m.EntryIDs())
	s.sink.AssertExpectations(s.T())
	failing.AssertNotCalled(s.T(), "Detach", mock.Anything)
}

func (s *RuntimeTestSuite) TestDuplicateAndUnknownEntries() {
	m := s.newManager()
	ctx := context.Background()

	s.Require().NoError(m.SetupEntry(ctx, s.entry))
	s.ErrorIs(m.SetupEntry(ctx, s.entry), runtime.ErrEntryLoaded)
	s.ErrorIs(m.UnloadEntry(ctx, "missing"), runtime.ErrEntryNotLoaded)
	s.Require().NoError(m.Shutdown(ctx))
	s.Empty(m.EntryIDs())
}

// TestHealth verifies the per-entry polling statistics.
func (s *RuntimeTestSuite) TestHealth() {
	m := s.newManager()
	ctx := context.Background()
	s.Empty(m.Health())

	s.Require().NoError(m.SetupEntry(ctx, s.entry))
	health := m.Health()
	s.Require().Contains(health, "entry-1")
	s.GreaterOrEqual(health["entry-1"].TotalPolls, int64(1), "first refresh MUST be counted")
	s.False(health["entry-1"].LastSuccess.IsZero())

	s.Require().NoError(m.Shutdown(ctx))
	s.Empty(m.Health(), "unloaded entries MUST NOT be reported")
}

// TestShutdownUnloadsAll verifies Shutdown stops every integration.
func (s *RuntimeTestSuite) TestShutdownUnloadsAll() {
	s.sink.On("Attach", mock.Anything).Return(nil)
	s.sink.On("Detach", mock.Anything).Return(nil)
	m := s.newManager(s.sink)
	ctx := context.Background()

	second := s.entry
	second.ID = "entry-2"
	s.Require().NoError(m.SetupEntry(ctx, s.entry))
	s.Require().NoError(m.SetupEntry(ctx, second))
	s.Len(m.EntryIDs(), 2)

	s.Require().NoError(m.Shutdown(ctx))
	s.Empty(m.EntryIDs())
	s.sink.AssertNumberOfCalls(s.T(), "Detach", 2)
}

// TestRetrySetup verifies setup is retried while the device is unreachable.
func (s *RuntimeTestSuite) TestRetrySetup() {
	// GOAL: Verify not-ready entries are retried until the first refresh succeeds
	//
	// TEST SCENARIO: Two failed reads → third attempt succeeds → entry loaded

	s.reader.FailNext(device.ErrReadTimeout, device.ErrUnreachable)
	m := s.newManager()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.Require().NoError(m.RetrySetup(ctx, s.entry, time.Millisecond))
	s.Len(m.Entities("entry-1"), 6)
	s.Require().NoError(m.Shutdown(context.Background()))
}

func (s *RuntimeTestSuite) TestRetrySetupGivesUpOnCancel() {
	s.reader.SetDelay(time.Hour)
	m := runtime.NewManager(func(entry.Entry) device.FrameReader { return s.reader }, runtime.Options{
		Poll: coordinator.Options{ReadTimeout: time.Millisecond},
	}, s.logger)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.RetrySetup(ctx, s.entry, 5*time.Millisecond)

	s.ErrorIs(err, context.DeadlineExceeded)
	s.Empty(m.EntryIDs())
}

func TestRuntimeTestSuite(t *testing.T) {
	suite.Run(t, new(RuntimeTestSuite))
}
