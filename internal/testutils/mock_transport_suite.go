//go:build test

package testutils

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	goble "github.com/srg/vivotherm/internal/device/go-ble"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/stretchr/testify/suite"
)

// MockTransportSuite provides a reusable test suite with a mocked go-ble dialer.
//
// Usage:
//
//	type ReadSuite struct {
//	    testutils.MockTransportSuite
//	}
//
//	func (s *ReadSuite) SetupTest() {
//	    s.WithPeripheral().WithNotification(frame) // configure first
//	    s.MockTransportSuite.SetupTest()           // then apply
//	}
type MockTransportSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	PeripheralBuilder *PeripheralBuilder
	Client            *MockClient // client handed out by the most recent dial
	DialErr           error       // when set, every dial fails with it
	Dials             atomic.Int32

	originalDial func(ctx context.Context, address string) (goble.Client, error)
}

// SetupSuite initializes the logger and remembers the production dialer.
func (s *MockTransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.originalDial = goble.Dial

	s.T().Cleanup(func() {
		goble.Dial = s.originalDial
	})
}

// SetupTest installs a dialer that returns a fresh MockClient per connection.
func (s *MockTransportSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder(protocol.CommandCharacteristic, protocol.StatusCharacteristic)
	}
	s.Dials.Store(0)

	builder := s.PeripheralBuilder
	goble.Dial = func(ctx context.Context, address string) (goble.Client, error) {
		s.Dials.Add(1)
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.Client = builder.Build()
		return s.Client, nil
	}
}

// TearDownTest restores the dialer and resets per-test configuration.
func (s *MockTransportSuite) TearDownTest() {
	goble.Dial = s.originalDial
	s.PeripheralBuilder = nil
	s.Client = nil
	s.DialErr = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockTransportSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder(protocol.CommandCharacteristic, protocol.StatusCharacteristic)
	}
	return s.PeripheralBuilder
}
