package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/vivotherm/internal/protocol"
)

const (
	// TestAddress is the peripheral address used across tests.
	TestAddress = "AA:BB:CC:DD:EE:FF"

	// TestDiscoveryName is the advertised name of a catalogued thermo-hygrometer.
	TestDiscoveryName = "ThermoBeacon2"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Frame encodes a default-profile frame. A nil external marks the external probe unplugged.
func Frame(main protocol.ProbeReading, external *protocol.ProbeReading) []byte {
	return protocol.DefaultProfile.EncodeFrame(main, external)
}

// BothProbesFrame carries main 22.5°C/65% and external 18°C/70%.
func BothProbesFrame() []byte {
	return Frame(
		protocol.ProbeReading{TemperatureC: 22.5, HumidityPct: 65},
		&protocol.ProbeReading{TemperatureC: 18, HumidityPct: 70},
	)
}

// MainOnlyFrame carries main 22.5°C/65% with the external probe unplugged.
func MainOnlyFrame() []byte {
	return Frame(protocol.ProbeReading{TemperatureC: 22.5, HumidityPct: 65}, nil)
}
