package main

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/vivotherm/internal/device"
	goble "github.com/srg/vivotherm/internal/device/go-ble"
	"github.com/srg/vivotherm/internal/device/simulated"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/runtime"
	"github.com/srg/vivotherm/pkg/config"
)

// newReaders returns the reader factory for entries: one go-ble session per device
// address, or one in-memory device answering for every address.
func newReaders(cfg *config.Config, profile protocol.Profile, logger *logrus.Logger) runtime.ReaderFactory {
	if cfg.BLE.Simulate {
		sim := simulated.NewReader(profile,
			protocol.ProbeReading{TemperatureC: 23.4, HumidityPct: 58.2},
			&protocol.ProbeReading{TemperatureC: 21.1, HumidityPct: 64.5},
		)
		return func(entry.Entry) device.FrameReader { return sim }
	}
	pool := goble.NewPool(logger)
	return func(e entry.Entry) device.FrameReader { return pool.Session(e.Address()) }
}

func newScanner(cfg *config.Config) (device.Scanner, error) {
	if cfg.BLE.Simulate {
		return simulated.NewScanner(), nil
	}
	return goble.NewScanner()
}

// releaseRadio stops the shared adapter, if one was opened.
func releaseRadio(cfg *config.Config, logger *logrus.Logger) {
	if cfg.BLE.Simulate {
		return
	}
	if err := goble.ReleaseDevice(); err != nil {
		logger.WithField("error", err).Debug("Releasing Bluetooth adapter")
	}
}
