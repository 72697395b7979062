package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

var shared struct {
	mu  sync.Mutex
	dev ble.Device
}

// acquireDevice returns the process-wide BLE device, creating it on first use.
// The host controller supports a single owner, so sessions and scanners share it.
func acquireDevice() (ble.Device, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.dev != nil {
		return shared.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	shared.dev = dev
	return dev, nil
}

// ReleaseDevice stops the shared BLE device if one was created.
func ReleaseDevice() error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.dev == nil {
		return nil
	}
	err := shared.dev.Stop()
	shared.dev = nil
	return err
}
