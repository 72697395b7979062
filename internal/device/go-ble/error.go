package goble

import (
	"strings"

	"github.com/srg/vivotherm/internal/device"
)

// darwinPoweredOff is the CoreBluetooth state error raised while the adapter is off.
const darwinPoweredOff = "central manager has invalid state: have=4 want=5"

// NormalizeError maps go-ble backend errors onto device.ConnectionError states.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), darwinPoweredOff) {
		return &device.ConnectionError{State: device.BluetoothOff, Err: err}
	}
	return device.NormalizeError(err)
}
