// Package device defines the BLE abstractions the poller depends on.
//
// It provides:
//   - The FrameReader contract for the one-shot command/notification exchange
//   - Scanner and Advertisement for passive discovery
//   - A structured error taxonomy (ConnectionError states, ErrReadTimeout, NotFoundError)
//   - UUID normalization shared by every backend
//
// The go-ble backed implementation lives in the go-ble subpackage.
package device
