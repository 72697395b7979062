package telemetry

import "errors"

var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when telemetry is not configured.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
