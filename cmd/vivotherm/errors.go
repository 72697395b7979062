package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/vivotherm/internal/configflow"
	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/mqtt"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/telemetry"
	"github.com/srg/vivotherm/pkg/config"
)

// FormatUserError turns typed errors into a one-line message for the terminal. Unknown
// errors are returned verbatim.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var setupErr *coordinator.SetupError
	if errors.As(err, &setupErr) {
		return fmt.Sprintf("device %s did not answer during setup: %s", setupErr.Address, FormatUserError(setupErr.Err))
	}

	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable the adapter and try again"
	case errors.Is(err, device.ErrUnreachable):
		return "device is unreachable; make sure it is powered and in range"
	case errors.Is(err, device.ErrReadTimeout):
		return "device did not send a reading in time; try again or raise --timeout"
	case errors.Is(err, device.ErrNoAddress):
		return "no device address given; see 'vivotherm scan'"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform; use --simulate"
	case errors.As(err, &notFound):
		return fmt.Sprintf("device does not look like a THB1S: %s", notFound.Error())
	case errors.Is(err, protocol.ErrShortFrame):
		return fmt.Sprintf("device sent a truncated reading (%s)", err)
	case errors.Is(err, protocol.ErrUnknownProfile):
		return err.Error()
	case errors.Is(err, configflow.ErrAlreadyConfigured):
		return "device is already configured"
	case errors.Is(err, entry.ErrNotFound):
		return "no such entry; see 'vivotherm entries list'"
	case errors.Is(err, mqtt.ErrConnectionFailed):
		return fmt.Sprintf("cannot reach the MQTT broker: %s", err)
	case errors.Is(err, telemetry.ErrConnectionFailed):
		return fmt.Sprintf("cannot reach InfluxDB: %s", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	}
	return err.Error()
}
