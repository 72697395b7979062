package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionErrorIs(t *testing.T) {
	err := &ConnectionError{State: Unreachable, Msg: "dial AA:BB", Err: errors.New("abort")}

	assert.ErrorIs(t, err, ErrUnreachable, "MUST match sentinel by state")
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, fmt.Errorf("poll: %w", err), ErrUnreachable, "MUST match through wrapping")
	assert.Equal(t, "unreachable: dial AA:BB: abort", err.Error())
	assert.True(t, IsConnectionState(err, Unreachable))
	assert.False(t, IsConnectionState(errors.New("x"), Unreachable))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{name: "bluetooth off", input: errors.New("bluetooth is turned off"), expected: ErrBluetoothOff},
		{name: "darwin powered off", input: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), expected: ErrBluetoothOff},
		{name: "not connected", input: errors.New("Device not connected"), expected: ErrNotConnected},
		{name: "disconnected", input: errors.New("peripheral disconnected"), expected: ErrNotConnected},
		{name: "already connected", input: errors.New("device already connected"), expected: ErrAlreadyConnected},
		{name: "not initialized", input: errors.New("connection is not initialized"), expected: ErrNotInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, tt.input, "MUST preserve the original error")
		})
	}

	plain := errors.New("att: attribute not found")
	assert.Same(t, plain, NormalizeError(plain), "unknown errors MUST pass through")
	assert.Nil(t, NormalizeError(nil))
	assert.Same(t, ErrUnreachable, NormalizeError(ErrUnreachable))
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, `characteristic "fff3" not found`, (&NotFoundError{Resource: "characteristic", UUIDs: []string{"fff3"}}).Error())
	assert.Equal(t, `characteristic "fff3" not found in service "fff0"`, (&NotFoundError{Resource: "characteristic", UUIDs: []string{"fff0", "fff3"}}).Error())
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
}
