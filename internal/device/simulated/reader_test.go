package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/vivotherm/internal/device"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() *device.ReadRequest {
	return &device.ReadRequest{Address: "AA:BB:CC:DD:EE:FF", ReadTimeout: 50 * time.Millisecond}
}

func TestReaderFrames(t *testing.T) {
	r := NewReader(protocol.DefaultProfile,
		protocol.ProbeReading{TemperatureC: 21, HumidityPct: 50},
		&protocol.ProbeReading{TemperatureC: 15, HumidityPct: 80},
	)

	frame, err := r.ReadFrame(context.Background(), request())
	require.NoError(t, err)
	snapshot, err := protocol.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 21.0, snapshot.Main.TemperatureC)
	require.NotNil(t, snapshot.External)
	assert.Equal(t, 80.0, snapshot.External.HumidityPct)

	r.Set(protocol.ProbeReading{TemperatureC: 19, HumidityPct: 40}, nil)
	frame, err = r.ReadFrame(context.Background(), request())
	require.NoError(t, err)
	snapshot, err = protocol.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Nil(t, snapshot.External, "unplugged probe MUST encode the sentinel")
	assert.Equal(t, 2, r.Reads())
}

func TestReaderFailures(t *testing.T) {
	r := NewReader(protocol.DefaultProfile, protocol.ProbeReading{}, nil)
	boom := errors.New("boom")
	r.FailNext(boom, device.ErrUnreachable)

	_, err := r.ReadFrame(context.Background(), request())
	assert.ErrorIs(t, err, boom)
	_, err = r.ReadFrame(context.Background(), request())
	assert.ErrorIs(t, err, device.ErrUnreachable)
	_, err = r.ReadFrame(context.Background(), request())
	assert.NoError(t, err, "failures MUST be consumed in order")

	_, err = r.ReadFrame(context.Background(), &device.ReadRequest{})
	assert.ErrorIs(t, err, device.ErrNoAddress, "missing address MUST be reported as ErrNoAddress")
}

func TestReaderTimeout(t *testing.T) {
	r := NewReader(protocol.DefaultProfile, protocol.ProbeReading{}, nil)
	r.SetDelay(time.Second)

	_, err := r.ReadFrame(context.Background(), request())
	assert.ErrorIs(t, err, device.ErrReadTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := request()
	req.ReadTimeout = 0
	_, err = r.ReadFrame(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
