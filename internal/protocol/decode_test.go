package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bothProbesFrame carries main 22.5°C/65% and external 18°C/70% in the v2 layout.
var bothProbesFrame = []byte{0x00, 0x68, 0x01, 0x10, 0x04, 0x00, 0x00, 0x20, 0x01, 0x60, 0x04}

// mainOnlyFrame carries main 22.5°C/65% with the external probe unplugged.
var mainOnlyFrame = []byte{0x00, 0x68, 0x01, 0x10, 0x04, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}

func TestDecodeInt16LE(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		offset   int
		expected int16
	}{
		{name: "positive", buf: []byte{0x68, 0x01}, offset: 0, expected: 360},
		{name: "sentinel", buf: []byte{0xFF, 0xFF}, offset: 0, expected: -1},
		{name: "negative", buf: []byte{0x00, 0x60, 0xFF}, offset: 1, expected: -160},
		{name: "max", buf: []byte{0xFF, 0x7F}, offset: 0, expected: math.MaxInt16},
		{name: "min", buf: []byte{0x00, 0x80}, offset: 0, expected: math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeInt16LE(tt.buf, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestDecodeInt16LEOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		offset int
	}{
		{name: "empty buffer", buf: nil, offset: 0},
		{name: "last byte", buf: []byte{0x01, 0x02, 0x03}, offset: 2},
		{name: "past end", buf: []byte{0x01, 0x02}, offset: 5},
		{name: "negative offset", buf: []byte{0x01, 0x02}, offset: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInt16LE(tt.buf, tt.offset)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShortFrame), "error MUST match ErrShortFrame")

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tt.offset, decodeErr.Offset)
			assert.Equal(t, len(tt.buf), decodeErr.Length)
		})
	}
}

func TestDecodeFixedPoint(t *testing.T) {
	// Every raw value that is a multiple of 16 must decode exactly.
	for raw := int16(-4096); raw <= 4096; raw += 16 {
		buf := make([]byte, 2)
		putInt16LE(buf, 0, raw)

		v, err := DecodeFixedPoint(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(raw)/16.0, v)
	}

	v, err := DecodeFixedPoint([]byte{0x68, 0x01}, 0)
	require.NoError(t, err)
	assert.Equal(t, 22.5, v)

	v, err = DecodeFixedPoint([]byte{0x01, 0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0625, v, "1/16 resolution MUST be preserved without rounding")
}

func TestComputeVPD(t *testing.T) {
	t.Run("saturated air has no deficit", func(t *testing.T) {
		for temp := -20.0; temp <= 50.0; temp += 2.5 {
			assert.InDelta(t, 0.0, ComputeVPD(temp, 100.0), 0.01, "temp=%v", temp)
		}
	})

	t.Run("monotonically decreasing in humidity", func(t *testing.T) {
		for _, temp := range []float64{-5, 10, 22.5, 35} {
			prev := math.Inf(1)
			for humidity := 0.0; humidity <= 100.0; humidity += 5 {
				vpd := ComputeVPD(temp, humidity)
				assert.Less(t, vpd, prev, "temp=%v humidity=%v", temp, humidity)
				prev = vpd
			}
		}
	})

	t.Run("reference values", func(t *testing.T) {
		assert.InDelta(t, 0.95, ComputeVPD(22.5, 65.0), 0.01)
		assert.InDelta(t, 0.62, ComputeVPD(18.0, 70.0), 0.01)
		assert.InDelta(t, 0.61078, ComputeVPD(0, 0), 1e-9, "dry air at 0°C MUST equal the base pressure")
	})

	t.Run("matches the pascal formulation", func(t *testing.T) {
		temp, humidity := 24.0, 55.0
		pascal := 610.78 * math.Pow(10, (7.5*temp)/(237.3+temp))
		expected := (pascal - pascal*humidity/100) / 1000
		assert.InDelta(t, expected, ComputeVPD(temp, humidity), 1e-12)
	})
}

func TestDecodeFrame(t *testing.T) {
	t.Run("both probes", func(t *testing.T) {
		snapshot, err := DecodeFrame(bothProbesFrame)
		require.NoError(t, err)

		assert.Equal(t, 22.5, snapshot.Main.TemperatureC)
		assert.Equal(t, 65.0, snapshot.Main.HumidityPct)
		assert.InDelta(t, 0.95, snapshot.Main.VPDKPa, 0.01)

		require.NotNil(t, snapshot.External, "external probe MUST be present")
		assert.Equal(t, 18.0, snapshot.External.TemperatureC)
		assert.Equal(t, 70.0, snapshot.External.HumidityPct)
		assert.InDelta(t, 0.62, snapshot.External.VPDKPa, 0.01)
	})

	t.Run("external probe unplugged", func(t *testing.T) {
		snapshot, err := DecodeFrame(mainOnlyFrame)
		require.NoError(t, err)
		assert.Equal(t, 22.5, snapshot.Main.TemperatureC)
		assert.Nil(t, snapshot.External, "external probe MUST be absent when both fields are -1")
	})

	t.Run("a single sentinel field drops the probe", func(t *testing.T) {
		frame := append([]byte(nil), bothProbesFrame...)
		frame[7], frame[8] = 0xFF, 0xFF

		snapshot, err := DecodeFrame(frame)
		require.NoError(t, err)
		assert.Nil(t, snapshot.External, "sentinel temperature MUST mark the external probe absent")
		assert.Equal(t, 22.5, snapshot.Main.TemperatureC, "main probe MUST still decode")

		frame = append([]byte(nil), bothProbesFrame...)
		frame[9], frame[10] = 0xFF, 0xFF

		snapshot, err = DecodeFrame(frame)
		require.NoError(t, err)
		assert.Nil(t, snapshot.External, "sentinel humidity MUST mark the external probe absent")
	})

	t.Run("short frame", func(t *testing.T) {
		_, err := DecodeFrame(bothProbesFrame[:9])
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrShortFrame)
		assert.Contains(t, err.Error(), "external probe")

		_, err = DecodeFrame(bothProbesFrame[:3])
		assert.ErrorIs(t, err, ErrShortFrame)
		assert.Contains(t, err.Error(), "main probe")
	})

	t.Run("longer frames are accepted", func(t *testing.T) {
		frame := append(append([]byte(nil), bothProbesFrame...), 0xAA, 0xBB)
		snapshot, err := DecodeFrame(frame)
		require.NoError(t, err)
		assert.NotNil(t, snapshot.External)
	})
}

func TestProfileV1Layout(t *testing.T) {
	// Same bytes, v1 reads humidity at 7 and the external temperature at 3.
	snapshot, err := ProfileV1.DecodeFrame(bothProbesFrame)
	require.NoError(t, err)

	assert.Equal(t, 22.5, snapshot.Main.TemperatureC)
	assert.Equal(t, 18.0, snapshot.Main.HumidityPct)
	require.NotNil(t, snapshot.External)
	assert.Equal(t, 65.0, snapshot.External.TemperatureC)
	assert.Equal(t, 70.0, snapshot.External.HumidityPct)
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	readings := []ProbeReading{
		{TemperatureC: 22.5, HumidityPct: 65},
		{TemperatureC: -7.3, HumidityPct: 12.34},
		{TemperatureC: 0, HumidityPct: 100},
		{TemperatureC: 41.07, HumidityPct: 0.5},
	}

	for _, profile := range []Profile{ProfileV1, ProfileV2} {
		for _, main := range readings {
			for _, ext := range readings {
				external := ext
				frame := profile.EncodeFrame(main, &external)
				require.Len(t, frame, FrameLength)

				snapshot, err := profile.DecodeFrame(frame)
				require.NoError(t, err)

				resolution := 1.0 / 16.0
				assert.InDelta(t, main.TemperatureC, snapshot.Main.TemperatureC, resolution/2)
				assert.InDelta(t, main.HumidityPct, snapshot.Main.HumidityPct, resolution/2)
				require.NotNil(t, snapshot.External, "profile=%s", profile.Name)
				assert.InDelta(t, ext.TemperatureC, snapshot.External.TemperatureC, resolution/2)
				assert.InDelta(t, ext.HumidityPct, snapshot.External.HumidityPct, resolution/2)
			}

			snapshot, err := profile.DecodeFrame(profile.EncodeFrame(main, nil))
			require.NoError(t, err)
			assert.Nil(t, snapshot.External)
		}
	}

	assert.Equal(t, bothProbesFrame, ProfileV2.EncodeFrame(
		ProbeReading{TemperatureC: 22.5, HumidityPct: 65},
		&ProbeReading{TemperatureC: 18, HumidityPct: 70},
	))
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p)

	p, err = LookupProfile("thb1s-v1")
	require.NoError(t, err)
	assert.Equal(t, ProfileV1, p)

	_, err = LookupProfile("thb9")
	assert.ErrorIs(t, err, ErrUnknownProfile)
	assert.Contains(t, err.Error(), "thb1s-v2")

	assert.Equal(t, []string{"thb1s-v1", "thb1s-v2"}, ProfileNames())
}

func TestSnapshotProbe(t *testing.T) {
	snapshot, err := DecodeFrame(bothProbesFrame)
	require.NoError(t, err)

	main := snapshot.Probe(ProbeMain)
	require.NotNil(t, main)
	v, ok := main.Value(MetricHumidity)
	assert.True(t, ok)
	assert.Equal(t, 65.0, v)

	main.TemperatureC = 99
	assert.Equal(t, 22.5, snapshot.Main.TemperatureC, "Probe MUST return a copy")

	_, ok = main.Value("pressure")
	assert.False(t, ok)

	var empty *Snapshot
	assert.Nil(t, empty.Probe(ProbeMain))
	assert.Nil(t, snapshot.Probe("unknown"))

	mainOnly, err := DecodeFrame(mainOnlyFrame)
	require.NoError(t, err)
	assert.Nil(t, mainOnly.Probe(ProbeExternal))
}
