package protocol

import (
	"encoding/binary"
	"math"
)

// Magnus-Tetens coefficients for saturation vapor pressure over water, in kPa.
const (
	svpBaseKPa = 0.61078
	magnusA    = 7.5
	magnusB    = 237.3
)

// DecodeInt16LE reads a little-endian signed 16-bit integer at offset.
func DecodeInt16LE(buf []byte, offset int) (int16, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, &DecodeError{Offset: offset, Length: len(buf)}
	}
	return int16(binary.LittleEndian.Uint16(buf[offset:])), nil
}

// DecodeFixedPoint reads a 1/16 fixed-point value at offset.
func DecodeFixedPoint(buf []byte, offset int) (float64, error) {
	raw, err := DecodeInt16LE(buf, offset)
	if err != nil {
		return 0, err
	}
	return float64(raw) / fixedPointScale, nil
}

// ComputeVPD returns the vapor pressure deficit in kPa for the given air
// temperature (°C) and relative humidity (%).
func ComputeVPD(tempC, humidityPct float64) float64 {
	svp := svpBaseKPa * math.Pow(10, (magnusA*tempC)/(magnusB+tempC))
	avp := svp * (humidityPct / 100.0)
	return svp - avp
}

// DecodeProbe decodes one probe from its temperature and humidity offsets.
func DecodeProbe(buf []byte, tempOffset, humidityOffset int) (ProbeReading, error) {
	temp, err := DecodeFixedPoint(buf, tempOffset)
	if err != nil {
		return ProbeReading{}, err
	}
	humidity, err := DecodeFixedPoint(buf, humidityOffset)
	if err != nil {
		return ProbeReading{}, err
	}
	return ProbeReading{
		TemperatureC: temp,
		HumidityPct:  humidity,
		VPDKPa:       ComputeVPD(temp, humidity),
	}, nil
}

// DecodeFrame decodes a frame using DefaultProfile.
func DecodeFrame(buf []byte) (*Snapshot, error) {
	return DefaultProfile.DecodeFrame(buf)
}

// encodeFixedPoint converts a value into its 1/16 raw form, saturating at the int16 range.
func encodeFixedPoint(v float64) int16 {
	raw := math.Round(v * fixedPointScale)
	switch {
	case raw > math.MaxInt16:
		return math.MaxInt16
	case raw < math.MinInt16:
		return math.MinInt16
	}
	return int16(raw)
}

func putInt16LE(buf []byte, offset int, v int16) {
	binary.LittleEndian.PutUint16(buf[offset:], uint16(v))
}
