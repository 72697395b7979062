package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit", input: "fff5", expected: "fff5"},
		{name: "16-bit uppercase", input: "FFF3", expected: "fff3"},
		{name: "0x prefix", input: "0xFFF5", expected: "fff5"},
		{name: "0X prefix", input: "0X2902", expected: "2902"},
		{name: "SIG base with dashes", input: "0000fff5-0000-1000-8000-00805f9b34fb", expected: "fff5"},
		{name: "SIG base without dashes", input: "0000fff300001000800000805f9b34fb", expected: "fff3"},
		{name: "SIG base uppercase", input: "0000FFF5-0000-1000-8000-00805F9B34FB", expected: "fff5"},
		{name: "braces", input: "{0000fff5-0000-1000-8000-00805f9b34fb}", expected: "fff5"},
		{name: "surrounding spaces", input: "  fff5 ", expected: "fff5"},
		{name: "custom 128-bit", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "non-zero prefix on SIG suffix", input: "1000fff5-0000-1000-8000-00805f9b34fb", expected: "1000fff500001000800000805f9b34fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestSameUUID(t *testing.T) {
	assert.True(t, SameUUID("fff5", "0000FFF5-0000-1000-8000-00805f9b34fb"))
	assert.False(t, SameUUID("fff5", "fff3"))
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "6e400001", ShortenUUID("6e400001b5a3f393e0a9e50e24dcca9e"))
	assert.Equal(t, "fff5", ShortenUUID("fff5"))
}
