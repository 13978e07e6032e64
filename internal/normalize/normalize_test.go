package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		warn bool
	}{
		{raw: "1000", want: 1000},
		{raw: "1kHz", want: 1000},
		{raw: "1 KHZ", want: 1000},
		{raw: "1000Hz", want: 1000},
		{raw: " 2.5 MHz ", want: 2.5e6},
		{raw: "1GHz", want: 1e9},
		{raw: "10 k Hz", want: 10000},
		{raw: "abc", want: FallbackFrequency, warn: true},
		{raw: "", want: FallbackFrequency, warn: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, w := ParseFrequency(tt.raw)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.warn, w != nil)
		})
	}
}

func TestFrequencyEncodingIsIdempotentAcrossVariants(t *testing.T) {
	canonical, _, warnings := FrequencyRange("1kHz", "10MHz")
	require.Empty(t, warnings)

	for _, variant := range []string{"1000Hz", "1000", "1 kHz", "1000.0"} {
		got, _, warnings := FrequencyRange(variant, "10MHz")
		require.Empty(t, warnings, variant)
		assert.Equal(t, canonical, got, variant)
	}
	assert.Equal(t, Float32Bytes(1000.0), canonical)
}

func TestFrequencyRangeHz(t *testing.T) {
	tests := []struct {
		name         string
		start, end   float64
		wantStart    float64
		wantEnd      float64
		wantWarnings int
	}{
		{name: "valid", start: 1000, end: 1e7, wantStart: 1000, wantEnd: 1e7},
		{name: "start equals end", start: 5000, end: 5000, wantStart: DefaultStartFrequency, wantEnd: DefaultEndFrequency, wantWarnings: 1},
		{name: "start above end", start: 2e6, end: 1e6, wantStart: DefaultStartFrequency, wantEnd: DefaultEndFrequency, wantWarnings: 1},
		// Below the minimum only the start is replaced.
		{name: "start below minimum", start: 0.5, end: 5e6, wantStart: DefaultStartFrequency, wantEnd: 5e6, wantWarnings: 1},
		// Above the maximum the start is replaced and the end is passed through.
		{name: "end above maximum", start: 10, end: 2e7, wantStart: DefaultStartFrequency, wantEnd: 2e7, wantWarnings: 1},
		{name: "both bounds out", start: 0.1, end: 2e7, wantStart: DefaultStartFrequency, wantEnd: 2e7, wantWarnings: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, warnings := FrequencyRangeHz(tt.start, tt.end)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
			assert.Len(t, warnings, tt.wantWarnings)
		})
	}
}

func TestFrequencyRangeUnparsableBound(t *testing.T) {
	start, end, warnings := FrequencyRange("fast", "1MHz")
	// "fast" falls back to 1 kHz which is below 1 MHz, so only the parse warning remains.
	require.Len(t, warnings, 1)
	assert.Equal(t, "start frequency", warnings[0].Field)
	assert.Equal(t, Float32Bytes(1000), start)
	assert.Equal(t, Float32Bytes(1e6), end)
}

func TestCountBoundaries(t *testing.T) {
	tests := []struct {
		count int
		want  float64
		warn  bool
	}{
		{count: 0, want: DefaultCount, warn: true},
		{count: 1, want: 1},
		{count: 1000, want: 1000},
		{count: 1001, want: DefaultCount, warn: true},
		{count: -5, want: DefaultCount, warn: true},
	}

	for _, tt := range tests {
		got, w := Count(tt.count)
		assert.Equal(t, Float32Bytes(tt.want), got, "count %d", tt.count)
		assert.Equal(t, tt.warn, w != nil, "count %d", tt.count)
		assert.Equal(t, int(tt.want), EffectiveCount(tt.count))
	}
}

func TestCountIsEncodedAsFloat(t *testing.T) {
	got, w := Count(10)
	require.Nil(t, w)
	assert.Equal(t, [4]byte{0x41, 0x20, 0x00, 0x00}, got)
}

func TestScaleTable(t *testing.T) {
	tests := []struct {
		raw  string
		want byte
		warn bool
	}{
		{raw: "linear", want: 0x00},
		{raw: "log", want: 0x01},
		{raw: "logarithmic", want: 0x01},
		{raw: "lin", want: 0x01},
		{raw: "Linear", want: 0x01, warn: true},
		{raw: "cubic", want: 0x01, warn: true},
	}

	for _, tt := range tests {
		got, w := Scale(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.warn, w != nil, tt.raw)
	}
}

func TestPrecision(t *testing.T) {
	got, w := Precision(0.5)
	assert.Nil(t, w)
	assert.Equal(t, Float32Bytes(0.5), got)

	got, w = Precision(0.0001)
	assert.Nil(t, w)
	assert.Equal(t, Float32Bytes(0.0001), got)

	got, w = Precision(0)
	assert.NotNil(t, w)
	assert.Equal(t, Float32Bytes(DefaultPrecision), got)

	got, w = Precision(1.5)
	assert.NotNil(t, w)
	assert.Equal(t, [4]byte{0x3F, 0x80, 0x00, 0x00}, got)
}

func TestSpectra(t *testing.T) {
	got, w := Spectra(2)
	assert.Nil(t, w)
	assert.Equal(t, uint16(2), got)

	got, w = Spectra(65535)
	assert.Nil(t, w)
	assert.Equal(t, uint16(65535), got)

	got, w = Spectra(0)
	assert.NotNil(t, w)
	assert.Equal(t, uint16(DefaultSpectra), got)

	got, w = Spectra(70000)
	assert.NotNil(t, w)
	assert.Equal(t, uint16(DefaultSpectra), got)
}

func TestFloat32BytesBigEndian(t *testing.T) {
	assert.Equal(t, [4]byte{0x44, 0x7A, 0x00, 0x00}, Float32Bytes(1000))
	assert.Equal(t, [4]byte{0x4B, 0x18, 0x96, 0x80}, Float32Bytes(1e7))
}
