// Package normalize converts human-readable instrument settings into the
// numeric codes and big-endian IEEE-754 byte sequences carried in ISX3 frames.
//
// Nothing here fails: invalid input is replaced by a documented default and a
// Warning is returned next to the usable value.
package normalize

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultStartFrequency = 1000.0
	DefaultEndFrequency   = 1000000.0
	MinFrequency          = 1.0
	MaxFrequency          = 10000000.0
	// FallbackFrequency is used when a frequency string cannot be parsed.
	FallbackFrequency = 1000.0

	MinCount     = 1
	MaxCount     = 1000
	DefaultCount = 60

	MinPrecision     = 0.0001
	MaxPrecision     = 1.0
	DefaultPrecision = 1.0

	MinSpectra     = 1
	MaxSpectra     = 65535
	DefaultSpectra = 20
)

// Warning reports that an input value was replaced by a default.
type Warning struct {
	Field   string
	Input   string
	Default string
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %q: %s, using %s", w.Field, w.Input, w.Reason, w.Default)
}

// Float32Bytes encodes v as a 4-byte big-endian IEEE-754 single.
func Float32Bytes(v float64) [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], math.Float32bits(float32(v)))

	return out
}

// ParseFrequency accepts a bare number (Hz) or a number with a Hz, kHz, MHz
// or GHz suffix. Case and internal whitespace are ignored.
func ParseFrequency(raw string) (float64, *Warning) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, " ", "")
	multiplier := 1.0

	switch {
	case strings.HasSuffix(value, "khz"):
		multiplier = 1e3
		value = strings.TrimSuffix(value, "khz")
	case strings.HasSuffix(value, "mhz"):
		multiplier = 1e6
		value = strings.TrimSuffix(value, "mhz")
	case strings.HasSuffix(value, "ghz"):
		multiplier = 1e9
		value = strings.TrimSuffix(value, "ghz")
	case strings.HasSuffix(value, "hz"):
		value = strings.TrimSuffix(value, "hz")
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return FallbackFrequency, &Warning{
			Field:   "frequency",
			Input:   raw,
			Default: formatFloat(FallbackFrequency),
			Reason:  "cannot parse frequency",
		}
	}

	return parsed * multiplier, nil
}

// FrequencyRangeHz validates a start/end pair in Hz.
//
// A start that is not below the end resets both bounds. A start under 1 Hz
// resets only the start. An end above 10 MHz also resets only the start and
// leaves the end as given.
func FrequencyRangeHz(start, end float64) (float64, float64, []Warning) {
	var warnings []Warning

	if start >= end {
		warnings = append(warnings, Warning{
			Field:   "frequency range",
			Input:   fmt.Sprintf("%s..%s", formatFloat(start), formatFloat(end)),
			Default: fmt.Sprintf("%s..%s", formatFloat(DefaultStartFrequency), formatFloat(DefaultEndFrequency)),
			Reason:  "start frequency is not below end frequency",
		})
		start = DefaultStartFrequency
		end = DefaultEndFrequency
	}

	if start < MinFrequency {
		warnings = append(warnings, Warning{
			Field:   "start frequency",
			Input:   formatFloat(start),
			Default: formatFloat(DefaultStartFrequency),
			Reason:  "below 1 Hz",
		})
		start = DefaultStartFrequency
	}

	if end > MaxFrequency {
		warnings = append(warnings, Warning{
			Field:   "end frequency",
			Input:   formatFloat(end),
			Default: "start " + formatFloat(DefaultStartFrequency),
			Reason:  "above 10 MHz",
		})
		start = DefaultStartFrequency
	}

	return start, end, warnings
}

// FrequencyRange parses both bounds and returns their wire encodings.
func FrequencyRange(start, end string) ([4]byte, [4]byte, []Warning) {
	var warnings []Warning

	startHz, w := ParseFrequency(start)
	if w != nil {
		w.Field = "start frequency"
		warnings = append(warnings, *w)
	}
	endHz, w := ParseFrequency(end)
	if w != nil {
		w.Field = "end frequency"
		warnings = append(warnings, *w)
	}

	startHz, endHz, rangeWarnings := FrequencyRangeHz(startHz, endHz)
	warnings = append(warnings, rangeWarnings...)

	return Float32Bytes(startHz), Float32Bytes(endHz), warnings
}

// Count validates the number of frequency points. The device expects the
// count as a float.
func Count(count int) ([4]byte, *Warning) {
	if count < MinCount || count > MaxCount {
		return Float32Bytes(DefaultCount), &Warning{
			Field:   "count",
			Input:   strconv.Itoa(count),
			Default: strconv.Itoa(DefaultCount),
			Reason:  fmt.Sprintf("outside %d..%d", MinCount, MaxCount),
		}
	}

	return Float32Bytes(float64(count)), nil
}

// EffectiveCount is the count actually encoded by Count.
func EffectiveCount(count int) int {
	if count < MinCount || count > MaxCount {
		return DefaultCount
	}

	return count
}

// Scale codes. The "lin" abbreviation maps to the logarithmic code in the
// instrument's lookup table and is kept that way.
var scales = map[string]byte{
	"linear":      0x00,
	"log":         0x01,
	"logarithmic": 0x01,
	"lin":         0x01,
}

// Scale looks up the sweep scale. The lookup is exact; anything else is log.
func Scale(raw string) (byte, *Warning) {
	code, ok := scales[raw]
	if !ok {
		return scales["log"], &Warning{
			Field:   "scale",
			Input:   raw,
			Default: "log",
			Reason:  "unknown scale",
		}
	}

	return code, nil
}

// Precision validates the measurement precision.
func Precision(p float64) ([4]byte, *Warning) {
	if math.IsNaN(p) || p < MinPrecision || p > MaxPrecision {
		return Float32Bytes(DefaultPrecision), &Warning{
			Field:   "precision",
			Input:   formatFloat(p),
			Default: formatFloat(DefaultPrecision),
			Reason:  "out of range",
		}
	}

	return Float32Bytes(p), nil
}

// Spectra validates the number of repetitions per frequency point.
func Spectra(n int) (uint16, *Warning) {
	if n < MinSpectra || n > MaxSpectra {
		return DefaultSpectra, &Warning{
			Field:   "spectra",
			Input:   strconv.Itoa(n),
			Default: strconv.Itoa(DefaultSpectra),
			Reason:  fmt.Sprintf("outside %d..%d", MinSpectra, MaxSpectra),
		}
	}

	return uint16(n), nil // #nosec G115 -- bounded by MaxSpectra above.
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
