package normalize

import (
	"math"
	"strconv"
	"strings"
)

// Excitation is the signal source type of a sweep.
type Excitation string

const (
	ExcitationVoltage Excitation = "voltage"
	ExcitationCurrent Excitation = "current"
)

type amplitudeBounds struct {
	min, max, def float64
}

var amplitudeLimits = map[Excitation]amplitudeBounds{
	ExcitationVoltage: {min: 1e-4, max: 1.0, def: 0.1},
	ExcitationCurrent: {min: 1e-6, max: 0.01, def: 0.001},
}

type unitSuffix struct {
	suffix     string
	multiplier float64
}

// Longer suffixes first so "mv" wins over "v".
var amplitudeUnits = map[Excitation][]unitSuffix{
	ExcitationVoltage: {
		{"mv", 1e-3},
		{"uv", 1e-6},
		{"v", 1},
	},
	ExcitationCurrent: {
		{"ma", 1e-3},
		{"ua", 1e-6},
		{"na", 1e-9},
		{"a", 1},
	},
}

// ExcitationType validates the excitation type; anything but "voltage" or
// "current" becomes voltage.
func ExcitationType(raw string) (Excitation, *Warning) {
	switch Excitation(raw) {
	case ExcitationVoltage, ExcitationCurrent:
		return Excitation(raw), nil
	default:
		return ExcitationVoltage, &Warning{
			Field:   "excitation type",
			Input:   raw,
			Default: string(ExcitationVoltage),
			Reason:  "unknown excitation type",
		}
	}
}

// ParseAmplitude parses an amplitude with a unit suffix valid for the
// excitation type. The second result is false when the number cannot be parsed.
func ParseAmplitude(raw string, excitation Excitation) (float64, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "µ", "u")

	multiplier := 1.0
	for _, unit := range amplitudeUnits[excitation] {
		if strings.HasSuffix(value, unit.suffix) {
			multiplier = unit.multiplier
			value = strings.TrimSuffix(value, unit.suffix)
			break
		}
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) {
		return 0, false
	}

	return parsed * multiplier, true
}

// Amplitude resolves an amplitude string against the bounds of the
// excitation type and returns its wire encoding.
func Amplitude(raw, excitationType string) ([4]byte, []Warning) {
	var warnings []Warning

	excitation, w := ExcitationType(excitationType)
	if w != nil {
		warnings = append(warnings, *w)
	}
	limits := amplitudeLimits[excitation]

	amplitude, ok := ParseAmplitude(raw, excitation)
	if !ok || amplitude < limits.min || amplitude > limits.max {
		warnings = append(warnings, Warning{
			Field:   string(excitation) + " amplitude",
			Input:   raw,
			Default: formatFloat(limits.def),
			Reason:  "invalid or out of range",
		})
		amplitude = limits.def
	}

	return Float32Bytes(amplitude), warnings
}
