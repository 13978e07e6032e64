package normalize

import (
	"strings"

	"github.com/skobkin/isxgo/internal/protocol"
)

// Defaults substituted by the device session when a lookup fails.
const (
	DefaultMode         = protocol.ModeFourPoint
	DefaultChannel      = byte(0x01)
	DefaultCurrentRange = byte(0x00)
	DefaultVoltageRange = byte(0x01)
)

// Mode codes are not monotonic in the electrode count.
var modesByPoints = map[int]byte{
	2: protocol.ModeTwoPoint,
	3: protocol.ModeThreePoint,
	4: protocol.ModeFourPoint,
}

var channels = map[string]byte{
	"bnc port":         0x01,
	"port 1":           0x01,
	"main port":        0x01,
	"extension port":   0x02,
	"extensionport":    0x02,
	"extension port 2": 0x03,
	"extensionport2":   0x03,
	"port 2":           0x03,
	"internalmux":      0x03,
}

var currentRanges = map[string]byte{
	"autoranging": 0x00,
	"10ma":        0x01,
	"100ua":       0x02,
	"1ua":         0x04,
	"10na":        0x06,
	"100":         0x01,
	"10k":         0x02,
	"1m":          0x04,
	"100m":        0x06,
}

var voltageRanges = map[string]byte{
	"autoranging": 0x00,
	"1v":          0x01,
	"0.09v":       0x02,
}

// MeasurementMode maps an electrode count (2, 3 or 4) to its mode code.
func MeasurementMode(points int) (byte, bool) {
	code, ok := modesByPoints[points]

	return code, ok
}

// ValidMode reports whether code is one of the known mode codes.
func ValidMode(code byte) bool {
	_, ok := protocol.TopologyForMode(code)

	return ok
}

// MeasurementChannel resolves a port name such as "Main Port".
func MeasurementChannel(name string) (byte, bool) {
	code, ok := channels[strings.ToLower(strings.TrimSpace(name))]

	return code, ok
}

// CurrentRange resolves a current range ("10mA", "±100 µA", "autoranging")
// or the matching shunt name ("100", "10k", "1M", "100M").
func CurrentRange(name string) (byte, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("±", "", " ", "", "µ", "u").Replace(key)
	code, ok := currentRanges[key]

	return code, ok
}

// VoltageRange resolves "±1 V", "+/-0.09v" or "autoranging".
func VoltageRange(name string) (byte, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("±", "", "+/-", "", " ", "").Replace(key)
	code, ok := voltageRanges[key]

	return code, ok
}
