// Package protocol implements the ISX3 binary framing: command frames,
// frontend configuration responses, the measurement result stream and the
// system status messages.
package protocol

import "fmt"

// Family is the marker byte that opens and closes every frame of one command family.
type Family byte

const (
	FamilyFrontendSettings Family = 0xB0
	FamilyFrontendQuery    Family = 0xB1
	FamilySetup            Family = 0xB6
	FamilyMeasurement      Family = 0xB8
	FamilySoftwareReset    Family = 0xA1
	FamilySetupReset       Family = 0x86
)

// Frame size limits.
const (
	// FrameOverhead is the marker at each end plus the length byte.
	FrameOverhead = 3
	// MaxPayloadSize is the largest payload a single length byte can announce.
	MaxPayloadSize = 0xFF
)

func (f Family) String() string {
	switch f {
	case FamilyFrontendSettings:
		return "frontend-settings"
	case FamilyFrontendQuery:
		return "frontend-query"
	case FamilySetup:
		return "setup"
	case FamilyMeasurement:
		return "measurement"
	case FamilySoftwareReset:
		return "software-reset"
	case FamilySetupReset:
		return "setup-reset"
	default:
		return fmt.Sprintf("family-0x%02X", byte(f))
	}
}

// Known reports whether f is one of the command families.
func (f Family) Known() bool {
	switch f {
	case FamilyFrontendSettings, FamilyFrontendQuery, FamilySetup,
		FamilyMeasurement, FamilySoftwareReset, FamilySetupReset:
		return true
	default:
		return false
	}
}

// lengthBias is added to the payload size to get the length byte.
// Frontend queries announce one byte more than they carry.
func (f Family) lengthBias() int {
	if f == FamilyFrontendQuery {
		return 1
	}

	return 0
}

// BuildFrame wraps payload as [family, length, payload..., family].
func BuildFrame(family Family, payload []byte) ([]byte, error) {
	if !family.Known() {
		return nil, fmt.Errorf("unknown command family 0x%02X", byte(family))
	}
	length := len(payload) + family.lengthBias()
	if length > MaxPayloadSize {
		return nil, fmt.Errorf("%s payload too large: %d bytes", family, len(payload))
	}

	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, byte(family), byte(length))
	frame = append(frame, payload...)
	frame = append(frame, byte(family))

	return frame, nil
}

// SplitFrame checks the markers and length byte of a command frame and
// returns its family and payload.
func SplitFrame(frame []byte) (Family, []byte, error) {
	if len(frame) < FrameOverhead {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	family := Family(frame[0])
	if frame[len(frame)-1] != frame[0] {
		return 0, nil, fmt.Errorf("frame end marker 0x%02X does not match start 0x%02X", frame[len(frame)-1], frame[0])
	}
	if !family.Known() {
		return 0, nil, fmt.Errorf("unknown command family 0x%02X", frame[0])
	}

	payload := frame[2 : len(frame)-1]
	if want := len(payload) + family.lengthBias(); int(frame[1]) != want {
		return 0, nil, fmt.Errorf("%s length byte %d, want %d", family, frame[1], want)
	}

	return family, payload, nil
}
