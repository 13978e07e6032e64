package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is one of the outbound ISX3 commands. The set is closed: Encode
// and DecodeCommand handle every variant.
type Command interface {
	Family() Family
	isCommand()
}

// ClearStack empties the frontend settings stack before new settings are written.
type ClearStack struct{}

// ChannelRef is a channel code and its 2-byte extension port selector.
type ChannelRef struct {
	Code      byte
	Extension uint16
}

// FrontendSettings writes mode, ranges and one channel per electrode role.
type FrontendSettings struct {
	Mode         byte
	CurrentRange byte
	VoltageRange byte
	// Channels are ordered like the topology roles (C, R, S, W).
	Channels []ChannelRef
}

// ChannelCountQuery asks how many frontend channels are configured.
type ChannelCountQuery struct{}

// ChannelQuery asks for the configuration of one channel (1-based).
type ChannelQuery struct {
	Index byte
}

// Setup carries the already encoded sweep parameters.
type Setup struct {
	StartFrequency [4]byte
	EndFrequency   [4]byte
	Count          [4]byte
	Scale          byte
	Precision      [4]byte
	Amplitude      [4]byte
}

// SetupReset discards the current setup.
type SetupReset struct{}

// MeasurementStart starts a sweep repeated Spectra times.
type MeasurementStart struct {
	Spectra uint16
}

// MeasurementStop stops a running sweep.
type MeasurementStop struct{}

// SoftwareReset restarts the device firmware.
type SoftwareReset struct{}

func (ClearStack) Family() Family        { return FamilyFrontendSettings }
func (FrontendSettings) Family() Family  { return FamilyFrontendSettings }
func (ChannelCountQuery) Family() Family { return FamilyFrontendQuery }
func (ChannelQuery) Family() Family      { return FamilyFrontendQuery }
func (Setup) Family() Family             { return FamilySetup }
func (SetupReset) Family() Family        { return FamilySetupReset }
func (MeasurementStart) Family() Family  { return FamilyMeasurement }
func (MeasurementStop) Family() Family   { return FamilyMeasurement }
func (SoftwareReset) Family() Family     { return FamilySoftwareReset }

func (ClearStack) isCommand()        {}
func (FrontendSettings) isCommand()  {}
func (ChannelCountQuery) isCommand() {}
func (ChannelQuery) isCommand()      {}
func (Setup) isCommand()             {}
func (SetupReset) isCommand()        {}
func (MeasurementStart) isCommand()  {}
func (MeasurementStop) isCommand()   {}
func (SoftwareReset) isCommand()     {}

// Sub-command and filler bytes.
const (
	clearStackFiller       = 0xFF
	channelCountSubCommand = 0x02
	setupSubCommand        = 0x03
	setupResetSubCommand   = 0x01
	startSubCommand        = 0x01
	stopSubCommand         = 0x00
)

// SetupPayloadSize is the fixed payload length of a setup frame.
const SetupPayloadSize = 22

// Encode builds the wire frame of cmd.
func Encode(cmd Command) ([]byte, error) {
	var payload []byte

	switch c := cmd.(type) {
	case ClearStack:
		payload = []byte{clearStackFiller, clearStackFiller, clearStackFiller}
	case FrontendSettings:
		topology, ok := TopologyForMode(c.Mode)
		if !ok {
			return nil, fmt.Errorf("unsupported measurement mode 0x%02X", c.Mode)
		}
		if len(c.Channels) != len(topology.Roles) {
			return nil, fmt.Errorf("%s mode needs %d channels, got %d", topology, len(topology.Roles), len(c.Channels))
		}
		payload = make([]byte, 0, topology.PayloadSize())
		payload = append(payload, c.Mode, c.CurrentRange, c.VoltageRange)
		for _, ch := range c.Channels {
			payload = append(payload, ch.Code)
			payload = binary.BigEndian.AppendUint16(payload, ch.Extension)
		}
	case ChannelCountQuery:
		payload = []byte{channelCountSubCommand, 0x00}
	case ChannelQuery:
		if c.Index == 0 {
			return nil, fmt.Errorf("channel index is 1-based")
		}
		payload = []byte{c.Index}
	case Setup:
		payload = make([]byte, 0, SetupPayloadSize)
		payload = append(payload, setupSubCommand)
		payload = append(payload, c.StartFrequency[:]...)
		payload = append(payload, c.EndFrequency[:]...)
		payload = append(payload, c.Count[:]...)
		payload = append(payload, c.Scale)
		payload = append(payload, c.Precision[:]...)
		payload = append(payload, c.Amplitude[:]...)
	case SetupReset:
		payload = []byte{setupResetSubCommand}
	case MeasurementStart:
		payload = binary.BigEndian.AppendUint16([]byte{startSubCommand}, c.Spectra)
	case MeasurementStop:
		payload = []byte{stopSubCommand}
	case SoftwareReset:
		payload = nil
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}

	return BuildFrame(cmd.Family(), payload)
}

// DecodeCommand parses an outbound frame back into its command.
func DecodeCommand(frame []byte) (Command, error) {
	family, payload, err := SplitFrame(frame)
	if err != nil {
		return nil, err
	}

	switch family {
	case FamilyFrontendSettings:
		return decodeFrontendSettings(payload)
	case FamilyFrontendQuery:
		switch {
		case len(payload) == 2 && payload[0] == channelCountSubCommand:
			return ChannelCountQuery{}, nil
		case len(payload) == 1 && payload[0] != 0:
			return ChannelQuery{Index: payload[0]}, nil
		}
	case FamilySetup:
		if len(payload) == SetupPayloadSize && payload[0] == setupSubCommand {
			var s Setup
			copy(s.StartFrequency[:], payload[1:5])
			copy(s.EndFrequency[:], payload[5:9])
			copy(s.Count[:], payload[9:13])
			s.Scale = payload[13]
			copy(s.Precision[:], payload[14:18])
			copy(s.Amplitude[:], payload[18:22])
			return s, nil
		}
	case FamilySetupReset:
		if len(payload) == 1 && payload[0] == setupResetSubCommand {
			return SetupReset{}, nil
		}
	case FamilyMeasurement:
		switch {
		case len(payload) == 3 && payload[0] == startSubCommand:
			return MeasurementStart{Spectra: binary.BigEndian.Uint16(payload[1:3])}, nil
		case len(payload) == 1 && payload[0] == stopSubCommand:
			return MeasurementStop{}, nil
		}
	case FamilySoftwareReset:
		if len(payload) == 0 {
			return SoftwareReset{}, nil
		}
	}

	return nil, fmt.Errorf("unrecognized %s payload % X", family, payload)
}

func decodeFrontendSettings(payload []byte) (Command, error) {
	if len(payload) == 3 && payload[0] == clearStackFiller && payload[1] == clearStackFiller && payload[2] == clearStackFiller {
		return ClearStack{}, nil
	}
	if len(payload) < frontendHeaderSize {
		return nil, fmt.Errorf("frontend settings payload too short: %d bytes", len(payload))
	}

	topology, ok := TopologyForMode(payload[0])
	if !ok {
		return nil, fmt.Errorf("unsupported measurement mode 0x%02X", payload[0])
	}
	if len(payload) != topology.PayloadSize() {
		return nil, fmt.Errorf("%s payload is %d bytes, want %d", topology, len(payload), topology.PayloadSize())
	}

	cmd := FrontendSettings{
		Mode:         payload[0],
		CurrentRange: payload[1],
		VoltageRange: payload[2],
		Channels:     make([]ChannelRef, 0, len(topology.Roles)),
	}
	for off := frontendHeaderSize; off < len(payload); off += channelFieldSize {
		cmd.Channels = append(cmd.Channels, ChannelRef{
			Code:      payload[off],
			Extension: binary.BigEndian.Uint16(payload[off+1 : off+3]),
		})
	}

	return cmd, nil
}
