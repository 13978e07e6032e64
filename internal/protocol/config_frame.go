package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ChannelAssignment is the channel decoded for one electrode role.
type ChannelAssignment struct {
	Role      Role
	Code      byte
	Extension uint16
}

// ChannelConfig is one decoded frontend configuration frame.
type ChannelConfig struct {
	Topology     Topology
	Mode         byte
	CurrentRange byte
	VoltageRange byte
	Channels     []ChannelAssignment
	Raw          []byte
}

func (c ChannelConfig) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s configuration: mode=0x%02X current=0x%02X voltage=0x%02X", c.Topology, c.Mode, c.CurrentRange, c.VoltageRange)
	for _, ch := range c.Channels {
		fmt.Fprintf(&b, " %s=0x%02X(ext %d)", ch.Role, ch.Code, ch.Extension)
	}

	return b.String()
}

// minChannelCountResponse is the shortest valid channel count reply.
const minChannelCountResponse = 6

// ParseChannelCount reads the configured channel count from a query reply.
func ParseChannelCount(resp []byte) (int, error) {
	marker := byte(FamilyFrontendQuery)
	if len(resp) < minChannelCountResponse || resp[0] != marker || resp[len(resp)-1] != marker {
		return 0, fmt.Errorf("no valid 0x%02X channel count frame in % X", marker, resp)
	}

	return int(binary.BigEndian.Uint16(resp[2:4])), nil
}

// ParseConfigResponse finds every 0xB1-delimited frame in raw and decodes
// it. Frames that do not match a known layout are reported in the joined
// error while the valid ones are still returned.
func ParseConfigResponse(raw []byte) ([]ChannelConfig, error) {
	var (
		configs []ChannelConfig
		errs    []error
		found   bool
	)
	for i := 0; ; {
		start, end, ok := nextConfigFrame(raw, i)
		if !ok {
			break
		}
		found = true

		cfg, err := decodeConfigAt(raw, start, end)
		if err != nil {
			errs = append(errs, err)
		} else {
			configs = append(configs, cfg)
		}
		i = end + 1
	}

	if !found {
		return nil, ErrNoFrame
	}

	return configs, errors.Join(errs...)
}

// ParseChannelConfig decodes the first 0xB1-delimited frame of a single
// channel reply. Anything after that frame is ignored.
func ParseChannelConfig(raw []byte) (ChannelConfig, error) {
	start, end, ok := nextConfigFrame(raw, 0)
	if !ok {
		return ChannelConfig{}, ErrNoFrame
	}

	return decodeConfigAt(raw, start, end)
}

// nextConfigFrame returns the bounds of the first marker-delimited frame at
// or after from. end is the index of the closing marker.
func nextConfigFrame(raw []byte, from int) (start, end int, ok bool) {
	marker := byte(FamilyFrontendQuery)
	if from >= len(raw) {
		return 0, 0, false
	}
	start = bytes.IndexByte(raw[from:], marker)
	if start < 0 {
		return 0, 0, false
	}
	start += from
	end = bytes.IndexByte(raw[start+1:], marker)
	if end < 0 {
		return 0, 0, false
	}

	return start, end + start + 1, true
}

func decodeConfigAt(raw []byte, start, end int) (ChannelConfig, error) {
	cfg, err := DecodeConfigFrame(raw[start : end+1])
	if err != nil {
		var malformed *MalformedFrameError
		if errors.As(err, &malformed) {
			malformed.Offset = start
		}
		return ChannelConfig{}, err
	}

	return cfg, nil
}

// DecodeConfigFrame decodes a single delimited configuration frame. The
// frame type and total length must both match one topology.
func DecodeConfigFrame(frame []byte) (ChannelConfig, error) {
	if len(frame) < FrameOverhead {
		return ChannelConfig{}, &MalformedFrameError{Length: len(frame), Raw: bytes.Clone(frame)}
	}

	frameType := frame[1]
	topology, ok := topologyForFrameType(frameType)
	if !ok || len(frame) != topology.ResponseLength {
		return ChannelConfig{}, &MalformedFrameError{FrameType: frameType, Length: len(frame), Raw: bytes.Clone(frame)}
	}

	cfg := ChannelConfig{
		Topology:     topology,
		Mode:         frame[2],
		CurrentRange: frame[3],
		VoltageRange: frame[4],
		Channels:     make([]ChannelAssignment, 0, len(topology.Roles)),
		Raw:          bytes.Clone(frame),
	}
	off := 2 + frontendHeaderSize
	for _, role := range topology.Roles {
		cfg.Channels = append(cfg.Channels, ChannelAssignment{
			Role:      role,
			Code:      frame[off],
			Extension: binary.BigEndian.Uint16(frame[off+1 : off+3]),
		})
		off += channelFieldSize
	}

	return cfg, nil
}
