package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The device pads query responses beyond the channel fields; the pad bytes are zero here.
func twoPointResponse() []byte {
	return []byte{
		0xB1, 0x09, 0x02, 0x01, 0x01,
		0x01, 0x00, 0x00,
		0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0xB1,
	}
}

func TestParseConfigResponseTwoPoint(t *testing.T) {
	raw := append([]byte{0x00, 0x7F}, twoPointResponse()...)

	configs, err := ParseConfigResponse(raw)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs[0]
	assert.Equal(t, 2, cfg.Topology.Points)
	assert.Equal(t, byte(0x02), cfg.Mode)
	assert.Equal(t, byte(0x01), cfg.CurrentRange)
	assert.Equal(t, byte(0x01), cfg.VoltageRange)
	assert.Equal(t, []ChannelAssignment{
		{Role: RoleCounter, Code: 0x01, Extension: 0},
		{Role: RoleWorking, Code: 0x01, Extension: 0},
	}, cfg.Channels)
	assert.Len(t, cfg.Raw, 17)
}

func TestParseConfigResponseThreeAndFourPoint(t *testing.T) {
	three := []byte{
		0xB1, 0x0C, 0x03, 0x00, 0x02,
		0x02, 0x00, 0x01,
		0x03, 0x00, 0x02,
		0x01, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0xB1,
	}
	four := []byte{
		0xB1, 0x0F, 0x02, 0x04, 0x00,
		0x01, 0x00, 0x00,
		0x02, 0x00, 0x00,
		0x03, 0x00, 0x00,
		0x01, 0x00, 0x05,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0xB1,
	}

	configs, err := ParseConfigResponse(append(three, four...))
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, 3, configs[0].Topology.Points)
	assert.Equal(t, []ChannelAssignment{
		{Role: RoleCounter, Code: 0x02, Extension: 1},
		{Role: RoleReference, Code: 0x03, Extension: 2},
		{Role: RoleWorking, Code: 0x01, Extension: 0x0100},
	}, configs[0].Channels)

	assert.Equal(t, 4, configs[1].Topology.Points)
	require.Len(t, configs[1].Channels, 4)
	assert.Equal(t, RoleSense, configs[1].Channels[2].Role)
	assert.Equal(t, uint16(5), configs[1].Channels[3].Extension)
}

func TestParseConfigResponseReportsMalformedFrame(t *testing.T) {
	// Type says 2-point but the frame is too short.
	short := []byte{0xB1, 0x09, 0x02, 0x01, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0xB1}
	raw := append(short, twoPointResponse()...)

	configs, err := ParseConfigResponse(raw)
	require.Error(t, err)
	require.Len(t, configs, 1, "valid frame after the malformed one is still decoded")

	var malformed *MalformedFrameError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 0, malformed.Offset)
	assert.Equal(t, byte(0x09), malformed.FrameType)
	assert.Equal(t, 12, malformed.Length)
}

func TestParseConfigResponseUnknownFrameType(t *testing.T) {
	raw := []byte{0xB1, 0x42, 0x00, 0xB1}

	configs, err := ParseConfigResponse(raw)
	assert.Empty(t, configs)

	var malformed *MalformedFrameError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, byte(0x42), malformed.FrameType)
}

func TestParseConfigResponseWithoutFrame(t *testing.T) {
	_, err := ParseConfigResponse([]byte{0x00, 0xB1, 0x09})
	require.ErrorIs(t, err, ErrNoFrame)

	_, err = ParseConfigResponse(nil)
	require.ErrorIs(t, err, ErrNoFrame)
}

func TestParseChannelConfigStopsAtFirstFrame(t *testing.T) {
	trailing := []byte{0xB1, 0x09, 0x02, 0x02, 0x02, 0x02, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xB1}
	raw := append(append([]byte{0x00}, twoPointResponse()...), trailing...)

	all, err := ParseConfigResponse(raw)
	require.NoError(t, err)
	require.Len(t, all, 2)

	cfg, err := ParseChannelConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), cfg.CurrentRange)
	assert.Equal(t, twoPointResponse(), cfg.Raw)
}

func TestParseChannelConfigErrors(t *testing.T) {
	_, err := ParseChannelConfig([]byte{0x00, 0xB1, 0x09})
	require.ErrorIs(t, err, ErrNoFrame)

	// A malformed first frame is not skipped in favor of a later one.
	raw := append([]byte{0x00, 0xB1, 0x42, 0x00, 0xB1}, twoPointResponse()...)
	_, err = ParseChannelConfig(raw)
	var malformed *MalformedFrameError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Offset)
	assert.Equal(t, byte(0x42), malformed.FrameType)
}

func TestParseChannelCount(t *testing.T) {
	count, err := ParseChannelCount([]byte{0xB1, 0x03, 0x00, 0x02, 0x00, 0xB1})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = ParseChannelCount([]byte{0xB1, 0x03, 0x00, 0x00, 0x00, 0xB1})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = ParseChannelCount([]byte{0xB1, 0x03, 0x00, 0xB1})
	require.Error(t, err)

	_, err = ParseChannelCount([]byte{0x18, 0x01, 0x82, 0x00, 0x00, 0x18})
	require.Error(t, err)
}

func TestChannelConfigString(t *testing.T) {
	cfg, err := DecodeConfigFrame(twoPointResponse())
	require.NoError(t, err)
	assert.Equal(t, "2-point configuration: mode=0x02 current=0x01 voltage=0x01 C=0x01(ext 0) W=0x01(ext 0)", cfg.String())
}
