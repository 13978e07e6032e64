package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStatusRegistryTable(t *testing.T) {
	reg := DefaultStatusRegistry()

	for _, code := range []StatusCode{
		StatusNoMessage, StatusTimeout, StatusWakeUp, StatusTCPSocket,
		StatusNotExecuted, StatusNotRecognized, StatusAck, StatusReady, StatusDataHoldup,
	} {
		msg, err := reg.Lookup(code)
		require.NoError(t, err, code.String())
		assert.NotEmpty(t, msg)
	}

	msg, err := reg.Lookup(StatusAck)
	require.NoError(t, err)
	assert.Equal(t, "Command-Acknowledge: Command has been executed successfully", msg)
}

func TestStatusRegistryUnknownCode(t *testing.T) {
	reg := DefaultStatusRegistry()

	_, err := reg.Lookup(0xFF)
	var unknown *UnknownStatusError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, StatusCode(0xFF), unknown.Code)

	assert.Equal(t, "Unknown status code 0xFF", reg.Describe(0xFF))
	assert.False(t, reg.Known(0xFF))
	assert.True(t, reg.Known(StatusReady))
}

func TestNewStatusRegistryCopiesTable(t *testing.T) {
	table := map[StatusCode]string{StatusAck: "ok"}
	reg := NewStatusRegistry(table)
	table[StatusAck] = "changed"

	assert.Equal(t, "ok", reg.Describe(StatusAck))
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "0x83", StatusAck.String())
	assert.Equal(t, "0x01", StatusNoMessage.String())
}

func TestScanSystemMessage(t *testing.T) {
	tests := []struct {
		name  string
		buf   []byte
		code  StatusCode
		found bool
	}{
		{name: "ack", buf: []byte{0x18, 0x01, 0x83, 0x18}, code: StatusAck, found: true},
		{name: "after noise", buf: []byte{0xB6, 0x00, 0x18, 0x01, 0x84, 0x18}, code: StatusReady, found: true},
		{name: "first message wins", buf: []byte{0x18, 0x01, 0x81, 0x18, 0x18, 0x01, 0x83, 0x18}, code: StatusNotExecuted, found: true},
		{name: "truncated", buf: []byte{0x00, 0x18, 0x01}, code: StatusNoMessage},
		{name: "empty", buf: nil, code: StatusNoMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, found := ScanSystemMessage(tt.buf)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.found, found)
		})
	}
}

func TestFamilyString(t *testing.T) {
	assert.Equal(t, "setup", FamilySetup.String())
	assert.Equal(t, "family-0x42", Family(0x42).String())
}

func TestSplitFrameQueryLengthConvention(t *testing.T) {
	family, payload, err := SplitFrame([]byte{0xB1, 0x03, 0x02, 0x00, 0xB1})
	require.NoError(t, err)
	assert.Equal(t, FamilyFrontendQuery, family)
	assert.Equal(t, []byte{0x02, 0x00}, payload)

	_, _, err = SplitFrame([]byte{0xB1, 0x02, 0x02, 0x00, 0xB1})
	require.Error(t, err)
}
