package protocol

import (
	"errors"
	"fmt"
)

// ErrNoFrame is returned when a response holds no delimited frame at all.
var ErrNoFrame = errors.New("no frame found in response")

// MalformedFrameError reports a delimited frame whose type and length do not
// match any known layout.
type MalformedFrameError struct {
	Offset    int
	FrameType byte
	Length    int
	Raw       []byte
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame at offset %d: type 0x%02X with %d bytes (% X)", e.Offset, e.FrameType, e.Length, e.Raw)
}

// UnknownStatusError is returned for status codes missing from the registry.
type UnknownStatusError struct {
	Code StatusCode
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status code %s", e.Code)
}
