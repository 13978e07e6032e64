package protocol

import (
	"bytes"
	"fmt"
	"maps"
)

// StatusCode is the single status byte of a system message.
type StatusCode byte

const (
	StatusNoMessage     StatusCode = 0x01
	StatusTimeout       StatusCode = 0x02
	StatusWakeUp        StatusCode = 0x04
	StatusTCPSocket     StatusCode = 0x11
	StatusNotExecuted   StatusCode = 0x81
	StatusNotRecognized StatusCode = 0x82
	StatusAck           StatusCode = 0x83
	StatusReady         StatusCode = 0x84
	StatusDataHoldup    StatusCode = 0x92
)

const (
	// SystemMessageMarker starts a system message in the read buffer.
	SystemMessageMarker = 0x18
	// statusOffset is the distance from the marker to the status byte.
	statusOffset = 2
)

// String returns the hex key form, e.g. "0x83".
func (c StatusCode) String() string {
	return fmt.Sprintf("0x%02X", byte(c))
}

var defaultMessages = map[StatusCode]string{
	StatusNoMessage:     "No message inside the message buffer",
	StatusTimeout:       "Timeout: Communication-timeout (less data than expected)",
	StatusWakeUp:        "Wake-Up Message: System boot ready",
	StatusTCPSocket:     "TCP-Socket: Valid TCP client-socket connection",
	StatusNotExecuted:   "Not-Acknowledge: Command has not been executed",
	StatusNotRecognized: "Not-Acknowledge: Command could not be recognized",
	StatusAck:           "Command-Acknowledge: Command has been executed successfully",
	StatusReady:         "System-Ready Message: System is operational and ready to receive data",
	StatusDataHoldup:    "Data holdup: Measurement data could not be sent via the master interface",
}

// StatusRegistry maps status codes to descriptions.
type StatusRegistry struct {
	messages map[StatusCode]string
}

// DefaultStatusRegistry returns the device's built-in status table.
func DefaultStatusRegistry() *StatusRegistry {
	return NewStatusRegistry(defaultMessages)
}

// NewStatusRegistry builds a registry from a copy of messages.
func NewStatusRegistry(messages map[StatusCode]string) *StatusRegistry {
	return &StatusRegistry{messages: maps.Clone(messages)}
}

// Lookup returns the description of code or an UnknownStatusError.
func (r *StatusRegistry) Lookup(code StatusCode) (string, error) {
	msg, ok := r.messages[code]
	if !ok {
		return "", &UnknownStatusError{Code: code}
	}

	return msg, nil
}

// Describe never fails; unknown codes get a generic description.
func (r *StatusRegistry) Describe(code StatusCode) string {
	msg, err := r.Lookup(code)
	if err != nil {
		return fmt.Sprintf("Unknown status code %s", code)
	}

	return msg
}

// Known reports whether code is in the registry.
func (r *StatusRegistry) Known(code StatusCode) bool {
	_, ok := r.messages[code]

	return ok
}

// ScanSystemMessage finds the first system message in buf. When there is
// none it returns StatusNoMessage and false.
func ScanSystemMessage(buf []byte) (StatusCode, bool) {
	idx := bytes.IndexByte(buf, SystemMessageMarker)
	if idx < 0 || idx+statusOffset >= len(buf) {
		return StatusNoMessage, false
	}

	return StatusCode(buf[idx+statusOffset]), true
}
