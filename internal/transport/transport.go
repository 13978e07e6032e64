package transport

import (
	"context"
	"io"
)

// Port is an open byte-oriented link to an instrument. Read returns 0 bytes
// and a nil error when the driver read timeout elapses without data.
type Port interface {
	io.ReadWriter
	ResetInputBuffer() error
	Close() error
}

// PortInfo describes a port found during enumeration.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Opener lists available ports and opens them by name.
type Opener interface {
	Ports() ([]PortInfo, error)
	Open(ctx context.Context, name string) (Port, error)
}
