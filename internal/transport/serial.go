package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = time.Second
)

// SerialOpener opens USB full-speed serial links with 8N1 framing.
type SerialOpener struct {
	baudRate    int
	readTimeout time.Duration
	trace       bool
	logger      *slog.Logger
}

func NewSerialOpener(baudRate int, readTimeout time.Duration, trace bool) *SerialOpener {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &SerialOpener{
		baudRate:    baudRate,
		readTimeout: readTimeout,
		trace:       trace,
		logger:      transportLogger("serial", "baud", baudRate),
	}
}

func (o *SerialOpener) Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	return out, nil
}

func (o *SerialOpener) Open(ctx context.Context, name string) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("serial port is empty")
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", name, err)
	}
	if err := port.SetReadTimeout(o.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}
	o.logger.Debug("serial port opened", "port", name, "read_timeout", o.readTimeout)

	if o.trace {
		return NewTracePort(port, o.logger.With("port", name)), nil
	}

	return port, nil
}
