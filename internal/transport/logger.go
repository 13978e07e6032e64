package transport

import (
	"encoding/hex"
	"log/slog"
)

func transportLogger(name string, attrs ...any) *slog.Logger {
	logger := slog.With("component", "transport", "transport", name)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}

// TracePort logs every frame written to and read from the wrapped port as hex.
type TracePort struct {
	Port
	logger *slog.Logger
}

func NewTracePort(port Port, logger *slog.Logger) *TracePort {
	if logger == nil {
		logger = transportLogger("trace")
	}

	return &TracePort{Port: port, logger: logger}
}

func (p *TracePort) Write(b []byte) (int, error) {
	n, err := p.Port.Write(b)
	p.logger.Debug("tx", "bytes", n, "hex", hex.EncodeToString(b[:n]), "error", err)

	return n, err
}

func (p *TracePort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n > 0 || err != nil {
		p.logger.Debug("rx", "bytes", n, "hex", hex.EncodeToString(b[:n]), "error", err)
	}

	return n, err
}

func (p *TracePort) ResetInputBuffer() error {
	p.logger.Debug("reset input buffer")

	return p.Port.ResetInputBuffer()
}
