// Package device drives an ISX-3 impedance analyzer over a serial link.
package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/protocol"
	"github.com/skobkin/isxgo/internal/transport"
)

const (
	DefaultCaptureTimeout = 10 * time.Second
	DefaultSettleDelay    = 6 * time.Second

	channelCountReadSize = 16
	channelReadSize      = 32
	ackReadSize          = 4
)

type Options struct {
	Statuses       *protocol.StatusRegistry
	Metrics        Metrics
	CaptureTimeout time.Duration
	// SettleDelay is waited after the post-measurement software reset.
	SettleDelay time.Duration
	Verbose     bool
}

func DefaultOptions() Options {
	return Options{
		CaptureTimeout: DefaultCaptureTimeout,
		SettleDelay:    DefaultSettleDelay,
	}
}

// Session owns one serial link to the device. It is not safe for concurrent use.
type Session struct {
	logger         *slog.Logger
	opener         transport.Opener
	statuses       *protocol.StatusRegistry
	metrics        Metrics
	captureTimeout time.Duration
	settleDelay    time.Duration

	port            transport.Port
	portName        string
	state           State
	verbose         bool
	frequencyPoints int
}

func NewSession(logger *slog.Logger, opener transport.Opener, opts Options) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Statuses == nil {
		opts.Statuses = protocol.DefaultStatusRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}

	return &Session{
		logger:         logger.With("component", "device"),
		opener:         opener,
		statuses:       opts.Statuses,
		metrics:        opts.Metrics,
		captureTimeout: opts.CaptureTimeout,
		settleDelay:    opts.SettleDelay,
		verbose:        opts.Verbose,
	}
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Port() string {
	return s.portName
}

// FrequencyPoints is the sweep point count recorded by the last ApplySetup.
func (s *Session) FrequencyPoints() int {
	return s.frequencyPoints
}

func (s *Session) Verbose() bool {
	return s.verbose
}

func (s *Session) SetVerbose(v bool) {
	s.verbose = v
}

// Connect opens name after checking that it is currently enumerated.
func (s *Session) Connect(ctx context.Context, name string) error {
	if s.port != nil {
		return ErrAlreadyConnected
	}

	ports, err := s.opener.Ports()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if !slices.ContainsFunc(ports, func(p transport.PortInfo) bool { return p.Name == name }) {
		return fmt.Errorf("%w: %q", ErrPortUnavailable, name)
	}

	port, err := s.opener.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("connect %q: %w", name, err)
	}

	s.port = port
	s.portName = name
	s.state = StateConnected
	s.logger.Info("connected", "port", name)

	return nil
}

func (s *Session) Close() error {
	if s.port == nil {
		return nil
	}

	err := s.port.Close()
	s.logger.Info("disconnected", "port", s.portName)
	s.port = nil
	s.portName = ""
	s.state = StateDisconnected
	s.frequencyPoints = 0
	if err != nil {
		return fmt.Errorf("close port: %w", err)
	}

	return nil
}

// SystemMessage drains pending input and decodes the first system message in it.
func (s *Session) SystemMessage(ctx context.Context) (SystemMessage, error) {
	if s.port == nil {
		return SystemMessage{}, ErrNotConnected
	}

	return s.readSystemMessage(ctx)
}

// StopMeasurement writes the stop frame. The acknowledgement is left unread.
func (s *Session) StopMeasurement(ctx context.Context) error {
	if s.port == nil {
		return ErrNotConnected
	}

	_, err := s.write(ctx, protocol.MeasurementStop{})

	return err
}

// SoftwareReset restarts the device firmware. Its system message is always
// reported and verbosity is off afterwards.
func (s *Session) SoftwareReset(ctx context.Context) (SystemMessage, error) {
	if s.port == nil {
		return SystemMessage{}, ErrNotConnected
	}

	s.verbose = true
	defer func() { s.verbose = false }()

	if _, err := s.write(ctx, protocol.SoftwareReset{}); err != nil {
		return SystemMessage{}, err
	}

	return s.readSystemMessage(ctx)
}

func (s *Session) ready() error {
	if s.port == nil {
		return ErrNotConnected
	}
	if s.state == StateMeasuring {
		return ErrMeasuring
	}

	return nil
}

func (s *Session) write(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	frame, err := protocol.Encode(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Family(), err)
	}
	if err := transport.WriteFull(ctx, s.port, frame); err != nil {
		return nil, fmt.Errorf("write %s frame: %w", cmd.Family(), err)
	}
	s.metrics.FrameWritten(cmd.Family())
	s.logger.Debug("frame written", "family", cmd.Family().String(), "hex", hex.EncodeToString(frame))

	return frame, nil
}

func (s *Session) read(ctx context.Context, n int) ([]byte, error) {
	raw, err := transport.ReadUpTo(ctx, s.port, n)
	s.metrics.BytesRead(len(raw))

	return raw, err
}

func (s *Session) readSystemMessage(ctx context.Context) (SystemMessage, error) {
	raw, err := transport.Drain(ctx, s.port, 0)
	s.metrics.BytesRead(len(raw))
	msg := s.decodeMessage(raw)
	s.reportMessage(ctx, msg)
	if err != nil {
		return msg, fmt.Errorf("read system message: %w", err)
	}

	return msg, nil
}

func (s *Session) decodeMessage(raw []byte) SystemMessage {
	code, found := protocol.ScanSystemMessage(raw)
	if found {
		s.metrics.StatusReceived(code)
	}

	return SystemMessage{
		Raw:         raw,
		Code:        code,
		Found:       found,
		Known:       s.statuses.Known(code),
		Description: s.statuses.Describe(code),
	}
}

func (s *Session) reportMessage(ctx context.Context, msg SystemMessage) {
	if !msg.Known {
		s.logger.Warn("unknown status code", "code", msg.Code.String(), "raw", hex.EncodeToString(msg.Raw))
		return
	}

	level := slog.LevelDebug
	if s.verbose {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "system message", "code", msg.Code.String(), "message", msg.Description)
}

func (s *Session) warn(warnings ...normalize.Warning) {
	for _, w := range warnings {
		s.logger.Warn("invalid parameter, using default",
			"field", w.Field,
			"input", w.Input,
			"default", w.Default,
			"reason", w.Reason,
		)
	}
}

// SystemMessage is a decoded status report from the device.
type SystemMessage struct {
	Raw         []byte
	Code        protocol.StatusCode
	Found       bool
	Known       bool
	Description string
}

func (m SystemMessage) String() string {
	return fmt.Sprintf("%s: %s", m.Code, m.Description)
}
