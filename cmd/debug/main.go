package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/isxgo/internal/app"
	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/logging"
	"github.com/skobkin/isxgo/internal/platform"
	"github.com/skobkin/isxgo/internal/protocol"
	"github.com/skobkin/isxgo/internal/transport"
)

const (
	defaultReplyWait = 2 * time.Second
	maxHexPreviewLen = 64
)

func main() {
	if err := run(); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.String("port", "", "serial port, e.g. /dev/ttyACM0 or COM3")
	frame := flag.String("hex", "", "frame to send as hex, e.g. \"B1 03 02 00 B1\"")
	baud := flag.Int("baud", 0, "baud rate override")
	wait := flag.Duration("wait", defaultReplyWait, "upper bound for collecting the reply")
	trace := flag.Bool("trace", false, "log every transferred byte")
	flag.Parse()

	raw, err := parseHexFrame(*frame)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*port) != "" {
		cfg.Connection.SerialPort = strings.TrimSpace(*port)
	}
	if *baud > 0 {
		cfg.Connection.SerialBaud = *baud
	}
	if err := cfg.RequirePort(); err != nil {
		return fmt.Errorf("%w: set -port or save connection serial_port in config", err)
	}

	logMgr := logging.NewManager()
	cfg.Logging.LogToFile = false
	if *trace {
		cfg.Logging.Level = "debug"
	}
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cli")
	logger.Info("starting isx3 debug", "version", app.BuildVersion(), "build_date", app.BuildDateYMD())

	lock, err := platform.AcquirePortLock(app.Name, cfg.Connection.SerialPort)
	if err != nil && !errors.Is(err, platform.ErrPortLockUnsupported) {
		return fmt.Errorf("lock %s: %w", cfg.Connection.SerialPort, err)
	}
	if lock != nil {
		defer func() { _ = lock.Release() }()
	}

	opener := transport.NewSerialOpener(cfg.Connection.SerialBaud, cfg.Connection.ReadTimeout, *trace)
	p, err := opener.Open(ctx, cfg.Connection.SerialPort)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Connection.SerialPort, err)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Warn("close port", "error", closeErr)
		}
	}()

	reply, err := exchange(ctx, p, raw, *wait)
	logger.Info("tx", "len", len(raw), "hex", previewHex(hex.EncodeToString(raw)))
	logger.Info("rx", "len", len(reply), "hex", previewHex(hex.EncodeToString(reply)))
	if err != nil {
		return err
	}

	for _, line := range describeReply(raw, reply, protocol.DefaultStatusRegistry()) {
		fmt.Fprintln(os.Stdout, line)
	}

	return nil
}

// parseHexFrame accepts bytes separated by spaces, colons or nothing, with
// an optional 0x prefix per byte.
func parseHexFrame(input string) ([]byte, error) {
	cleaned := strings.NewReplacer("0x", "", "0X", "", " ", "", ":", "", ",", "", "\t", "").Replace(input)
	if cleaned == "" {
		return nil, errors.New("missing frame: set -hex")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("parse hex frame: %w", err)
	}

	return raw, nil
}

func exchange(ctx context.Context, rw io.ReadWriter, frame []byte, wait time.Duration) ([]byte, error) {
	if err := transport.WriteFull(ctx, rw, frame); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	reply, err := transport.Drain(ctx, rw, transport.DefaultDrainLimit)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return reply, fmt.Errorf("read reply: %w", err)
	}

	return reply, nil
}

// describeReply decodes what the sent frame is expected to produce.
func describeReply(sent, reply []byte, statuses *protocol.StatusRegistry) []string {
	var lines []string
	if cmd, err := protocol.DecodeCommand(sent); err == nil {
		lines = append(lines, fmt.Sprintf("sent %s command %T", cmd.Family(), cmd))
	} else {
		lines = append(lines, fmt.Sprintf("sent unrecognized frame: %v", err))
	}

	if len(reply) == 0 {
		return append(lines, "no reply")
	}
	lines = append(lines, "reply "+strings.ToUpper(hex.EncodeToString(reply)))

	if code, ok := protocol.ScanSystemMessage(reply); ok {
		lines = append(lines, fmt.Sprintf("status 0x%02X: %s", byte(code), statuses.Describe(code)))
	}

	if reply[0] == byte(protocol.FamilyFrontendQuery) {
		if count, err := protocol.ParseChannelCount(reply); err == nil && len(sent) > 2 && sent[2] == 0x02 {
			lines = append(lines, fmt.Sprintf("configured channels: %d", count))
		}
		configs, err := protocol.ParseConfigResponse(reply)
		for _, c := range configs {
			lines = append(lines, c.String())
		}
		if err != nil && len(configs) > 0 {
			lines = append(lines, "partial config: "+err.Error())
		}
	}

	results := protocol.ParseMeasurementStream(reply)
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("result freq=%d real=%g imag=%g", r.FrequencyID, r.Real, r.Imaginary))
	}

	return lines
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
