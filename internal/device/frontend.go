package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/protocol"
)

// FrontendRequest selects the electrode topology by its wire mode code
// (0x01 2-point, 0x02 4-point, 0x03 3-point) and names the channel and ranges.
type FrontendRequest struct {
	Mode         byte
	Channel      string
	CurrentRange string
	VoltageRange string
}

type FrontendResult struct {
	Command  protocol.FrontendSettings
	Frame    []byte
	Ack      SystemMessage
	Warnings []normalize.Warning
}

// ApplyFrontendSettings clears the settings stack and writes one frontend
// configuration. Invalid request fields are replaced by defaults.
func (s *Session) ApplyFrontendSettings(ctx context.Context, req FrontendRequest) (FrontendResult, error) {
	if err := s.ready(); err != nil {
		return FrontendResult{}, err
	}

	if _, err := s.write(ctx, protocol.ClearStack{}); err != nil {
		return FrontendResult{}, err
	}
	if _, err := s.readSystemMessage(ctx); err != nil {
		return FrontendResult{}, err
	}

	cmd, warnings := frontendCommand(req)
	s.warn(warnings...)

	frame, err := s.write(ctx, cmd)
	if err != nil {
		return FrontendResult{}, err
	}

	raw, err := s.read(ctx, ackReadSize)
	if err != nil {
		return FrontendResult{}, fmt.Errorf("read frontend acknowledgement: %w", err)
	}
	ack := s.decodeMessage(raw)
	s.reportMessage(ctx, ack)

	s.state = StateFrontendConfigured

	return FrontendResult{Command: cmd, Frame: frame, Ack: ack, Warnings: warnings}, nil
}

func frontendCommand(req FrontendRequest) (protocol.FrontendSettings, []normalize.Warning) {
	var warnings []normalize.Warning

	mode := req.Mode
	if !normalize.ValidMode(mode) {
		warnings = append(warnings, normalize.Warning{
			Field:   "measurement mode",
			Input:   fmt.Sprintf("0x%02X", mode),
			Default: fmt.Sprintf("0x%02X", normalize.DefaultMode),
			Reason:  "unknown mode",
		})
		mode = normalize.DefaultMode
	}

	channel, ok := normalize.MeasurementChannel(req.Channel)
	if !ok {
		warnings = append(warnings, lookupWarning("measurement channel", req.Channel, normalize.DefaultChannel))
		channel = normalize.DefaultChannel
	}
	current, ok := normalize.CurrentRange(req.CurrentRange)
	if !ok {
		warnings = append(warnings, lookupWarning("current range", req.CurrentRange, normalize.DefaultCurrentRange))
		current = normalize.DefaultCurrentRange
	}
	voltage, ok := normalize.VoltageRange(req.VoltageRange)
	if !ok {
		warnings = append(warnings, lookupWarning("voltage range", req.VoltageRange, normalize.DefaultVoltageRange))
		voltage = normalize.DefaultVoltageRange
	}

	topology, _ := protocol.TopologyForMode(mode)
	channels := make([]protocol.ChannelRef, len(topology.Roles))
	for i := range channels {
		channels[i] = protocol.ChannelRef{Code: channel}
	}

	return protocol.FrontendSettings{
		Mode:         mode,
		CurrentRange: current,
		VoltageRange: voltage,
		Channels:     channels,
	}, warnings
}

func lookupWarning(field, input string, def byte) normalize.Warning {
	return normalize.Warning{
		Field:   field,
		Input:   input,
		Default: fmt.Sprintf("0x%02X", def),
		Reason:  "not in lookup table",
	}
}

// QueryFrontendSettings reads the configured channels back from the device.
// An empty result with a nil error means no channels are configured. Frames
// that fail to decode are reported in the joined error while the remaining
// channels are still returned.
func (s *Session) QueryFrontendSettings(ctx context.Context) ([]protocol.ChannelConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	if _, err := s.write(ctx, protocol.ChannelCountQuery{}); err != nil {
		return nil, err
	}
	resp, err := s.read(ctx, channelCountReadSize)
	if err != nil {
		return nil, fmt.Errorf("read channel count: %w", err)
	}
	count, err := protocol.ParseChannelCount(resp)
	if err != nil {
		s.metrics.MalformedFrames(1)
		return nil, err
	}
	if count == 0 {
		s.logger.Info("no configured channels")
		return nil, nil
	}
	if count > 0xFF {
		s.logger.Warn("channel count exceeds query range", "count", count)
		count = 0xFF
	}

	var (
		configs []protocol.ChannelConfig
		errs    []error
	)
	for i := 1; i <= count; i++ {
		cfg, err := s.queryChannel(ctx, byte(i))
		if err != nil {
			if ctx.Err() != nil {
				return configs, errors.Join(append(errs, err)...)
			}
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
			continue
		}
		configs = append(configs, cfg)
	}

	return configs, errors.Join(errs...)
}

func (s *Session) queryChannel(ctx context.Context, index byte) (protocol.ChannelConfig, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		return protocol.ChannelConfig{}, fmt.Errorf("reset input buffer: %w", err)
	}
	if _, err := s.write(ctx, protocol.ChannelQuery{Index: index}); err != nil {
		return protocol.ChannelConfig{}, err
	}
	resp, err := s.read(ctx, channelReadSize)
	if err != nil {
		return protocol.ChannelConfig{}, err
	}

	cfg, err := protocol.ParseChannelConfig(resp)
	if err != nil {
		s.metrics.MalformedFrames(1)
		return protocol.ChannelConfig{}, err
	}
	s.logger.Debug("frontend channel", "index", index, "config", cfg.String())

	return cfg, nil
}
