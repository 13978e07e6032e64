package device

import (
	"context"

	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/protocol"
)

type SetupRequest struct {
	StartFrequency string
	EndFrequency   string
	Count          int
	Scale          string
	Precision      float64
	Amplitude      string
	Excitation     string
}

type SetupResult struct {
	Command  protocol.Setup
	Frame    []byte
	Ack      SystemMessage
	Warnings []normalize.Warning
	// FrequencyPoints is the requested count; EncodedCount is what the device was sent.
	FrequencyPoints int
	EncodedCount    int
}

// ApplySetup resets the sweep setup and writes a new one. Verbosity is turned
// off. The session keeps the requested count as its frequency point count,
// even when an out-of-range count was encoded as the default.
func (s *Session) ApplySetup(ctx context.Context, req SetupRequest) (SetupResult, error) {
	if err := s.ready(); err != nil {
		return SetupResult{}, err
	}

	s.verbose = false

	if _, err := s.write(ctx, protocol.SetupReset{}); err != nil {
		return SetupResult{}, err
	}
	if _, err := s.readSystemMessage(ctx); err != nil {
		return SetupResult{}, err
	}

	s.frequencyPoints = req.Count

	cmd, warnings := setupCommand(req)
	s.warn(warnings...)

	encoded := normalize.EffectiveCount(req.Count)
	if encoded != req.Count {
		s.logger.Warn("frequency points differ from encoded count",
			"frequency_points", req.Count,
			"encoded_count", encoded,
		)
	}

	frame, err := s.write(ctx, cmd)
	if err != nil {
		return SetupResult{}, err
	}
	ack, err := s.readSystemMessage(ctx)
	if err != nil {
		return SetupResult{}, err
	}

	s.state = StateSetupConfigured

	return SetupResult{
		Command:         cmd,
		Frame:           frame,
		Ack:             ack,
		Warnings:        warnings,
		FrequencyPoints: req.Count,
		EncodedCount:    encoded,
	}, nil
}

func setupCommand(req SetupRequest) (protocol.Setup, []normalize.Warning) {
	start, end, warnings := normalize.FrequencyRange(req.StartFrequency, req.EndFrequency)

	count, w := normalize.Count(req.Count)
	warnings = appendWarning(warnings, w)
	scale, w := normalize.Scale(req.Scale)
	warnings = appendWarning(warnings, w)
	precision, w := normalize.Precision(req.Precision)
	warnings = appendWarning(warnings, w)
	amplitude, ws := normalize.Amplitude(req.Amplitude, req.Excitation)
	warnings = append(warnings, ws...)

	return protocol.Setup{
		StartFrequency: start,
		EndFrequency:   end,
		Count:          count,
		Scale:          scale,
		Precision:      precision,
		Amplitude:      amplitude,
	}, warnings
}

func appendWarning(warnings []normalize.Warning, w *normalize.Warning) []normalize.Warning {
	if w == nil {
		return warnings
	}

	return append(warnings, *w)
}
