package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/protocol"
)

const captureChunkSize = 4096

// MeasurementReport is the outcome of one StartMeasurement call.
type MeasurementReport struct {
	RunID           uuid.UUID
	StartedAt       time.Time
	FinishedAt      time.Time
	Spectra         uint16
	FrequencyPoints int
	Expected        int
	Results         []protocol.MeasurementResult
	// TimedOut is set when the capture window closed before Expected results arrived.
	TimedOut     bool
	SkippedBytes int
	StopAck      SystemMessage
	ResetMessage SystemMessage
}

func (r MeasurementReport) Received() int {
	return len(r.Results)
}

// StartMeasurement runs spectra sweeps over the configured frequency points and
// collects results until spectra*points arrive or the capture timeout elapses.
// A timeout is not an error: the partial results are returned. The device is
// always stopped, reset and given time to settle before returning.
func (s *Session) StartMeasurement(ctx context.Context, spectra int) (MeasurementReport, error) {
	if err := s.ready(); err != nil {
		return MeasurementReport{}, err
	}

	n, w := normalize.Spectra(spectra)
	if w != nil {
		s.warn(*w)
	}

	report := MeasurementReport{
		RunID:           uuid.New(),
		StartedAt:       time.Now(),
		Spectra:         n,
		FrequencyPoints: s.frequencyPoints,
		Expected:        int(n) * s.frequencyPoints,
	}
	logger := s.logger.With("run_id", report.RunID.String())

	if _, err := s.write(ctx, protocol.MeasurementStart{Spectra: n}); err != nil {
		return report, err
	}
	s.state = StateMeasuring
	logger.Info("measurement started", "spectra", n, "frequency_points", s.frequencyPoints, "expected", report.Expected)

	captureErr := s.capture(ctx, &report)
	if report.TimedOut {
		s.metrics.CaptureTimedOut()
		logger.Warn("measurement capture timed out",
			"received", report.Received(),
			"expected", report.Expected,
			"timeout", s.captureTimeout,
		)
	}

	// The stop and reset sequence runs even when ctx is already cancelled.
	cleanupCtx := context.WithoutCancel(ctx)
	stopErr := s.StopMeasurement(cleanupCtx)
	if stopErr == nil {
		report.StopAck, stopErr = s.readSystemMessage(cleanupCtx)
	}
	s.state = StateIdle

	var resetErr error
	report.ResetMessage, resetErr = s.SoftwareReset(cleanupCtx)
	settleErr := s.settle(ctx)

	report.FinishedAt = time.Now()
	logger.Info("measurement finished",
		"received", report.Received(),
		"expected", report.Expected,
		"timed_out", report.TimedOut,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	return report, errors.Join(captureErr, stopErr, resetErr, settleErr)
}

func (s *Session) capture(ctx context.Context, report *MeasurementReport) error {
	var (
		scanner  protocol.MeasurementScanner
		chunk    = make([]byte, captureChunkSize)
		deadline = time.Now().Add(s.captureTimeout)
	)
	defer func() { report.SkippedBytes = scanner.Skipped() }()

	for len(report.Results) < report.Expected {
		if time.Now().After(deadline) {
			report.TimedOut = true
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := s.port.Read(chunk)
		if m > 0 {
			s.metrics.BytesRead(m)
			results := scanner.Feed(chunk[:m])
			s.metrics.ResultsParsed(len(results))
			report.Results = append(report.Results, results...)
		}
		if err != nil {
			return fmt.Errorf("read measurement data: %w", err)
		}
	}

	return nil
}

func (s *Session) settle(ctx context.Context) error {
	if s.settleDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
