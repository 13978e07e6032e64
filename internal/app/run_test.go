package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/device"
	"github.com/skobkin/isxgo/internal/export"
	"github.com/skobkin/isxgo/internal/metrics"
	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/notifications"
	"github.com/skobkin/isxgo/internal/protocol"
	"github.com/skobkin/isxgo/internal/transport"
	"github.com/skobkin/isxgo/internal/transport/transporttest"
)

// analyzer answers every command with an ACK and emits results after a start frame.
func analyzer(points int) transporttest.Responder {
	return func(written []byte) []byte {
		cmd, err := protocol.DecodeCommand(written)
		if err != nil {
			return []byte{0x18, 0x01, 0x82, 0x18}
		}
		start, ok := cmd.(protocol.MeasurementStart)
		if !ok {
			return []byte{0x18, 0x01, 0x83, 0x18}
		}

		var out []byte
		for i := 0; i < int(start.Spectra)*points; i++ {
			frame := protocol.EncodeMeasurementResult(protocol.MeasurementResult{
				FrequencyID: uint16(i % points),
				Real:        float32(100 + i),
				Imaginary:   -1,
			})
			out = append(out, frame[:]...)
		}
		return out
	}
}

type recordingSink struct {
	name    string
	records []export.Record
	err     error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, rec export.Record) error {
	s.records = append(s.records, rec)
	return s.err
}

type recordingSender struct {
	sent []notifications.Payload
}

func (s *recordingSender) Send(p notifications.Payload) { s.sent = append(s.sent, p) }

func connectedSession(t *testing.T, points int, collector *metrics.Collector) *device.Session {
	t.Helper()

	opener := &transporttest.Opener{
		Known: []transport.PortInfo{{Name: "/dev/ttyACM0"}},
		Port:  transporttest.NewPort(analyzer(points)),
	}
	opts := device.Options{CaptureTimeout: time.Second}
	if collector != nil {
		opts.Metrics = collector
	}
	session := device.NewSession(slog.New(slog.DiscardHandler), opener, opts)
	require.NoError(t, session.Connect(context.Background(), "/dev/ttyACM0"))

	return session
}

func TestPlanFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Frontend.Points = 3
	cfg.Setup.Count = 15
	cfg.Measurement.Spectra = 4

	plan := PlanFromConfig(cfg, nil)
	assert.Equal(t, protocol.ModeThreePoint, plan.Frontend.Mode)
	assert.Equal(t, "Main Port", plan.Frontend.Channel)
	assert.Equal(t, 15, plan.Setup.Count)
	assert.Equal(t, 4, plan.Spectra)

	cfg.Frontend.Points = 9
	plan = PlanFromConfig(cfg, slog.New(slog.DiscardHandler))
	assert.Equal(t, normalize.DefaultMode, plan.Frontend.Mode)
}

func TestRunnerRunExportsReport(t *testing.T) {
	collector := metrics.New()
	session := connectedSession(t, 5, collector)
	dir := t.TempDir()

	sink := &recordingSink{name: "memory"}
	sender := &recordingSender{}
	sinks := []export.Sink{export.CSVSink{Path: filepath.Join(dir, "sweep.csv")}, sink}
	runner := NewRunner(slog.New(slog.DiscardHandler), session, sinks, sender, collector, filepath.Join(dir, "isx3.prom"))

	cfg := config.Default()
	cfg.Setup.Count = 5
	cfg.Measurement.Spectra = 2

	report, err := runner.Run(context.Background(), PlanFromConfig(cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, 10, report.Expected)
	assert.Equal(t, 10, report.Received())
	assert.False(t, report.TimedOut)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "/dev/ttyACM0", sink.records[0].Port)
	assert.Equal(t, report.RunID, sink.records[0].Report.RunID)

	csvRaw, err := os.ReadFile(filepath.Join(dir, "sweep.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvRaw), "Frequency ID,Real Part,Imaginary Part\n0,100,-1\n")

	promRaw, err := os.ReadFile(filepath.Join(dir, "isx3.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(promRaw), "isx3_measurement_runs_total 1")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Measurement finished", sender.sent[0].Title)
	assert.Equal(t, "10 of 10 results received", sender.sent[0].Content)
}

func TestRunnerRunKeepsReportWhenSinkFails(t *testing.T) {
	session := connectedSession(t, 2, nil)
	failing := &recordingSink{name: "broken", err: errors.New("disk full")}
	healthy := &recordingSink{name: "memory"}
	runner := NewRunner(nil, session, []export.Sink{failing, healthy}, nil, nil, "")

	cfg := config.Default()
	cfg.Setup.Count = 2
	cfg.Measurement.Spectra = 1

	report, err := runner.Run(context.Background(), PlanFromConfig(cfg, nil))
	require.ErrorContains(t, err, "broken sink: disk full")
	assert.Equal(t, 2, report.Received())
	assert.Len(t, healthy.records, 1)
}

func TestRunnerRunRequiresConnection(t *testing.T) {
	session := device.NewSession(nil, &transporttest.Opener{}, device.DefaultOptions())
	runner := NewRunner(nil, session, nil, nil, nil, "")

	_, err := runner.Run(context.Background(), RunPlan{})
	require.ErrorIs(t, err, device.ErrNotConnected)
}

func TestOpenSinks(t *testing.T) {
	dir := t.TempDir()
	sinks, closeSinks, err := OpenSinks(context.Background(), config.OutputConfig{
		CSVPath:    filepath.Join(dir, "out.csv"),
		SQLitePath: filepath.Join(dir, "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closeSinks()) })

	require.Len(t, sinks, 2)
	assert.Equal(t, "csv", sinks[0].Name())
	assert.Equal(t, "sqlite", sinks[1].Name())

	store := sinks[1].(export.StoreSink)
	_, err = store.Repo.List(context.Background(), 1)
	require.NoError(t, err)
}

func TestOpenSinksNone(t *testing.T) {
	sinks, closeSinks, err := OpenSinks(context.Background(), config.OutputConfig{})
	require.NoError(t, err)
	assert.Empty(t, sinks)
	require.NoError(t, closeSinks())
}

func TestRunnerMeasureSkipsFrontend(t *testing.T) {
	session := connectedSession(t, 3, nil)
	sink := &recordingSink{name: "memory"}
	runner := NewRunner(nil, session, []export.Sink{sink}, nil, nil, "")

	report, err := runner.Measure(context.Background(), device.SetupRequest{Count: 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Received())
	assert.Equal(t, device.StateIdle, session.State())
	require.Len(t, sink.records, 1)
	assert.Equal(t, 3, sink.records[0].Setup.Count)
}
