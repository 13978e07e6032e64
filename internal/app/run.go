package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/device"
	"github.com/skobkin/isxgo/internal/export"
	"github.com/skobkin/isxgo/internal/metrics"
	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/notifications"
	"github.com/skobkin/isxgo/internal/persistence"
)

// RunPlan is a complete frontend, setup and measurement sequence.
type RunPlan struct {
	Frontend device.FrontendRequest
	Setup    device.SetupRequest
	Spectra  int
}

// PlanFromConfig maps the configured electrode count to its mode code.
// An unknown count falls back to the default mode with a warning.
func PlanFromConfig(cfg config.AppConfig, logger *slog.Logger) RunPlan {
	mode, ok := normalize.MeasurementMode(cfg.Frontend.Points)
	if !ok {
		if logger != nil {
			logger.Warn("invalid measurement points, using default",
				"points", cfg.Frontend.Points,
				"default", fmt.Sprintf("0x%02X", normalize.DefaultMode),
			)
		}
		mode = normalize.DefaultMode
	}

	return RunPlan{
		Frontend: device.FrontendRequest{
			Mode:         mode,
			Channel:      cfg.Frontend.Channel,
			CurrentRange: cfg.Frontend.CurrentRange,
			VoltageRange: cfg.Frontend.VoltageRange,
		},
		Setup: device.SetupRequest{
			StartFrequency: cfg.Setup.StartFrequency,
			EndFrequency:   cfg.Setup.EndFrequency,
			Count:          cfg.Setup.Count,
			Scale:          cfg.Setup.Scale,
			Precision:      cfg.Setup.Precision,
			Amplitude:      cfg.Setup.Amplitude,
			Excitation:     cfg.Setup.Excitation,
		},
		Spectra: cfg.Measurement.Spectra,
	}
}

// Runner executes run plans on a connected session and hands the results to sinks.
type Runner struct {
	logger      *slog.Logger
	session     *device.Session
	sinks       []export.Sink
	notifier    notifications.Sender
	metrics     *metrics.Collector
	metricsFile string
}

func NewRunner(
	logger *slog.Logger,
	session *device.Session,
	sinks []export.Sink,
	notifier notifications.Sender,
	collector *metrics.Collector,
	metricsFile string,
) *Runner {
	if logger == nil {
		logger = slog.Default().With("component", "app.runner")
	}
	if notifier == nil {
		notifier = notifications.NopSender{}
	}

	return &Runner{
		logger:      logger,
		session:     session,
		sinks:       sinks,
		notifier:    notifier,
		metrics:     collector,
		metricsFile: metricsFile,
	}
}

// Run configures the frontend and then measures with Measure.
func (r *Runner) Run(ctx context.Context, plan RunPlan) (device.MeasurementReport, error) {
	if _, err := r.session.ApplyFrontendSettings(ctx, plan.Frontend); err != nil {
		return device.MeasurementReport{}, fmt.Errorf("frontend settings: %w", err)
	}

	return r.Measure(ctx, plan.Setup, plan.Spectra)
}

// Measure configures the sweep, measures, and exports the report. The frontend
// keeps whatever configuration the device already holds.
// Sink failures are returned joined but do not discard the report.
func (r *Runner) Measure(ctx context.Context, setup device.SetupRequest, spectra int) (device.MeasurementReport, error) {
	if _, err := r.session.ApplySetup(ctx, setup); err != nil {
		return device.MeasurementReport{}, fmt.Errorf("setup: %w", err)
	}

	report, measureErr := r.session.StartMeasurement(ctx, spectra)
	if measureErr != nil && report.Received() == 0 {
		return report, fmt.Errorf("measurement: %w", measureErr)
	}

	errs := []error{measureErr}
	errs = append(errs, r.Export(ctx, export.Record{
		Port:   r.session.Port(),
		Setup:  setup,
		Report: report,
	}))

	return report, errors.Join(errs...)
}

// Export writes a finished run to every sink, updates metrics and notifies.
func (r *Runner) Export(ctx context.Context, rec export.Record) error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			r.logger.Error("export failed", "sink", sink.Name(), "run_id", rec.Report.RunID.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
			continue
		}
		r.logger.Debug("run exported", "sink", sink.Name(), "run_id", rec.Report.RunID.String())
	}

	if r.metrics != nil {
		r.metrics.RunCompleted()
		if r.metricsFile != "" {
			if err := r.metrics.WriteTextfile(r.metricsFile); err != nil {
				errs = append(errs, err)
			}
		}
	}

	r.notifier.Send(runNotification(rec.Report))

	return errors.Join(errs...)
}

func runNotification(report device.MeasurementReport) notifications.Payload {
	title := "Measurement finished"
	if report.TimedOut {
		title = "Measurement timed out"
	}

	return notifications.Payload{
		Title:   title,
		Content: fmt.Sprintf("%d of %d results received", report.Received(), report.Expected),
	}
}

// OpenSinks builds the sinks enabled in cfg. The returned closer releases
// database and Redis connections.
func OpenSinks(ctx context.Context, cfg config.OutputConfig) ([]export.Sink, func() error, error) {
	var (
		sinks   []export.Sink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if cfg.CSVPath != "" {
		sinks = append(sinks, export.CSVSink{Path: cfg.CSVPath})
	}
	if cfg.SQLitePath != "" {
		db, err := persistence.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		closers = append(closers, db.Close)
		sinks = append(sinks, export.StoreSink{Repo: persistence.NewRunRepo(db)})
	}
	if cfg.Redis.Addr != "" {
		client := export.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Join(fmt.Errorf("redis ping: %w", err), closeAll())
		}
		closers = append(closers, client.Close)
		sinks = append(sinks, export.RedisSink{
			Client:    client,
			Channel:   cfg.Redis.Channel,
			ListLimit: cfg.Redis.ListLimit,
		})
	}

	return sinks, closeAll, nil
}
