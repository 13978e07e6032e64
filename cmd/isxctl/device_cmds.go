package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skobkin/isxgo/internal/app"
	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/device"
	"github.com/skobkin/isxgo/internal/export"
	"github.com/skobkin/isxgo/internal/metrics"
	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/notifications"
)

// frontendFlags override config.FrontendConfig for one invocation.
type frontendFlags struct {
	points       int
	channel      string
	currentRange string
	voltageRange string
}

func (f *frontendFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.points, "points", config.DefaultPoints, "electrode count: 2, 3 or 4")
	fs.StringVar(&f.channel, "channel", "", "channel name, e.g. \"Main Port\" or \"Port 2\"")
	fs.StringVar(&f.currentRange, "current-range", "", "current range, e.g. autoranging or 10mA")
	fs.StringVar(&f.voltageRange, "voltage-range", "", "voltage range, e.g. autoranging or 1V")
}

func (f *frontendFlags) apply(cmd *cobra.Command, cfg *config.FrontendConfig) {
	fs := cmd.Flags()
	if fs.Changed("points") {
		cfg.Points = f.points
	}
	if fs.Changed("channel") {
		cfg.Channel = f.channel
	}
	if fs.Changed("current-range") {
		cfg.CurrentRange = f.currentRange
	}
	if fs.Changed("voltage-range") {
		cfg.VoltageRange = f.voltageRange
	}
}

// setupFlags override config.SetupConfig and the spectra count for one invocation.
type setupFlags struct {
	start      string
	end        string
	count      int
	scale      string
	precision  float64
	amplitude  string
	excitation string
}

func (f *setupFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.start, "start", "", "start frequency, e.g. 1kHz")
	fs.StringVar(&f.end, "end", "", "end frequency, e.g. 1MHz")
	fs.IntVar(&f.count, "count", normalize.DefaultCount, "number of frequency points")
	fs.StringVar(&f.scale, "scale", "", "frequency scale: linear or log")
	fs.Float64Var(&f.precision, "precision", normalize.DefaultPrecision, "measurement precision")
	fs.StringVar(&f.amplitude, "amplitude", "", "excitation amplitude, e.g. 0.1V or 10mA")
	fs.StringVar(&f.excitation, "excitation", "", "excitation type: voltage or current")
}

func (f *setupFlags) apply(cmd *cobra.Command, cfg *config.SetupConfig) {
	fs := cmd.Flags()
	if fs.Changed("start") {
		cfg.StartFrequency = f.start
	}
	if fs.Changed("end") {
		cfg.EndFrequency = f.end
	}
	if fs.Changed("count") {
		cfg.Count = f.count
	}
	if fs.Changed("scale") {
		cfg.Scale = f.scale
	}
	if fs.Changed("precision") {
		cfg.Precision = f.precision
	}
	if fs.Changed("amplitude") {
		cfg.Amplitude = f.amplitude
	}
	if fs.Changed("excitation") {
		cfg.Excitation = f.excitation
	}
}

// measureFlags are shared by measure and run.
type measureFlags struct {
	spectra      int
	csvPath      string
	printResults bool
}

func (f *measureFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.spectra, "spectra", "n", config.DefaultSpectra, "number of sweeps")
	fs.StringVar(&f.csvPath, "csv", "", "write results to this CSV file")
	fs.BoolVar(&f.printResults, "print", false, "print results as CSV to stdout")
}

func (f *measureFlags) apply(cmd *cobra.Command, cfg *config.AppConfig) {
	fs := cmd.Flags()
	if fs.Changed("spectra") {
		cfg.Measurement.Spectra = f.spectra
	}
	if fs.Changed("csv") {
		cfg.Output.CSVPath = f.csvPath
	}
}

func newPortsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := c.deps.newOpener(c.cfg.Connection).Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
			for _, p := range ports {
				usb, ids := "no", "-"
				if p.IsUSB {
					usb, ids = "yes", p.VID+":"+p.PID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, usb, ids, dash(p.SerialNumber), dash(p.Product))
			}

			return tw.Flush()
		},
	}
}

func newFrontendCmd(c *cli) *cobra.Command {
	var ff frontendFlags
	cmd := &cobra.Command{
		Use:   "frontend",
		Short: "Apply the frontend settings (topology, channel, ranges)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ff.apply(cmd, &c.cfg.Frontend)
			plan := app.PlanFromConfig(c.cfg, c.logger)

			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				res, err := s.ApplyFrontendSettings(cmd.Context(), plan.Frontend)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "frame: % X\n", res.Frame)
				fmt.Fprintf(out, "ack:   %s\n", res.Ack)
				printWarnings(out, res.Warnings)

				return nil
			})
		},
	}
	ff.bind(cmd)

	return cmd
}

func newQueryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Read the frontend configuration back from the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				configs, err := s.QueryFrontendSettings(cmd.Context())
				out := cmd.OutOrStdout()
				if len(configs) == 0 && err == nil {
					fmt.Fprintln(out, "no channels configured")
				}
				for _, cfg := range configs {
					fmt.Fprintln(out, cfg)
				}

				return err
			})
		},
	}
}

func newSetupCmd(c *cli) *cobra.Command {
	var sf setupFlags
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Apply the frequency sweep setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf.apply(cmd, &c.cfg.Setup)
			plan := app.PlanFromConfig(c.cfg, c.logger)

			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				res, err := s.ApplySetup(cmd.Context(), plan.Setup)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "frame:  % X\n", res.Frame)
				fmt.Fprintf(out, "points: %d\n", res.FrequencyPoints)
				printWarnings(out, res.Warnings)

				return nil
			})
		},
	}
	sf.bind(cmd)

	return cmd
}

func newMeasureCmd(c *cli) *cobra.Command {
	var (
		sf setupFlags
		mf measureFlags
	)
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Apply the sweep setup, measure and export the results",
		Long: `measure applies the sweep setup and runs the requested number of spectra.
The frontend keeps the settings stored on the device; use run to apply them too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf.apply(cmd, &c.cfg.Setup)
			mf.apply(cmd, &c.cfg)
			plan := app.PlanFromConfig(c.cfg, c.logger)

			return c.measure(cmd, mf.printResults, func(r *app.Runner) (device.MeasurementReport, error) {
				return r.Measure(cmd.Context(), plan.Setup, plan.Spectra)
			})
		},
	}
	sf.bind(cmd)
	mf.bind(cmd)

	return cmd
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		ff frontendFlags
		sf setupFlags
		mf measureFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply frontend and setup, measure and export the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ff.apply(cmd, &c.cfg.Frontend)
			sf.apply(cmd, &c.cfg.Setup)
			mf.apply(cmd, &c.cfg)
			plan := app.PlanFromConfig(c.cfg, c.logger)

			return c.measure(cmd, mf.printResults, func(r *app.Runner) (device.MeasurementReport, error) {
				return r.Run(cmd.Context(), plan)
			})
		},
	}
	ff.bind(cmd)
	sf.bind(cmd)
	mf.bind(cmd)

	return cmd
}

// measure wires sinks, metrics and notifications around a runner call and
// prints the report summary.
func (c *cli) measure(cmd *cobra.Command, printResults bool, fn func(*app.Runner) (device.MeasurementReport, error)) error {
	ctx := cmd.Context()

	sinks, closeSinks, err := app.OpenSinks(ctx, c.cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeSinks(); closeErr != nil {
			c.logger.Warn("close sinks", "error", closeErr)
		}
	}()

	collector := metrics.New()
	var notifier notifications.Sender = notifications.NopSender{}
	if c.cfg.Output.Notify {
		notifier = c.deps.newNotifier(c.logMgr.Logger("notifications"))
	}

	return c.withSession(ctx, collector, func(s *device.Session) error {
		runner := app.NewRunner(c.logMgr.Logger("runner"), s, sinks, notifier, collector, c.cfg.Output.MetricsTextfile)
		report, runErr := fn(runner)
		if report.RunID == uuid.Nil {
			return runErr
		}

		out := cmd.OutOrStdout()
		printReport(out, report)
		if printResults {
			if err := export.WriteCSV(out, report.Results); err != nil {
				return err
			}
		}

		return runErr
	})
}

func newStopCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send the measurement stop frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				return s.StopMeasurement(cmd.Context())
			})
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart the device firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				msg, err := s.SoftwareReset(cmd.Context())
				if err != nil {
					return err
				}
				printMessage(cmd.OutOrStdout(), msg)

				return nil
			})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read and decode pending system messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), nil, func(s *device.Session) error {
				msg, err := s.SystemMessage(cmd.Context())
				if err != nil {
					return err
				}
				printMessage(cmd.OutOrStdout(), msg)

				return nil
			})
		},
	}
}

func printReport(w io.Writer, r device.MeasurementReport) {
	fmt.Fprintf(w, "run:      %s\n", r.RunID)
	fmt.Fprintf(w, "spectra:  %d x %d points\n", r.Spectra, r.FrequencyPoints)
	fmt.Fprintf(w, "results:  %d of %d\n", r.Received(), r.Expected)
	fmt.Fprintf(w, "duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.TimedOut {
		fmt.Fprintln(w, "capture timed out")
	}
	if r.SkippedBytes > 0 {
		fmt.Fprintf(w, "skipped:  %d bytes\n", r.SkippedBytes)
	}
}

func printMessage(w io.Writer, msg device.SystemMessage) {
	if !msg.Found {
		fmt.Fprintln(w, "no system message")
		return
	}
	fmt.Fprintln(w, msg)
}

func printWarnings(w io.Writer, warnings []normalize.Warning) {
	for _, warn := range warnings {
		fmt.Fprintln(w, "warning:", warn)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
