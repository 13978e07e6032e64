package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skobkin/isxgo/internal/app"
	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/device"
	"github.com/skobkin/isxgo/internal/logging"
	"github.com/skobkin/isxgo/internal/metrics"
	"github.com/skobkin/isxgo/internal/notifications"
	"github.com/skobkin/isxgo/internal/platform"
	"github.com/skobkin/isxgo/internal/transport"
)

// deps are the parts of the CLI that touch hardware or the desktop.
type deps struct {
	newOpener   func(cfg config.ConnectionConfig) transport.Opener
	newNotifier func(logger *slog.Logger) notifications.Sender
}

func defaultDeps() deps {
	return deps{
		newOpener: func(cfg config.ConnectionConfig) transport.Opener {
			return transport.NewSerialOpener(cfg.SerialBaud, cfg.ReadTimeout, cfg.Trace)
		},
		newNotifier: func(logger *slog.Logger) notifications.Sender {
			return notifications.NewDesktopSender(logger)
		},
	}
}

// cli is the state shared by every subcommand after the root pre-run hook.
type cli struct {
	deps deps

	configPath string
	port       string
	logLevel   string
	verbose    bool
	trace      bool

	paths  app.Paths
	cfg    config.AppConfig
	logMgr *logging.Manager
	logger *slog.Logger
}

func newRootCmd(d deps) *cobra.Command {
	c := &cli{deps: d, logMgr: logging.NewManager()}

	root := &cobra.Command{
		Use:   "isxctl",
		Short: "Drive an ISX-3 impedance analyzer over USB serial",
		Long: `isxctl configures the ISX-3 frontend and frequency sweep, runs
measurements and exports the results to CSV, SQLite, Redis and a
Prometheus textfile.

Settings come from the config file, ISX3_* environment variables and flags,
in increasing priority.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return c.init() },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.logMgr.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default is the user config dir)")
	flags.StringVarP(&c.port, "port", "p", "", "serial port, e.g. /dev/ttyACM0 or COM3")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "report every device status message")
	flags.BoolVar(&c.trace, "trace", false, "log every byte on the serial link")

	root.AddCommand(
		newPortsCmd(c),
		newFrontendCmd(c),
		newQueryCmd(c),
		newSetupCmd(c),
		newMeasureCmd(c),
		newRunCmd(c),
		newStopCmd(c),
		newResetCmd(c),
		newStatusCmd(c),
		newRunsCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)

	return root
}

func (c *cli) init() error {
	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	c.paths = paths
	if c.configPath == "" {
		c.configPath = paths.ConfigFile
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port := strings.TrimSpace(c.port); port != "" {
		cfg.Connection.SerialPort = port
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.verbose {
		cfg.Measurement.Verbose = true
	}
	if c.trace {
		cfg.Connection.Trace = true
		cfg.Logging.Level = "debug"
	}
	c.cfg = cfg

	if err := c.logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	c.logger = c.logMgr.Logger("cli")
	c.logger.Debug("config loaded", "path", c.configPath, "port", cfg.Connection.SerialPort)

	return nil
}

// connect opens a session on the configured port. The caller closes it.
func (c *cli) connect(ctx context.Context, collector *metrics.Collector) (*device.Session, error) {
	opts := device.DefaultOptions()
	opts.CaptureTimeout = c.cfg.Measurement.CaptureTimeout
	opts.SettleDelay = c.cfg.Measurement.SettleDelay
	opts.Verbose = c.cfg.Measurement.Verbose
	if collector != nil {
		opts.Metrics = collector
	}

	session := device.NewSession(c.logMgr.Logger("device"), c.deps.newOpener(c.cfg.Connection), opts)
	if err := session.Connect(ctx, c.cfg.Connection.SerialPort); err != nil {
		return nil, err
	}

	return session, nil
}

// withSession runs fn on a connected session while holding the port lock and
// always closes both.
func (c *cli) withSession(ctx context.Context, collector *metrics.Collector, fn func(*device.Session) error) error {
	if err := c.cfg.RequirePort(); err != nil {
		return fmt.Errorf("%w: set --port or connection.serial_port", err)
	}

	lock, err := platform.AcquirePortLock(app.Name, c.cfg.Connection.SerialPort)
	if err != nil && !errors.Is(err, platform.ErrPortLockUnsupported) {
		return fmt.Errorf("lock %s: %w", c.cfg.Connection.SerialPort, err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				c.logger.Warn("release port lock", "error", releaseErr)
			}
		}()
	}

	session, err := c.connect(ctx, collector)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.Warn("close session", "error", closeErr)
		}
	}()

	return fn(session)
}
