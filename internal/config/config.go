package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSerialBaud     = 9600
	DefaultReadTimeout    = time.Second
	DefaultPoints         = 4
	DefaultSpectra        = 20
	DefaultCaptureTimeout = 10 * time.Second
	DefaultSettleDelay    = 6 * time.Second
	DefaultRedisChannel   = "isx3:results"

	envPrefix = "ISX3"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string        `mapstructure:"level" yaml:"level"`
	LogToFile bool          `mapstructure:"log_to_file" yaml:"log_to_file"`
	File      LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig controls rotation of the log file.
type LogFileConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ConnectionConfig describes the serial link to the analyzer.
type ConnectionConfig struct {
	SerialPort  string        `mapstructure:"serial_port" yaml:"serial_port"`
	SerialBaud  int           `mapstructure:"serial_baud" yaml:"serial_baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	Trace       bool          `mapstructure:"trace" yaml:"trace"`
}

// FrontendConfig names the electrode setup. Points is the electrode count (2, 3 or 4).
type FrontendConfig struct {
	Points       int    `mapstructure:"points" yaml:"points"`
	Channel      string `mapstructure:"channel" yaml:"channel"`
	CurrentRange string `mapstructure:"current_range" yaml:"current_range"`
	VoltageRange string `mapstructure:"voltage_range" yaml:"voltage_range"`
}

// SetupConfig holds the sweep parameters as the user writes them.
type SetupConfig struct {
	StartFrequency string  `mapstructure:"start_frequency" yaml:"start_frequency"`
	EndFrequency   string  `mapstructure:"end_frequency" yaml:"end_frequency"`
	Count          int     `mapstructure:"count" yaml:"count"`
	Scale          string  `mapstructure:"scale" yaml:"scale"`
	Precision      float64 `mapstructure:"precision" yaml:"precision"`
	Amplitude      string  `mapstructure:"amplitude" yaml:"amplitude"`
	Excitation     string  `mapstructure:"excitation" yaml:"excitation"`
}

type MeasurementConfig struct {
	Spectra        int           `mapstructure:"spectra" yaml:"spectra"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`
}

// RedisConfig enables result publishing when Addr is set.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	Channel   string `mapstructure:"channel" yaml:"channel"`
	ListLimit int64  `mapstructure:"list_limit" yaml:"list_limit"`
}

// OutputConfig selects where measurement runs go. Empty paths disable a sink.
type OutputConfig struct {
	CSVPath         string      `mapstructure:"csv_path" yaml:"csv_path"`
	SQLitePath      string      `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MetricsTextfile string      `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
	Notify          bool        `mapstructure:"notify" yaml:"notify"`
	Redis           RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection  ConnectionConfig  `mapstructure:"connection" yaml:"connection"`
	Frontend    FrontendConfig    `mapstructure:"frontend" yaml:"frontend"`
	Setup       SetupConfig       `mapstructure:"setup" yaml:"setup"`
	Measurement MeasurementConfig `mapstructure:"measurement" yaml:"measurement"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			SerialBaud:  DefaultSerialBaud,
			ReadTimeout: DefaultReadTimeout,
		},
		Frontend: FrontendConfig{
			Points:       DefaultPoints,
			Channel:      "Main Port",
			CurrentRange: "autoranging",
			VoltageRange: "autoranging",
		},
		Setup: SetupConfig{
			StartFrequency: "1kHz",
			EndFrequency:   "1MHz",
			Count:          60,
			Scale:          "log",
			Precision:      1,
			Amplitude:      "0.1V",
			Excitation:     "voltage",
		},
		Measurement: MeasurementConfig{
			Spectra:        DefaultSpectra,
			CaptureTimeout: DefaultCaptureTimeout,
			SettleDelay:    DefaultSettleDelay,
		},
		Output: OutputConfig{
			Redis: RedisConfig{
				Channel:   DefaultRedisChannel,
				ListLimit: 10000,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 30,
			},
		},
	}
}

// Load reads a YAML config file. A missing file yields the defaults.
// Every key can be overridden with an ISX3_ environment variable, e.g.
// ISX3_CONNECTION_SERIAL_PORT.
func Load(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		cleanPath := filepath.Clean(path)
		if _, err := os.Stat(cleanPath); err == nil {
			v.SetConfigFile(cleanPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.FillMissingDefaults()

	return cfg, nil
}

func setDefaults(v *viper.Viper, d AppConfig) {
	v.SetDefault("connection.serial_port", d.Connection.SerialPort)
	v.SetDefault("connection.serial_baud", d.Connection.SerialBaud)
	v.SetDefault("connection.read_timeout", d.Connection.ReadTimeout)
	v.SetDefault("connection.trace", d.Connection.Trace)

	v.SetDefault("frontend.points", d.Frontend.Points)
	v.SetDefault("frontend.channel", d.Frontend.Channel)
	v.SetDefault("frontend.current_range", d.Frontend.CurrentRange)
	v.SetDefault("frontend.voltage_range", d.Frontend.VoltageRange)

	v.SetDefault("setup.start_frequency", d.Setup.StartFrequency)
	v.SetDefault("setup.end_frequency", d.Setup.EndFrequency)
	v.SetDefault("setup.count", d.Setup.Count)
	v.SetDefault("setup.scale", d.Setup.Scale)
	v.SetDefault("setup.precision", d.Setup.Precision)
	v.SetDefault("setup.amplitude", d.Setup.Amplitude)
	v.SetDefault("setup.excitation", d.Setup.Excitation)

	v.SetDefault("measurement.spectra", d.Measurement.Spectra)
	v.SetDefault("measurement.capture_timeout", d.Measurement.CaptureTimeout)
	v.SetDefault("measurement.settle_delay", d.Measurement.SettleDelay)
	v.SetDefault("measurement.verbose", d.Measurement.Verbose)

	v.SetDefault("output.csv_path", d.Output.CSVPath)
	v.SetDefault("output.sqlite_path", d.Output.SQLitePath)
	v.SetDefault("output.metrics_textfile", d.Output.MetricsTextfile)
	v.SetDefault("output.notify", d.Output.Notify)
	v.SetDefault("output.redis.addr", d.Output.Redis.Addr)
	v.SetDefault("output.redis.password", d.Output.Redis.Password)
	v.SetDefault("output.redis.db", d.Output.Redis.DB)
	v.SetDefault("output.redis.channel", d.Output.Redis.Channel)
	v.SetDefault("output.redis.list_limit", d.Output.Redis.ListLimit)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.log_to_file", d.Logging.LogToFile)
	v.SetDefault("logging.file.max_size_mb", d.Logging.File.MaxSizeMB)
	v.SetDefault("logging.file.max_backups", d.Logging.File.MaxBackups)
	v.SetDefault("logging.file.max_age_days", d.Logging.File.MaxAgeDays)
	v.SetDefault("logging.file.compress", d.Logging.File.Compress)
}

// FillMissingDefaults replaces zero values that cannot be meant literally.
// Sweep parameters are left alone: the device session normalizes those.
func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.ReadTimeout <= 0 {
		c.Connection.ReadTimeout = DefaultReadTimeout
	}
	if c.Frontend.Points == 0 {
		c.Frontend.Points = DefaultPoints
	}
	if c.Measurement.CaptureTimeout <= 0 {
		c.Measurement.CaptureTimeout = DefaultCaptureTimeout
	}
	if c.Measurement.SettleDelay < 0 {
		c.Measurement.SettleDelay = 0
	}
	if c.Output.Redis.Channel == "" {
		c.Output.Redis.Channel = DefaultRedisChannel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	var errs []error

	if c.Connection.SerialBaud <= 0 {
		errs = append(errs, errors.New("serial baud must be positive"))
	}
	if c.Connection.ReadTimeout <= 0 {
		errs = append(errs, errors.New("read timeout must be positive"))
	}
	switch c.Frontend.Points {
	case 2, 3, 4:
	default:
		errs = append(errs, fmt.Errorf("frontend points must be 2, 3 or 4, got %d", c.Frontend.Points))
	}
	if c.Measurement.CaptureTimeout <= 0 {
		errs = append(errs, errors.New("capture timeout must be positive"))
	}
	if c.Measurement.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay must not be negative"))
	}
	if c.Output.Redis.ListLimit < 0 {
		errs = append(errs, errors.New("redis list limit must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level: %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// RequirePort reports a missing serial port for commands that talk to the device.
func (c AppConfig) RequirePort() error {
	if strings.TrimSpace(c.Connection.SerialPort) == "" {
		return errors.New("serial port is required")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
