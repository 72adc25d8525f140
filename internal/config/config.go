package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/Chichichkin/LogShipper/internal/daemon"
	"github.com/Chichichkin/LogShipper/internal/logging"
	"github.com/Chichichkin/LogShipper/internal/logging/exporter"
	"github.com/Chichichkin/LogShipper/internal/logging/gelf"
	"github.com/Chichichkin/LogShipper/internal/logging/queue"
)

const (
	DefaultPort           = 12201
	DefaultProtocol       = "http"
	DefaultDelaySeconds   = 10
	MinDelaySeconds       = 10
	DefaultScanInterval   = 5 * time.Second
	DefaultMetricsAddr    = ":9102"
	DefaultExporterName   = "Graylog Exporter"
	DefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	Graylog GraylogConfig `yaml:"graylog"`
	Capture CaptureConfig `yaml:"capture"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type GraylogConfig struct {
	Name        string `yaml:"name"`
	Autostart   bool   `yaml:"autostart"`
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	Protocol    string `yaml:"protocol"`
	APIToken    string `yaml:"api_token"`
	Compression bool   `yaml:"compression"`
	// Delay between flushes in seconds, never below MinDelaySeconds
	Delay                  int           `yaml:"delay"`
	Filter                 string        `yaml:"filter"`
	Fields                 []string      `yaml:"fields"`
	QueueSize              int           `yaml:"queue_size"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`
	Timeout                time.Duration `yaml:"timeout"`
}

type CaptureConfig struct {
	Path          string        `yaml:"path"`
	Pattern       string        `yaml:"pattern"`
	ScanInterval  time.Duration `yaml:"scan_interval"`
	MinWorkers    int           `yaml:"min_workers"`
	MaxWorkers    int           `yaml:"max_workers"`
	FileQueueSize int           `yaml:"file_queue_size"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	FromBeginning bool          `yaml:"from_beginning"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Interval is the flush interval with the minimum applied.
func (g GraylogConfig) Interval() time.Duration {
	delay := g.Delay
	if delay < MinDelaySeconds {
		delay = MinDelaySeconds
	}
	return time.Duration(delay) * time.Second
}

func (g GraylogConfig) ExportFields() ([]logging.Field, error) {
	return logging.ParseFields(g.Fields)
}

func (g GraylogConfig) ExporterConfig() (logging.Config, error) {
	fields, err := g.ExportFields()
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Name:                   g.Name,
		Interval:               g.Interval(),
		Fields:                 fields,
		Filter:                 g.Filter,
		QueueSize:              g.QueueSize,
		MaxConsecutiveFailures: g.MaxConsecutiveFailures,
		ShutdownTimeout:        g.ShutdownTimeout,
	}, nil
}

func (g GraylogConfig) SenderConfig() gelf.Config {
	return gelf.Config{
		Address:     g.Address,
		Port:        g.Port,
		Protocol:    g.Protocol,
		APIToken:    g.APIToken,
		Compression: g.Compression,
		Timeout:     g.Timeout,
	}
}

func (c CaptureConfig) DaemonConfig() daemon.Config {
	return daemon.Config{
		CaptureRootPath: c.Path,
		Pattern:         c.Pattern,
		ScanInterval:    c.ScanInterval,
		MinWorkers:      c.MinWorkers,
		MaxWorkers:      c.MaxWorkers,
		FileQueueSize:   c.FileQueueSize,
		FileIdleTimeout: c.IdleTimeout,
		FromBeginning:   c.FromBeginning,
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debugf("No env file at %s", path)
			return nil
		}
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// Load reads the YAML file at path (optional), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Graylog: GraylogConfig{
			Name:                   DefaultExporterName,
			Autostart:              true,
			Port:                   DefaultPort,
			Protocol:               DefaultProtocol,
			Compression:            true,
			Delay:                  DefaultDelaySeconds,
			QueueSize:              queue.MaxQueueSize,
			MaxConsecutiveFailures: exporter.MaxConsecutiveFailures,
			ShutdownTimeout:        exporter.DefaultShutdownTimeout,
			Timeout:                DefaultRequestTimeout,
			Fields: []string{
				logging.FieldMethod.FullLabel(),
				logging.FieldURL.FullLabel(),
				logging.FieldStatus.FullLabel(),
			},
		},
		Capture: CaptureConfig{
			Pattern:       daemon.DefaultPattern,
			ScanInterval:  DefaultScanInterval,
			MinWorkers:    1,
			MaxWorkers:    4,
			FileQueueSize: 100,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envString("GRAYLOG_NAME", &cfg.Graylog.Name)
	envString("GRAYLOG_ADDRESS", &cfg.Graylog.Address)
	envString("GRAYLOG_PROTOCOL", &cfg.Graylog.Protocol)
	envString("GRAYLOG_API_TOKEN", &cfg.Graylog.APIToken)
	envString("GRAYLOG_FILTER", &cfg.Graylog.Filter)
	collect(envInt("GRAYLOG_PORT", &cfg.Graylog.Port))
	collect(envInt("GRAYLOG_DELAY", &cfg.Graylog.Delay))
	collect(envInt("GRAYLOG_QUEUE_SIZE", &cfg.Graylog.QueueSize))
	collect(envBool("GRAYLOG_COMPRESSION", &cfg.Graylog.Compression))
	collect(envBool("GRAYLOG_AUTOSTART", &cfg.Graylog.Autostart))
	collect(envDuration("GRAYLOG_TIMEOUT", &cfg.Graylog.Timeout))
	if v, ok := os.LookupEnv("GRAYLOG_FIELDS"); ok {
		cfg.Graylog.Fields = splitList(v)
	}

	envString("CAPTURE_PATH", &cfg.Capture.Path)
	envString("CAPTURE_PATTERN", &cfg.Capture.Pattern)
	collect(envDuration("CAPTURE_SCAN_INTERVAL", &cfg.Capture.ScanInterval))
	collect(envBool("CAPTURE_FROM_BEGINNING", &cfg.Capture.FromBeginning))

	envString("NOTIFY_WEBHOOK_URL", &cfg.Notify.WebhookURL)

	collect(envBool("METRICS_ENABLED", &cfg.Metrics.Enabled))
	envString("METRICS_ADDR", &cfg.Metrics.Addr)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = cast.ToString(v)
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := cast.ToDurationE(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalize(cfg *Config) {
	if cfg.Graylog.Delay < MinDelaySeconds {
		log.Warnf("graylog.delay %ds is below the minimum, using %ds", cfg.Graylog.Delay, MinDelaySeconds)
		cfg.Graylog.Delay = MinDelaySeconds
	}
	cfg.Graylog.Protocol = strings.ToLower(strings.TrimSpace(cfg.Graylog.Protocol))
	if cfg.Graylog.Protocol == "" {
		cfg.Graylog.Protocol = DefaultProtocol
	}
	if cfg.Graylog.Name == "" {
		cfg.Graylog.Name = DefaultExporterName
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Graylog.Address) == "" {
		return fmt.Errorf("graylog.address is required")
	}
	if cfg.Graylog.Port <= 0 || cfg.Graylog.Port > 65535 {
		return fmt.Errorf("graylog.port %d is out of range", cfg.Graylog.Port)
	}
	if cfg.Graylog.Protocol != "http" && cfg.Graylog.Protocol != "https" {
		return fmt.Errorf("graylog.protocol must be http or https, got %q", cfg.Graylog.Protocol)
	}
	if _, err := cfg.Graylog.ExportFields(); err != nil {
		return fmt.Errorf("graylog.fields: %w", err)
	}
	if cfg.Capture.Path == "" {
		return fmt.Errorf("capture.path is required")
	}
	if _, err := os.Stat(cfg.Capture.Path); err != nil {
		return fmt.Errorf("capture.path: %w", err)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Apply configures the global logrus logger.
func (l LoggingConfig) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if strings.EqualFold(l.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
