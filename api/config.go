package api

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/glotfile/dbopen"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/observability"
	"github.com/hazyhaar/glotfile/shield"
)

// Config holds the HTTP service configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	QueueTimeout  time.Duration `yaml:"queue_timeout"`
	DeepPDF       bool          `yaml:"deep_pdf"`
	Limits        LimitsConfig  `yaml:"limits"`

	RateLimit shield.RateLimitConfig `yaml:"rate_limit"`
	CORS      shield.CORSConfig      `yaml:"cors"`

	// Maintenance starts the service drained; /healthz still answers.
	Maintenance        bool   `yaml:"maintenance"`
	MaintenanceMessage string `yaml:"maintenance_message"`

	MetricsDB            string        `yaml:"metrics_db"`
	MetricsRetentionDays int           `yaml:"metrics_retention_days"`
	MetricsBusyTimeout   time.Duration `yaml:"metrics_busy_timeout"`
	MetricsSynchronous   string        `yaml:"metrics_synchronous"`
}

// LimitsConfig holds the per-type upload ceilings in MiB.
type LimitsConfig struct {
	PDFMB   int `yaml:"pdf_mb"`
	ImageMB int `yaml:"image_mb"`
	MP4MB   int `yaml:"mp4_mb"`
	ZIPMB   int `yaml:"zip_mb"`
	HTMLMB  int `yaml:"html_mb"`
}

// DefaultConfig returns the values the web client was built against.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		MaxConcurrent: 4,
		QueueTimeout:  30 * time.Second,
		DeepPDF:       true,
		Limits: LimitsConfig{
			PDFMB:   50,
			ImageMB: 25,
			MP4MB:   100,
			ZIPMB:   100,
			HTMLMB:  1,
		},
		RateLimit: shield.RateLimitConfig{PerMinute: 30, Burst: 10, Enabled: true},
		CORS: shield.CORSConfig{
			ExposeHeaders: []string{"Content-Disposition", "X-Polyglot-Anchor", "X-Polyglot-Digest", "X-Polyglot-Relaxed"},
			MaxAge:        600,
		},
		MetricsRetentionDays: 30,
		MetricsBusyTimeout:   10 * time.Second,
		MetricsSynchronous:   "NORMAL",
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be > 0")
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("queue_timeout must be > 0")
	}
	for _, t := range format.Types {
		if c.Limits.MB(t) <= 0 {
			return fmt.Errorf("limits: %s limit must be > 0", t)
		}
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be > 0 when enabled")
	}
	if c.MetricsRetentionDays < 0 {
		return fmt.Errorf("metrics_retention_days must be >= 0")
	}
	if c.MetricsBusyTimeout < 0 {
		return fmt.Errorf("metrics_busy_timeout must be >= 0")
	}
	if !dbopen.ValidSynchronous(c.MetricsSynchronous) {
		return fmt.Errorf("metrics_synchronous must be OFF, NORMAL, FULL or EXTRA, got %q", c.MetricsSynchronous)
	}
	return nil
}

// MetricsOptions returns the dbopen options for the metrics database.
func (c *Config) MetricsOptions() []dbopen.Option {
	return []dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithBusyTimeout(c.MetricsBusyTimeout),
		dbopen.WithSynchronous(c.MetricsSynchronous),
		dbopen.WithSchema(observability.Schema),
	}
}

// MB returns the ceiling for t in MiB, 0 for an unknown type.
func (l LimitsConfig) MB(t format.Type) int {
	switch t {
	case format.PDF:
		return l.PDFMB
	case format.Image:
		return l.ImageMB
	case format.MP4:
		return l.MP4MB
	case format.ZIP:
		return l.ZIPMB
	case format.HTML:
		return l.HTMLMB
	}
	return 0
}

// Bytes returns the ceiling for t in bytes.
func (l LimitsConfig) Bytes(t format.Type) int64 { return int64(l.MB(t)) << 20 }

// Largest returns the highest per-type ceiling in bytes.
func (l LimitsConfig) Largest() int64 {
	var m int64
	for _, t := range format.Types {
		m = max(m, l.Bytes(t))
	}
	return m
}

// MaxBodyBytes bounds a whole request: one file of each type plus form
// overhead. Combinations never repeat a type.
func (c *Config) MaxBodyBytes() int64 {
	var n int64 = 1 << 20
	for _, t := range format.Types {
		n += c.Limits.Bytes(t)
	}
	return n
}
