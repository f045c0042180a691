// Package config loads and validates reading progress configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides, e.g. READINGPROGRESS_PAGE_URL.
const EnvPrefix = "READINGPROGRESS"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Page       PageConfig       `mapstructure:"page"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	AutoScroll AutoScrollConfig `mapstructure:"autoscroll"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// PageConfig selects the document and its content containers.
type PageConfig struct {
	URL            string `mapstructure:"url"`
	ContainerClass string `mapstructure:"container_class"`
	CSSClass       string `mapstructure:"css_class"`
	BarSelector    string `mapstructure:"bar_selector"`
}

// TrackerConfig tunes the viewport tracker.
type TrackerConfig struct {
	ThrottleTime time.Duration `mapstructure:"throttle_time"`
}

// BrowserConfig controls the Chrome tab.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	EvalTimeout       time.Duration `mapstructure:"eval_timeout"`
}

// AutoScrollConfig simulates a reader.
type AutoScrollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Step     float64       `mapstructure:"step"`
	Interval time.Duration `mapstructure:"interval"`
}

// RendererConfig picks where the bar is drawn.
type RendererConfig struct {
	DOM       bool `mapstructure:"dom"`
	Text      bool `mapstructure:"text"`
	TextWidth int  `mapstructure:"text_width"`
}

// ProgressConfig tunes the update hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogUpdates     bool          `mapstructure:"log_updates"`
	Metrics        bool          `mapstructure:"metrics"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RescanRPS      float64  `mapstructure:"rescan_rps"`
	RescanBurst    int      `mapstructure:"rescan_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScanConfig controls the static HTML scan.
type ScanConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	WordsPerMinute int           `mapstructure:"words_per_minute"`
}

// TelemetryConfig toggles OpenTelemetry tracing of the update pipeline.
type TelemetryConfig struct {
	Tracing     bool   `mapstructure:"tracing"`
	ServiceName string `mapstructure:"service_name"`
}

// NewViper returns a Viper instance with defaults and environment overrides
// registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from defaults, the file at path (if any) and the
// environment.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return LoadFrom(v)
}

// LoadFrom decodes and validates whatever v already holds, including bound
// command-line flags.
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("page.url", "")
	v.SetDefault("page.container_class", "blogPost")
	v.SetDefault("page.css_class", "readingProgressBar")
	v.SetDefault("page.bar_selector", ".readingProgressBar")
	v.SetDefault("tracker.throttle_time", "0s")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.eval_timeout", "5s")
	v.SetDefault("autoscroll.enabled", false)
	v.SetDefault("autoscroll.step", 120)
	v.SetDefault("autoscroll.interval", "250ms")
	v.SetDefault("renderer.dom", true)
	v.SetDefault("renderer.text", false)
	v.SetDefault("renderer.text_width", 40)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", "16ms")
	v.SetDefault("progress.sink_timeout", "2s")
	v.SetDefault("progress.log_updates", true)
	v.SetDefault("progress.metrics", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rescan_rps", 1.0)
	v.SetDefault("server.rescan_burst", 3)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scan.timeout", "15s")
	v.SetDefault("scan.respect_robots", false)
	v.SetDefault("scan.words_per_minute", 230)
	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.service_name", "readingprogress")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if err := validateURL(c.Page.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Page.ContainerClass == "" {
		errs = append(errs, errors.New("page.container_class must be set"))
	}
	if c.Tracker.ThrottleTime < 0 {
		errs = append(errs, errors.New("tracker.throttle_time must be >= 0"))
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser.window_width and browser.window_height must be > 0"))
	}
	if c.AutoScroll.Enabled && (c.AutoScroll.Step <= 0 || c.AutoScroll.Interval <= 0) {
		errs = append(errs, errors.New("autoscroll.step and autoscroll.interval must be > 0 when autoscroll is enabled"))
	}
	if c.Progress.BufferSize <= 0 || c.Progress.MaxBatchEvents <= 0 {
		errs = append(errs, errors.New("progress.buffer_size and progress.max_batch_events must be > 0"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RescanRPS < 0 || c.Server.RescanBurst < 0 {
		errs = append(errs, errors.New("server.rescan_rps and server.rescan_burst must be >= 0"))
	}
	if c.Telemetry.Tracing && c.Telemetry.ServiceName == "" {
		errs = append(errs, errors.New("telemetry.service_name must be set when tracing is enabled"))
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("page.url must be set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("page.url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "file":
		return nil
	default:
		return fmt.Errorf("page.url must be http, https or file, got %q", raw)
	}
}
