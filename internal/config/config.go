// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface is the read-only view of the configuration handed to components.
type Interface interface {
	Logger() LoggerConfig
	Network() NetworkConfig
	Browser() BrowserConfig
	Archive() ArchiveConfig
}

// Config is the full application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	ArchiveCfg ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Archive() ArchiveConfig { return c.ArchiveCfg }

// LoggerConfig controls the process-wide zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NetworkConfig controls how resources are fetched.
type NetworkConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
	ImageAccept string        `mapstructure:"image_accept" yaml:"image_accept"`
	// MaxConcurrency caps in-flight fetches; 0 means unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	// RateLimit is requests per second; 0 disables pacing.
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	MaxRedirects    int     `mapstructure:"max_redirects" yaml:"max_redirects"`
	IgnoreTLSErrors bool    `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Proxy           string  `mapstructure:"proxy" yaml:"proxy"`
}

// BrowserConfig controls live page capture.
type BrowserConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Headless bool          `mapstructure:"headless" yaml:"headless"`
	Args     []string      `mapstructure:"args" yaml:"args"`
	Settle   time.Duration `mapstructure:"settle" yaml:"settle"`
}

// ArchiveConfig controls the archive run itself.
type ArchiveConfig struct {
	ForceHTTPS  bool   `mapstructure:"force_https" yaml:"force_https"`
	Private     bool   `mapstructure:"private" yaml:"private"`
	ScratchDir  string `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	KeepScratch bool   `mapstructure:"keep_scratch" yaml:"keep_scratch"`
	// ResponseTemplate is a keyed-archive response record to patch instead of
	// the built-in one.
	ResponseTemplate string `mapstructure:"response_template" yaml:"response_template"`
	MetricsFile      string `mapstructure:"metrics_file" yaml:"metrics_file"`
	ResolverCache    int    `mapstructure:"resolver_cache" yaml:"resolver_cache"`
}

// NewDefaultConfig returns the configuration produced by the defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webarchiver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.user_agent", "")
	v.SetDefault("network.image_accept", "")
	v.SetDefault("network.max_concurrency", 8)
	v.SetDefault("network.rate_limit", 0)
	v.SetDefault("network.rate_burst", 1)
	v.SetDefault("network.max_redirects", 10)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.proxy", "")

	// -- Browser --
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.settle", "1s")

	// -- Archive --
	v.SetDefault("archive.force_https", false)
	v.SetDefault("archive.private", false)
	v.SetDefault("archive.scratch_dir", "")
	v.SetDefault("archive.keep_scratch", false)
	v.SetDefault("archive.response_template", "")
	v.SetDefault("archive.metrics_file", "")
	v.SetDefault("archive.resolver_cache", 4096)
}

// NewConfigFromViper unmarshals, expands and validates the configuration in v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.ArchiveCfg.ScratchDir,
		&c.ArchiveCfg.ResponseTemplate,
		&c.ArchiveCfg.MetricsFile,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	var errs []error
	if c.NetworkCfg.Timeout <= 0 {
		errs = append(errs, errors.New("network.timeout must be positive"))
	}
	if c.NetworkCfg.MaxConcurrency < 0 {
		errs = append(errs, errors.New("network.max_concurrency must not be negative"))
	}
	if c.NetworkCfg.RateLimit < 0 {
		errs = append(errs, errors.New("network.rate_limit must not be negative"))
	}
	if c.NetworkCfg.RateLimit > 0 && c.NetworkCfg.RateBurst <= 0 {
		errs = append(errs, errors.New("network.rate_burst must be positive when rate_limit is set"))
	}
	if c.NetworkCfg.MaxRedirects < 0 {
		errs = append(errs, errors.New("network.max_redirects must not be negative"))
	}
	if c.BrowserCfg.Settle < 0 {
		errs = append(errs, errors.New("browser.settle must not be negative"))
	}
	if c.ArchiveCfg.ResolverCache < 0 {
		errs = append(errs, errors.New("archive.resolver_cache must not be negative"))
	}
	return errors.Join(errs...)
}
