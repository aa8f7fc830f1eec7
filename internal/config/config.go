// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package config

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultAuthHeader carries the admin token on admin and proxy requests.
const DefaultAuthHeader = "X-CCG-Token"

// Config is the top-level ccgate configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	DataDir    string           `mapstructure:"data_dir"`
	Verbose    bool             `mapstructure:"verbose"`
}

// NetworkingConfig controls where the gateway listens.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig guards the admin API and the proxy with a shared token.
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Token      string `mapstructure:"token"`
	HeaderName string `mapstructure:"header_name"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TimeoutsConfig seeds the upstream timeout tiers, in seconds.
type TimeoutsConfig struct {
	StreamFirstByte int `mapstructure:"stream_first_byte_timeout"`
	StreamIdle      int `mapstructure:"stream_idle_timeout"`
	NonStream       int `mapstructure:"non_stream_timeout"`
}

// Settings converts the seed into timeout settings.
func (t TimeoutsConfig) Settings() types.TimeoutSettings {
	return types.TimeoutSettings{
		StreamFirstByteTimeout: t.StreamFirstByte,
		StreamIdleTimeout:      t.StreamIdle,
		NonStreamTimeout:       t.NonStream,
	}
}

// DefaultsConfig applies to providers created without health parameters.
type DefaultsConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	BlacklistMinutes int `mapstructure:"blacklist_minutes"`
}

func (d DefaultsConfig) Registry() provider.Defaults {
	return provider.Defaults{FailureThreshold: d.FailureThreshold, BlacklistMinutes: d.BlacklistMinutes}
}

// TransportConfig tunes the shared upstream HTTP client.
type TransportConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// StatsConfig controls usage retention. RetentionDays 0 keeps rows forever.
type StatsConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:7788")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.header_name", DefaultAuthHeader)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	seed := types.DefaultTimeoutSettings()
	v.SetDefault("timeouts.stream_first_byte_timeout", seed.StreamFirstByteTimeout)
	v.SetDefault("timeouts.stream_idle_timeout", seed.StreamIdleTimeout)
	v.SetDefault("timeouts.non_stream_timeout", seed.NonStreamTimeout)

	d := provider.DefaultDefaults()
	v.SetDefault("defaults.failure_threshold", d.FailureThreshold)
	v.SetDefault("defaults.blacklist_minutes", d.BlacklistMinutes)

	v.SetDefault("transport.connect_timeout", "10s")
	v.SetDefault("transport.max_idle_conns", 20)
	v.SetDefault("transport.max_body_bytes", 32<<20)
	v.SetDefault("stats.retention_days", 90)
	v.SetDefault("stats.prune_schedule", "0 3 * * *")
}

// SetupEnv maps CCGATE_SECTION_KEY environment variables onto section.key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("CCGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix CCGATE_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateTimeouts()...)
	errs = append(errs, c.validateDefaults()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateStats()...)
	errs = append(errs, c.validateProviders()...)

	return errs
}

func invalid(format string, args ...any) error {
	return ccgerr.Errorf(ccgerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w", c.Networking.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	for i, origin := range c.Networking.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, invalid("networking.cors_origins[%d] must not be empty", i))
		}
	}

	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	if c.Auth.Enabled && strings.TrimSpace(c.Auth.Token) == "" {
		errs = append(errs, invalid("auth.token must be set when auth.enabled is true"))
	}
	if strings.TrimSpace(c.Auth.HeaderName) == "" {
		errs = append(errs, invalid("auth.header_name must not be empty"))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

func (c *Config) validateTimeouts() []error {
	var errs []error

	if err := c.Timeouts.Settings().Validate(); err != nil {
		errs = append(errs, invalid("timeouts: %w", err))
	}

	return errs
}

func (c *Config) validateDefaults() []error {
	var errs []error

	if c.Defaults.FailureThreshold <= 0 {
		errs = append(errs, invalid("defaults.failure_threshold must be greater than 0, got %d", c.Defaults.FailureThreshold))
	}
	if c.Defaults.BlacklistMinutes <= 0 {
		errs = append(errs, invalid("defaults.blacklist_minutes must be greater than 0, got %d", c.Defaults.BlacklistMinutes))
	}

	return errs
}

func (c *Config) validateTransport() []error {
	var errs []error

	if c.Transport.ConnectTimeout <= 0 {
		errs = append(errs, invalid("transport.connect_timeout must be greater than 0, got %s", c.Transport.ConnectTimeout))
	}
	if c.Transport.MaxIdleConns <= 0 {
		errs = append(errs, invalid("transport.max_idle_conns must be greater than 0, got %d", c.Transport.MaxIdleConns))
	}
	if c.Transport.MaxBodyBytes <= 0 {
		errs = append(errs, invalid("transport.max_body_bytes must be greater than 0, got %d", c.Transport.MaxBodyBytes))
	}

	return errs
}

func (c *Config) validateStats() []error {
	var errs []error

	if c.Stats.RetentionDays < 0 {
		errs = append(errs, invalid("stats.retention_days must not be negative, got %d", c.Stats.RetentionDays))
	}
	if _, err := cron.ParseStandard(c.Stats.PruneSchedule); err != nil {
		errs = append(errs, invalid("stats.prune_schedule %q is not a valid cron expression: %w", c.Stats.PruneSchedule, err))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Providers))
	for i, pc := range c.Providers {
		p, err := pc.Provider(c.Defaults.Registry())
		if err != nil {
			errs = append(errs, invalid("providers[%d]: %w", i, err))
			continue
		}
		key := string(p.CLIType) + "/" + p.Name
		if seen[key] {
			errs = append(errs, invalid("providers[%d]: duplicate provider %q for %s", i, p.Name, p.CLIType))
		}
		seen[key] = true
	}

	return errs
}

// ParseLevel maps a logging.level value onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalid("logging.level must be one of [debug, info, warn, error], got %q", level)
	}
}
