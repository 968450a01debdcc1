/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"io"
	"time"

	"github.com/billhaggle/reqguard/config"
	"github.com/billhaggle/reqguard/httpclient"
	"github.com/billhaggle/reqguard/httpserver"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/profserver"
	"github.com/billhaggle/reqguard/ratelimit"
	"github.com/billhaggle/reqguard/reqclient"
)

// EnvVarsPrefix is the prefix of environment variables overriding the configuration (REQGUARD_SERVER_ADDRESS).
const EnvVarsPrefix = "reqguard"

const cfgDefaultKeyPrefix = "gateway"

const (
	cfgKeyChatPath         = "chatPath"
	cfgKeyModel            = "model"
	cfgKeyMetricsNamespace = "metricsNamespace"
	cfgKeyProbeEnabled     = "probe.enabled"
	cfgKeyProbePath        = "probe.path"
	cfgKeyProbeInterval    = "probe.interval"
	cfgKeyProbeMaxRetries  = "probe.maxRetries"
)

// Default values of the gateway settings.
const (
	DefaultChatPath         = "/chat/completions"
	DefaultMetricsNamespace = "reqguard"
	DefaultProbePath        = "/models"
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeMaxRetries  = 2
)

// DefaultRateLimitRoutes are used when the rate limiting configuration has no routes.
var DefaultRateLimitRoutes = []ratelimit.RouteConfig{
	{Pattern: "/api/v1/chat/*", Policy: ratelimit.PolicyStrict},
}

// ProbeConfig configures the periodic upstream connectivity probe.
type ProbeConfig struct {
	Enabled    bool
	Path       string
	Interval   time.Duration
	MaxRetries int
}

// Settings are the gateway's own parameters.
type Settings struct {
	// ChatPath is the upstream path chat completions are forwarded to, relative to client.baseAddress.
	ChatPath string
	// Model is put into upstream requests that don't name one.
	Model            string
	MetricsNamespace string
	Probe            ProbeConfig

	keyPrefix string
}

var _ config.Config = (*Settings)(nil)
var _ config.KeyPrefixProvider = (*Settings)(nil)

// NewSettings creates new Settings read from the "gateway" section.
func NewSettings() *Settings {
	return &Settings{keyPrefix: cfgDefaultKeyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (s *Settings) KeyPrefix() string {
	return s.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (s *Settings) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyChatPath, DefaultChatPath)
	dp.SetDefault(cfgKeyMetricsNamespace, DefaultMetricsNamespace)
	dp.SetDefault(cfgKeyProbeEnabled, true)
	dp.SetDefault(cfgKeyProbePath, DefaultProbePath)
	dp.SetDefault(cfgKeyProbeInterval, DefaultProbeInterval)
	dp.SetDefault(cfgKeyProbeMaxRetries, DefaultProbeMaxRetries)
}

// Set sets configuration values from config.DataProvider.
func (s *Settings) Set(dp config.DataProvider) error {
	var err error
	if s.ChatPath, err = dp.GetString(cfgKeyChatPath); err != nil {
		return err
	}
	if s.ChatPath == "" {
		return dp.WrapKeyErr(cfgKeyChatPath, fmt.Errorf("cannot be empty"))
	}
	if s.Model, err = dp.GetString(cfgKeyModel); err != nil {
		return err
	}
	if s.MetricsNamespace, err = dp.GetString(cfgKeyMetricsNamespace); err != nil {
		return err
	}
	if s.Probe.Enabled, err = dp.GetBool(cfgKeyProbeEnabled); err != nil {
		return err
	}
	if s.Probe.Path, err = dp.GetString(cfgKeyProbePath); err != nil {
		return err
	}
	if s.Probe.Interval, err = dp.GetDuration(cfgKeyProbeInterval); err != nil {
		return err
	}
	if s.Probe.Enabled && s.Probe.Interval <= 0 {
		return dp.WrapKeyErr(cfgKeyProbeInterval, fmt.Errorf("must be positive"))
	}
	if s.Probe.MaxRetries, err = dp.GetInt(cfgKeyProbeMaxRetries); err != nil {
		return err
	}
	if s.Probe.MaxRetries < 0 {
		return dp.WrapKeyErr(cfgKeyProbeMaxRetries, fmt.Errorf("cannot be negative"))
	}
	return nil
}

// Config is the whole configuration of the gateway process.
type Config struct {
	Log       *log.Config
	Server    *httpserver.Config
	RateLimit *ratelimit.PoliciesConfig
	Client    *reqclient.Config
	Transport *httpclient.Config
	Gateway   *Settings
	Prof      *profserver.Config
}

// NewConfig creates a new Config with all sections at their default key prefixes.
func NewConfig() *Config {
	return &Config{
		Log:       log.NewConfig(),
		Server:    httpserver.NewConfig(),
		RateLimit: ratelimit.NewPoliciesConfig(),
		Client:    reqclient.NewConfig(),
		Transport: httpclient.NewConfig(),
		Gateway:   NewSettings(),
		Prof:      profserver.NewConfig(),
	}
}

// LoadConfigFromFile reads the configuration from a YAML or JSON file; environment variables take precedence.
func LoadConfigFromFile(path string, dataType config.DataType) (*Config, error) {
	cfg := NewConfig()
	if err := config.NewDefaultLoader(EnvVarsPrefix).LoadFromFile(path, dataType, cfg.Log, cfg.sections()...); err != nil {
		return nil, fmt.Errorf("load configuration from %q: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromReader reads the configuration from r; environment variables take precedence.
func LoadConfigFromReader(r io.Reader, dataType config.DataType) (*Config, error) {
	cfg := NewConfig()
	if err := config.NewDefaultLoader(EnvVarsPrefix).LoadFromReader(r, dataType, cfg.Log, cfg.sections()...); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) sections() []config.Config {
	return []config.Config{c.Server, c.RateLimit, c.Client, c.Transport, c.Gateway, c.Prof}
}
