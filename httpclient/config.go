/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/billhaggle/reqguard/config"
	"github.com/billhaggle/reqguard/ratelimit"
)

const cfgDefaultKeyPrefix = "client.transport"

// Default values of the transport configuration.
const (
	DefaultTimeout = 30 * time.Second
)

const (
	cfgKeyTimeout                    = "timeout"
	cfgKeyUserAgent                  = "userAgent"
	cfgKeyAuthToken                  = "auth.token"
	cfgKeyAuthScope                  = "auth.scope"
	cfgKeyRateLimitsEnabled          = "rateLimits.enabled"
	cfgKeyRateLimitsRate             = "rateLimits.rate"
	cfgKeyRateLimitsBurst            = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout      = "rateLimits.waitTimeout"
	cfgKeyRateLimitsAdaptationHeader = "rateLimits.adaptation.responseHeaderName"
	cfgKeyRateLimitsAdaptationSlack  = "rateLimits.adaptation.slackPercent"
	cfgKeyLogEnabled                 = "log.enabled"
	cfgKeyLogMode                    = "log.mode"
	cfgKeyLogSlowRequestThreshold    = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled             = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RateLimitConfig represents configuration options for client-side pacing of outgoing requests.
type RateLimitConfig struct {
	Enabled     bool
	Rate        ratelimit.Config
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: c.WaitTimeout,
		Adaptation:  c.Adaptation,
	}
}

// LogConfig represents configuration options for logging of outgoing requests.
type LogConfig struct {
	Enabled              bool
	Mode                 LoggingMode
	SlowRequestThreshold time.Duration
}

// TransportOpts returns transport options.
func (c *LogConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for metrics of outgoing requests.
type MetricsConfig struct {
	Enabled bool
}

// AuthConfig represents configuration options for bearer authentication of outgoing requests.
type AuthConfig struct {
	// Token is a static bearer token (the API key of the upstream).
	Token string
	Scope []string
}

// Config represents options for the outbound transport chain.
type Config struct {
	Timeout    time.Duration
	UserAgent  string
	Auth       AuthConfig
	RateLimits RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig

	keyPrefix string
}

// NewConfig creates a new instance of the Config read from the "client.transport" section.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, 5*time.Second)
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("cannot be negative"))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if err = c.setAuth(dp); err != nil {
		return err
	}
	if err = c.setRateLimits(dp); err != nil {
		return err
	}
	if err = c.setLog(dp); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	return nil
}

func (c *Config) setAuth(dp config.DataProvider) (err error) {
	if c.Auth.Token, err = dp.GetString(cfgKeyAuthToken); err != nil {
		return err
	}
	if c.Auth.Scope, err = dp.GetStringSlice(cfgKeyAuthScope); err != nil {
		return err
	}
	return nil
}

func (c *Config) setRateLimits(dp config.DataProvider) (err error) {
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.RateLimits.Enabled {
		return nil
	}

	var rate string
	if rate, err = dp.GetString(cfgKeyRateLimitsRate); err != nil {
		return err
	}
	if c.RateLimits.Rate, err = ratelimit.ParseRate(rate); err != nil {
		return dp.WrapKeyErr(cfgKeyRateLimitsRate, err)
	}
	if c.RateLimits.Rate.Limit == 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsRate, fmt.Errorf("must be positive"))
	}

	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("cannot be negative"))
	}

	if c.RateLimits.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("cannot be negative"))
	}

	if c.RateLimits.Adaptation.ResponseHeaderName, err = dp.GetString(cfgKeyRateLimitsAdaptationHeader); err != nil {
		return err
	}
	if c.RateLimits.Adaptation.SlackPercent, err = dp.GetInt(cfgKeyRateLimitsAdaptationSlack); err != nil {
		return err
	}
	if c.RateLimits.Adaptation.SlackPercent < 0 || c.RateLimits.Adaptation.SlackPercent > 100 {
		return dp.WrapKeyErr(cfgKeyRateLimitsAdaptationSlack, fmt.Errorf("must be in range [0..100]"))
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) (err error) {
	if c.Log.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	if !c.Log.Enabled {
		return nil
	}

	var mode string
	if mode, err = dp.GetStringFromSet(cfgKeyLogMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, false); err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(mode)

	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	return nil
}
