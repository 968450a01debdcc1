/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/billhaggle/reqguard/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress                 = "address"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyTimeoutsIdle            = "timeouts.idle"
	cfgKeyTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyIdentityHeader          = "identityHeader"
	cfgKeyTrustedProxies          = "trustedProxies"
)

// Default values of the server configuration.
const (
	DefaultAddress              = ":8080"
	DefaultWriteTimeout         = 2 * time.Minute
	DefaultReadTimeout          = 15 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultIdleTimeout          = time.Minute
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultSlowRequestThreshold = 5 * time.Second
	DefaultMaxBodySize          = config.ByteSize(1024 * 1024)
)

// TimeoutsConfig represents a set of timeouts of the HTTP server.
type TimeoutsConfig struct {
	Write      time.Duration
	Read       time.Duration
	ReadHeader time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

// LogConfig represents a set of configuration parameters for HTTP request logging.
type LogConfig struct {
	RequestStart         bool
	ExcludedEndpoints    []string
	SlowRequestThreshold time.Duration
}

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address     string
	Timeouts    TimeoutsConfig
	MaxBodySize config.ByteSize
	Log         LogConfig
	// IdentityHeader is set by the authenticating proxy in front of the gateway. Empty disables identity keys.
	IdentityHeader string
	// TrustedProxies are CIDRs whose X-Forwarded-For is trusted when deriving rate limit keys.
	TrustedProxies []string

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the "server" section.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new Config with a custom key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyTimeoutsWrite, DefaultWriteTimeout)
	dp.SetDefault(cfgKeyTimeoutsRead, DefaultReadTimeout)
	dp.SetDefault(cfgKeyTimeoutsReadHeader, DefaultReadHeaderTimeout)
	dp.SetDefault(cfgKeyTimeoutsIdle, DefaultIdleTimeout)
	dp.SetDefault(cfgKeyTimeoutsShutdown, DefaultShutdownTimeout)
	dp.SetDefault(cfgKeyLimitsMaxBodySize, DefaultMaxBodySize.String())
	dp.SetDefault(cfgKeyLogExcludedEndpoints, []string{"/healthz", "/metrics"})
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if err = c.setTimeouts(dp); err != nil {
		return err
	}
	if c.MaxBodySize, err = dp.GetByteSize(cfgKeyLimitsMaxBodySize); err != nil {
		return err
	}
	if c.Log.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoints); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.IdentityHeader, err = dp.GetString(cfgKeyIdentityHeader); err != nil {
		return err
	}
	if c.TrustedProxies, err = dp.GetStringSlice(cfgKeyTrustedProxies); err != nil {
		return err
	}
	return nil
}

func (c *Config) setTimeouts(dp config.DataProvider) error {
	for _, t := range []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyTimeoutsWrite, &c.Timeouts.Write},
		{cfgKeyTimeoutsRead, &c.Timeouts.Read},
		{cfgKeyTimeoutsReadHeader, &c.Timeouts.ReadHeader},
		{cfgKeyTimeoutsIdle, &c.Timeouts.Idle},
		{cfgKeyTimeoutsShutdown, &c.Timeouts.Shutdown},
	} {
		d, err := dp.GetDuration(t.key)
		if err != nil {
			return err
		}
		if d < 0 {
			return dp.WrapKeyErr(t.key, fmt.Errorf("cannot be negative"))
		}
		*t.dst = d
	}
	return nil
}
