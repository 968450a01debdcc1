/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/config"
	"github.com/billhaggle/reqguard/ratelimit"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(t, `{}`)
		require.NoError(t, err)
		require.Equal(t, DefaultTimeout, cfg.Timeout)
		require.Equal(t, DefaultUserAgent, cfg.UserAgent)
		require.False(t, cfg.RateLimits.Enabled)
		require.True(t, cfg.Log.Enabled)
		require.Equal(t, LoggingModeFailed, cfg.Log.Mode)
		require.Equal(t, 5*time.Second, cfg.Log.SlowRequestThreshold)
		require.True(t, cfg.Metrics.Enabled)
	})

	t.Run("custom", func(t *testing.T) {
		cfg, err := loadConfig(t, `
client:
  transport:
    timeout: 45s
    userAgent: bill-helper/2.0
    auth:
      token: sk-test
    rateLimits:
      enabled: true
      rate: 120/m
      burst: 5
      waitTimeout: 3s
      adaptation:
        responseHeaderName: X-RateLimit-Limit
        slackPercent: 10
    log:
      mode: all
      slowRequestThreshold: 1s
    metrics:
      enabled: false
`)
		require.NoError(t, err)
		require.Equal(t, 45*time.Second, cfg.Timeout)
		require.Equal(t, "bill-helper/2.0", cfg.UserAgent)
		require.Equal(t, "sk-test", cfg.Auth.Token)
		require.Equal(t, RateLimitConfig{
			Enabled:     true,
			Rate:        ratelimit.Config{Interval: time.Minute, Limit: 120},
			Burst:       5,
			WaitTimeout: 3 * time.Second,
			Adaptation:  RateLimitingRoundTripperAdaptation{ResponseHeaderName: "X-RateLimit-Limit", SlackPercent: 10},
		}, cfg.RateLimits)
		require.Equal(t, LogConfig{Enabled: true, Mode: LoggingModeAll, SlowRequestThreshold: time.Second}, cfg.Log)
		require.False(t, cfg.Metrics.Enabled)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			data   string
			errMsg string
		}{
			{
				name:   "bad rate",
				data:   "client:\n  transport:\n    rateLimits:\n      enabled: true\n      rate: fast\n",
				errMsg: "client.transport.rateLimits.rate",
			},
			{
				name:   "zero rate",
				data:   "client:\n  transport:\n    rateLimits:\n      enabled: true\n      rate: 0/s\n",
				errMsg: "must be positive",
			},
			{
				name:   "slack out of range",
				data:   "client:\n  transport:\n    rateLimits:\n      enabled: true\n      rate: 1/s\n      adaptation:\n        slackPercent: 120\n",
				errMsg: "slackPercent",
			},
			{
				name:   "unknown log mode",
				data:   "client:\n  transport:\n    log:\n      mode: verbose\n",
				errMsg: "client.transport.log.mode",
			},
			{
				name:   "negative timeout",
				data:   "client:\n  transport:\n    timeout: -1s\n",
				errMsg: "cannot be negative",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := loadConfig(t, tt.data)
				require.ErrorContains(t, err, tt.errMsg)
			})
		}
	})
}
