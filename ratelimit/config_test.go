/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/billhaggle/reqguard/config"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		rate    string
		want    Config
		wantErr bool
	}{
		{"10/s", Config{Interval: time.Second, Limit: 10}, false},
		{"100/m", Config{Interval: time.Minute, Limit: 100}, false},
		{"1000/H", Config{Interval: time.Hour, Limit: 1000}, false},
		{"5/30s", Config{Interval: 30 * time.Second, Limit: 5}, false},
		{"0/m", Config{Interval: time.Minute, Limit: 0}, false},
		{"10", Config{}, true},
		{"ten/m", Config{}, true},
		{"10/fortnight", Config{}, true},
		{"-1/m", Config{}, true},
		{"10/0s", Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			got, err := ParseRate(tt.rate)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_String(t *testing.T) {
	require.Equal(t, "10/m", Config{Interval: time.Minute, Limit: 10}.String())
	require.Equal(t, "5/30s", Config{Interval: 30 * time.Second, Limit: 5}.String())
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	var policies map[string]Config
	require.NoError(t, json.Unmarshal([]byte(`{
		"standard": "100/m",
		"strict": {"interval": "1m", "limit": 10},
		"burst": {"rate": "5/s"}
	}`), &policies))
	require.Equal(t, Config{Interval: time.Minute, Limit: 100}, policies["standard"])
	require.Equal(t, Config{Interval: time.Minute, Limit: 10}, policies["strict"])
	require.Equal(t, Config{Interval: time.Second, Limit: 5}, policies["burst"])

	var cfg Config
	require.Error(t, json.Unmarshal([]byte(`{"interval": "0s", "limit": 10}`), &cfg))
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	var policies map[string]Config
	require.NoError(t, yaml.Unmarshal([]byte("standard: 100/m\nstrict:\n  interval: 1m\n  limit: 10\n"), &policies))
	require.Equal(t, Config{Interval: time.Minute, Limit: 100}, policies["standard"])
	require.Equal(t, Config{Interval: time.Minute, Limit: 10}, policies["strict"])

	out, err := yaml.Marshal(policies)
	require.NoError(t, err)
	require.Equal(t, "standard: 100/m\nstrict: 10/m\n", string(out))
}

func TestPoliciesConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewPoliciesConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), config.DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, AlgFixedWindow, cfg.Alg)
		require.Equal(t, DefaultMaxKeys, cfg.MaxKeys)
		require.Equal(t, DefaultPolicies, cfg.Policies)
		require.Equal(t, PolicyStandard, cfg.DefaultPolicy)
		require.True(t, cfg.IncludeHeaders)
		require.False(t, cfg.DryRun)
		require.Equal(t, []string{PolicyStandard, PolicyStrict}, cfg.PolicyNames())
	})

	t.Run("custom", func(t *testing.T) {
		cfgData := `
rateLimit:
  alg: sliding_window
  maxKeys: 500
  dryRun: true
  policies:
    standard: 60/m
    strict:
      interval: 30s
      limit: 3
    upload:
      rate: 2/s
  routes:
    - pattern: /api/v1/chat/*
      policy: strict
    - pattern: /api/v1/files/*
      policy: upload
`
		cfg := NewPoliciesConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, AlgSlidingWindow, cfg.Alg)
		require.Equal(t, 500, cfg.MaxKeys)
		require.True(t, cfg.DryRun)
		require.Equal(t, Config{Interval: time.Minute, Limit: 60}, cfg.Policies[PolicyStandard])
		require.Equal(t, Config{Interval: 30 * time.Second, Limit: 3}, cfg.Policies[PolicyStrict])
		upload, ok := cfg.Policy("upload")
		require.True(t, ok)
		require.Equal(t, Policy{Name: "upload", Config: Config{Interval: time.Second, Limit: 2}}, upload)
		require.Equal(t, []RouteConfig{
			{Pattern: "/api/v1/chat/*", Policy: PolicyStrict},
			{Pattern: "/api/v1/files/*", Policy: "upload"},
		}, cfg.Routes)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			cfgData string
			errMsg  string
		}{
			{"unknown alg", `{"rateLimit":{"alg":"token_bucket"}}`, "rateLimit.alg"},
			{"bad rate", `{"rateLimit":{"policies":{"standard":"lots"}}}`, "rateLimit.policies.standard"},
			{"zero interval", `{"rateLimit":{"policies":{"strict":{"interval":"0s","limit":1}}}}`, "rateLimit.policies.strict"},
			{"unknown route policy", `{"rateLimit":{"routes":[{"pattern":"/x","policy":"nope"}]}}`, "rateLimit.routes[0].policy"},
			{"unknown default policy", `{"rateLimit":{"defaultPolicy":"nope"}}`, "rateLimit.defaultPolicy"},
			{"non-positive max keys", `{"rateLimit":{"maxKeys":0}}`, "rateLimit.maxKeys"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewBufferString(tt.cfgData), config.DataTypeJSON, NewPoliciesConfig())
				require.ErrorContains(t, err, tt.errMsg)
			})
		}
	})
}
