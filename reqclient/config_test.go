/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/config"
)

func TestConfig(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(""), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "", cfg.BaseAddress)
		require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
		require.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
		require.Equal(t, 10*time.Second, cfg.MaxDelay)
		require.Equal(t, DefaultTimeout, cfg.Timeout)
		require.Equal(t, DefaultMaxResponseBodySize, cfg.MaxResponseBodySize)

		defCfg := NewDefaultConfig()
		require.Equal(t, cfg, defCfg)
	})

	t.Run("custom values", func(t *testing.T) {
		cfgData := `
client:
  baseAddress: https://llm.example.com/v1/
  maxRetries: 5
  initialDelay: 100ms
  maxDelay: 2s
  timeout: 45s
  maxResponseBodySize: 1M
`
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "https://llm.example.com/v1", cfg.BaseAddress)
		require.Equal(t, 5, cfg.MaxRetries)
		require.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
		require.Equal(t, 2*time.Second, cfg.MaxDelay)
		require.Equal(t, 45*time.Second, cfg.Timeout)
		require.Equal(t, config.ByteSize(1024*1024), cfg.MaxResponseBodySize)
		require.Equal(t, 100*time.Millisecond, cfg.Backoff().InitialDelay)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
llm:
  maxRetries: 0
`
		cfg := NewConfigWithKeyPrefix("llm")
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 0, cfg.MaxRetries)
	})

	tests := []struct {
		name        string
		cfgData     string
		expectedErr string
	}{
		{
			name:        "negative max retries",
			cfgData:     "client:\n  maxRetries: -1\n",
			expectedErr: `maxRetries: failed on "gte"`,
		},
		{
			name:        "max delay less than initial delay",
			cfgData:     "client:\n  initialDelay: 2s\n  maxDelay: 1s\n",
			expectedErr: `maxDelay: failed on "gtefield"`,
		},
		{
			name:        "zero timeout",
			cfgData:     "client:\n  timeout: 0s\n",
			expectedErr: `timeout: failed on "gt"`,
		},
		{
			name:        "invalid base address",
			cfgData:     "client:\n  baseAddress: not a url\n",
			expectedErr: `baseAddress: failed on "url"`,
		},
		{
			name:        "invalid duration",
			cfgData:     "client:\n  initialDelay: soon\n",
			expectedErr: "client.initialDelay",
		},
		{
			name:        "invalid body size",
			cfgData:     "client:\n  maxResponseBodySize: huge\n",
			expectedErr: "client.maxResponseBodySize",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.expectedErr)
		})
	}
}
