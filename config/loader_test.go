/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testClientConfig struct {
	BaseAddress string
	MaxRetries  int
	BodyLimit   ByteSize
}

func (c *testClientConfig) KeyPrefix() string {
	return "client"
}

func (c *testClientConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("maxRetries", 3)
	dp.SetDefault("bodyLimit", "1M")
}

func (c *testClientConfig) Set(dp DataProvider) error {
	var err error
	if c.BaseAddress, err = dp.GetString("baseAddress"); err != nil {
		return err
	}
	if c.MaxRetries, err = dp.GetInt("maxRetries"); err != nil {
		return err
	}
	c.BodyLimit, err = dp.GetByteSize("bodyLimit")
	return err
}

type testServerConfig struct {
	Address string
}

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("server.address", ":8080")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	c.Address, err = dp.GetString("server.address")
	return err
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clientCfg, serverCfg := &testClientConfig{}, &testServerConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, clientCfg, serverCfg)
		require.NoError(t, err)
		require.Equal(t, 3, clientCfg.MaxRetries)
		require.Equal(t, ByteSize(1024*1024), clientCfg.BodyLimit)
		require.Equal(t, ":8080", serverCfg.Address)
	})

	t.Run("yaml with key prefix", func(t *testing.T) {
		cfgData := `
client:
  baseAddress: https://llm.local
  maxRetries: 5
  bodyLimit: 2MB
server:
  address: ":9090"
`
		clientCfg, serverCfg := &testClientConfig{}, &testServerConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), DataTypeYAML, clientCfg, serverCfg)
		require.NoError(t, err)
		require.Equal(t, "https://llm.local", clientCfg.BaseAddress)
		require.Equal(t, 5, clientCfg.MaxRetries)
		require.Equal(t, ByteSize(2*1024*1024), clientCfg.BodyLimit)
		require.Equal(t, ":9090", serverCfg.Address)
	})

	t.Run("invalid value", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"client":{"maxRetries":"many"}}`), DataTypeJSON, &testClientConfig{})
		require.ErrorContains(t, err, "client.maxRetries")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client":{"baseAddress":"http://upstream"}}`), 0o600))
	clientCfg := &testClientConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(path, DataTypeJSON, clientCfg))
	require.Equal(t, "http://upstream", clientCfg.BaseAddress)
}

func TestLoader_Load_EnvVars(t *testing.T) {
	t.Setenv("REQGUARD_CLIENT_MAXRETRIES", "7")
	clientCfg := &testClientConfig{}
	require.NoError(t, NewDefaultLoader("reqguard").Load(clientCfg))
	require.Equal(t, 7, clientCfg.MaxRetries)
}
