/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/billhaggle/reqguard/config"
	"github.com/billhaggle/reqguard/retry"
)

const cfgDefaultKeyPrefix = "client"

// Default values of the client configuration.
const (
	DefaultMaxRetries          = 3
	DefaultTimeout             = 30 * time.Second
	DefaultMaxResponseBodySize = config.ByteSize(10 * 1024 * 1024)
)

const (
	cfgKeyBaseAddress         = "baseAddress"
	cfgKeyMaxRetries          = "maxRetries"
	cfgKeyInitialDelay        = "initialDelay"
	cfgKeyMaxDelay            = "maxDelay"
	cfgKeyTimeout             = "timeout"
	cfgKeyMaxResponseBodySize = "maxResponseBodySize"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config is the configuration of the resilient request client.
type Config struct {
	// BaseAddress is prepended to the path of every call ("https://llm.example.com/v1").
	BaseAddress string `json:"baseAddress" validate:"omitempty,url"`

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `json:"maxRetries" validate:"gte=0"`

	InitialDelay time.Duration `json:"initialDelay" validate:"gt=0"`
	MaxDelay     time.Duration `json:"maxDelay" validate:"gtefield=InitialDelay"`

	// Timeout limits every single attempt, not the whole call.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`

	MaxResponseBodySize config.ByteSize `json:"maxResponseBodySize" validate:"gt=0"`

	keyPrefix string
}

// NewConfig creates a new Config read from the "client" section.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new Config with a custom key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig returns a ready-to-use Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxRetries:          DefaultMaxRetries,
		InitialDelay:        retry.DefaultInitialDelay,
		MaxDelay:            retry.DefaultMaxDelay,
		Timeout:             DefaultTimeout,
		MaxResponseBodySize: DefaultMaxResponseBodySize,
		keyPrefix:           cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxRetries, DefaultMaxRetries)
	dp.SetDefault(cfgKeyInitialDelay, retry.DefaultInitialDelay)
	dp.SetDefault(cfgKeyMaxDelay, retry.DefaultMaxDelay)
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyMaxResponseBodySize, DefaultMaxResponseBodySize.String())
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.BaseAddress, err = dp.GetString(cfgKeyBaseAddress); err != nil {
		return err
	}
	c.BaseAddress = strings.TrimRight(c.BaseAddress, "/")
	if c.MaxRetries, err = dp.GetInt(cfgKeyMaxRetries); err != nil {
		return err
	}
	if c.InitialDelay, err = dp.GetDuration(cfgKeyInitialDelay); err != nil {
		return err
	}
	if c.MaxDelay, err = dp.GetDuration(cfgKeyMaxDelay); err != nil {
		return err
	}
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.MaxResponseBodySize, err = dp.GetByteSize(cfgKeyMaxResponseBodySize); err != nil {
		return err
	}
	if err = c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", c.keyPrefix, err)
	}
	return nil
}

// Backoff returns the backoff part of the configuration.
func (c *Config) Backoff() retry.BackoffConfig {
	return retry.BackoffConfig{InitialDelay: c.InitialDelay, MaxDelay: c.MaxDelay}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed on %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid client config: %s", strings.Join(msgs, "; "))
}
