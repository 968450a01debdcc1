/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/billhaggle/reqguard/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyAlg             = "alg"
	cfgKeyMaxKeys         = "maxKeys"
	cfgKeyBurst           = "burst"
	cfgKeyCleanupInterval = "cleanupInterval"
	cfgKeyPolicies        = "policies"
	cfgKeyRoutes          = "routes"
	cfgKeyDefaultPolicy   = "defaultPolicy"
	cfgKeyDryRun          = "dryRun"
	cfgKeyIncludeHeaders  = "includeHeaders"
)

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgFixedWindow   Alg = "fixed_window"
	AlgSlidingWindow Alg = "sliding_window"
	AlgLeakyBucket   Alg = "leaky_bucket"
)

// Default values.
const (
	DefaultMaxKeys         = 10000
	DefaultCleanupInterval = time.Minute
)

// DefaultPolicies are used when the configuration doesn't define them.
var DefaultPolicies = map[string]Config{
	PolicyStandard: {Interval: time.Minute, Limit: 100},
	PolicyStrict:   {Interval: time.Minute, Limit: 10},
}

// RouteConfig binds a glob pattern of request paths ("/api/v1/chat/*") to a named policy.
type RouteConfig struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
	Policy  string `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// PoliciesConfig is the configuration of all inbound rate limiting.
type PoliciesConfig struct {
	Alg             Alg               `mapstructure:"alg" yaml:"alg" json:"alg"`
	MaxKeys         int               `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	Burst           int               `mapstructure:"burst" yaml:"burst" json:"burst"`
	CleanupInterval time.Duration     `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
	Policies        map[string]Config `mapstructure:"policies" yaml:"policies" json:"policies"`
	Routes          []RouteConfig     `mapstructure:"routes" yaml:"routes" json:"routes"`
	DefaultPolicy   string            `mapstructure:"defaultPolicy" yaml:"defaultPolicy" json:"defaultPolicy"`
	DryRun          bool              `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	IncludeHeaders  bool              `mapstructure:"includeHeaders" yaml:"includeHeaders" json:"includeHeaders"`

	keyPrefix string
}

var _ config.Config = (*PoliciesConfig)(nil)
var _ config.KeyPrefixProvider = (*PoliciesConfig)(nil)

// NewPoliciesConfig creates a new PoliciesConfig read from the "rateLimit" section.
func NewPoliciesConfig() *PoliciesConfig {
	return NewPoliciesConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewPoliciesConfigWithKeyPrefix creates a new PoliciesConfig with a custom key prefix.
func NewPoliciesConfigWithKeyPrefix(keyPrefix string) *PoliciesConfig {
	return &PoliciesConfig{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *PoliciesConfig) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *PoliciesConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAlg, string(AlgFixedWindow))
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval)
	dp.SetDefault(cfgKeyDefaultPolicy, PolicyStandard)
	dp.SetDefault(cfgKeyIncludeHeaders, true)
}

// Set sets configuration values from config.DataProvider.
func (c *PoliciesConfig) Set(dp config.DataProvider) error {
	alg, err := dp.GetStringFromSet(cfgKeyAlg,
		[]string{string(AlgFixedWindow), string(AlgSlidingWindow), string(AlgLeakyBucket)}, true)
	if err != nil {
		return err
	}
	c.Alg = Alg(strings.ToLower(alg))

	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyBurst); err != nil {
		return err
	}
	if c.CleanupInterval, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}
	if c.IncludeHeaders, err = dp.GetBool(cfgKeyIncludeHeaders); err != nil {
		return err
	}
	if err = c.setPolicies(dp); err != nil {
		return err
	}
	if c.DefaultPolicy, err = dp.GetString(cfgKeyDefaultPolicy); err != nil {
		return err
	}
	if _, ok := c.Policies[c.DefaultPolicy]; !ok {
		return dp.WrapKeyErr(cfgKeyDefaultPolicy, fmt.Errorf("unknown policy %q", c.DefaultPolicy))
	}
	if err = dp.UnmarshalKey(cfgKeyRoutes, &c.Routes); err != nil {
		return err
	}
	for i, route := range c.Routes {
		if route.Pattern == "" {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d].pattern", cfgKeyRoutes, i), fmt.Errorf("cannot be empty"))
		}
		if _, ok := c.Policies[route.Policy]; !ok {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d].policy", cfgKeyRoutes, i), fmt.Errorf("unknown policy %q", route.Policy))
		}
	}
	return nil
}

// setPolicies reads "policies.<name>" entries given either as "10/m" or as {interval, limit} / {rate}.
func (c *PoliciesConfig) setPolicies(dp config.DataProvider) error {
	c.Policies = make(map[string]Config, len(DefaultPolicies))
	for name, cfg := range DefaultPolicies {
		c.Policies[name] = cfg
	}
	raw := dp.Get(cfgKeyPolicies)
	if raw == nil {
		return nil
	}
	entries, err := cast.ToStringMapE(raw)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyPolicies, err)
	}
	for name, entry := range entries {
		key := cfgKeyPolicies + "." + name
		cfg, parseErr := parsePolicyEntry(entry)
		if parseErr != nil {
			return dp.WrapKeyErr(key, parseErr)
		}
		c.Policies[name] = cfg
	}
	return nil
}

func parsePolicyEntry(entry interface{}) (Config, error) {
	if s, ok := entry.(string); ok {
		return ParseRate(s)
	}
	fields, err := cast.ToStringMapE(entry)
	if err != nil {
		return Config{}, err
	}
	if rate, ok := fields["rate"]; ok {
		return ParseRate(cast.ToString(rate))
	}
	interval, err := cast.ToDurationE(fields["interval"])
	if err != nil {
		return Config{}, fmt.Errorf("interval: %w", err)
	}
	limit, err := cast.ToIntE(fields["limit"])
	if err != nil {
		return Config{}, fmt.Errorf("limit: %w", err)
	}
	cfg := Config{Interval: interval, Limit: limit}
	return cfg, cfg.Validate()
}

// Policy returns the named policy.
func (c *PoliciesConfig) Policy(name string) (Policy, bool) {
	cfg, ok := c.Policies[name]
	return Policy{Name: name, Config: cfg}, ok
}

// PolicyNames returns names of all configured policies in sorted order.
func (c *PoliciesConfig) PolicyNames() []string {
	names := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a configuration built in code rather than read by Set.
func (c *PoliciesConfig) Validate() error {
	if len(c.Policies) == 0 {
		return fmt.Errorf("%w: no policies", ErrInvalidConfig)
	}
	for _, name := range c.PolicyNames() {
		if err := c.Policies[name].Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
	}
	if c.DefaultPolicy != "" {
		if _, ok := c.Policies[c.DefaultPolicy]; !ok {
			return fmt.Errorf("%w: unknown default policy %q", ErrInvalidConfig, c.DefaultPolicy)
		}
	}
	for i, route := range c.Routes {
		if route.Pattern == "" {
			return fmt.Errorf("%w: route #%d: empty pattern", ErrInvalidConfig, i)
		}
		if _, ok := c.Policies[route.Policy]; !ok {
			return fmt.Errorf("%w: route %q: unknown policy %q", ErrInvalidConfig, route.Pattern, route.Policy)
		}
	}
	return nil
}
