/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a rate-limit configuration can't be used for counting.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Config defines how many requests (Limit) a single key may make per fixed window (Interval).
type Config struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Limit    int           `mapstructure:"limit" yaml:"limit" json:"limit"`
}

// Validate returns an error wrapping ErrInvalidConfig if Interval is not positive or Limit is negative.
// Limit = 0 is valid and means that every request is denied.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidConfig, c.Limit)
	}
	return nil
}

// String returns the config in the "N/unit" notation when possible.
func (c Config) String() string {
	var unit string
	switch c.Interval {
	case time.Second:
		unit = "s"
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	default:
		unit = c.Interval.String()
	}
	return fmt.Sprintf("%d/%s", c.Limit, unit)
}

// Policy is a named Config, e.g. "standard" or "strict".
type Policy struct {
	Name string
	Config
}

// Policy names used by the gateway.
const (
	PolicyStandard = "standard"
	PolicyStrict   = "strict"
)

// ParseRate parses the "N/unit" notation where unit is s, m, h or any duration accepted by
// time.ParseDuration (e.g. "10/m", "100/h", "5/30s").
func ParseRate(rate string) (Config, error) {
	incorrectFormatErr := fmt.Errorf(
		"%w: incorrect format for rate %q, should be N/(s|m|h|<duration>), for example 10/s, 100/m, 5/30s",
		ErrInvalidConfig, rate)
	parts := strings.SplitN(strings.TrimSpace(rate), "/", 2)
	if len(parts) != 2 {
		return Config{}, incorrectFormatErr
	}
	limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Config{}, incorrectFormatErr
	}
	var interval time.Duration
	switch unit := strings.ToLower(strings.TrimSpace(parts[1])); unit {
	case "s":
		interval = time.Second
	case "m":
		interval = time.Minute
	case "h":
		interval = time.Hour
	default:
		if interval, err = time.ParseDuration(unit); err != nil {
			return Config{}, incorrectFormatErr
		}
	}
	cfg := Config{Interval: interval, Limit: limit}
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface ("10/m" notation).
func (c *Config) UnmarshalText(text []byte) error {
	cfg, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (c Config) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type configObject struct {
	Interval string `json:"interval" yaml:"interval"`
	Limit    int    `json:"limit" yaml:"limit"`
	Rate     string `json:"rate" yaml:"rate"`
}

func (o configObject) toConfig() (Config, error) {
	if o.Rate != "" {
		return ParseRate(o.Rate)
	}
	interval, err := time.ParseDuration(o.Interval)
	if err != nil {
		return Config{}, fmt.Errorf("%w: interval: %s", ErrInvalidConfig, err.Error())
	}
	cfg := Config{Interval: interval, Limit: o.Limit}
	return cfg, cfg.Validate()
}

// UnmarshalJSON accepts either "10/m" or {"interval": "1m", "limit": 10} or {"rate": "10/m"}.
func (c *Config) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return c.UnmarshalText([]byte(text))
	}
	var obj configObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	cfg, err := obj.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return c.UnmarshalText([]byte(value.Value))
	}
	var obj configObject
	if err := value.Decode(&obj); err != nil {
		return err
	}
	cfg, err := obj.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// MarshalJSON encodes the config as an object with a human-readable interval.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configObject{Interval: c.Interval.String(), Limit: c.Limit})
}

// MarshalYAML encodes the config in the "N/unit" notation.
func (c Config) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}
