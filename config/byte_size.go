/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is an amount of bytes written either as a plain number or as "512K", "10MB", "1Gi".
type ByteSize uint64

// ParseByteSize parses a plain non-negative number of bytes or a bytefmt-style size.
// Kubernetes-style suffixes ("Ki", "Mi", ...) are accepted and mean the same as "K", "M", ...
func ParseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("byte size cannot be negative: %d", n)
		}
		return ByteSize(n), nil
	}
	if len(v) > 2 && v[len(v)-1] == 'i' && strings.ContainsRune("KMGTPE", rune(v[len(v)-2])) {
		v = v[:len(v)-1]
	}
	n, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String formats the size the way bytefmt does ("1M", "512K").
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// UnmarshalText implements encoding.TextUnmarshaler. It is used by mapstructure decode hooks too.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

// MarshalJSON encodes the size as a human-readable string.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalYAML accepts both YAML integers and strings.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("byte size must be a scalar, got %q", value.Value)
	}
	return b.UnmarshalText([]byte(value.Value))
}

// MarshalYAML encodes the size as a human-readable string.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}
