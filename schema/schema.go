/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is a JSON value type.
type Type string

// Supported types.
const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeAny     Type = "any"
)

// Schema describes a JSON object. Fields not listed are allowed and ignored.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// Field describes a single property of an object.
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Type     Type   `json:"type" yaml:"type"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	// Schema describes a nested object, or elements of an array whose Items is TypeObject.
	Schema *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
	// Items is the type of array elements. Elements aren't checked when it's empty.
	Items Type `json:"items,omitempty" yaml:"items,omitempty"`
}

// New creates a Schema with fields.
func New(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Violation is a single mismatch between a value and a schema.
type Violation struct {
	// Path is the dotted path of the field ("choices[0].message.content").
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Reason
	}
	return v.Path + ": " + v.Reason
}

// Violations is a list of violations that can be used as an error.
type Violations []Violation

func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i := range vs {
		parts[i] = vs[i].String()
	}
	return strings.Join(parts, "; ")
}

// Paths returns the paths of all violations.
func (vs Violations) Paths() []string {
	paths := make([]string, len(vs))
	for i := range vs {
		paths[i] = vs[i].Path
	}
	return paths
}

// Validate checks v against the schema and returns every violation, not only the first one.
// A nil schema accepts any object.
func (s *Schema) Validate(v map[string]interface{}) Violations {
	if s == nil {
		return nil
	}
	return s.validateObject("", v, nil)
}

func (s *Schema) validateObject(prefix string, obj map[string]interface{}, violations Violations) Violations {
	for i := range s.Fields {
		f := &s.Fields[i]
		path := joinPath(prefix, f.Name)
		val, found := obj[f.Name]
		if !found || val == nil {
			if !f.Optional {
				violations = append(violations, Violation{Path: path, Reason: "is required"})
			}
			continue
		}
		violations = f.validateValue(path, val, violations)
	}
	return violations
}

func (f *Field) validateValue(path string, val interface{}, violations Violations) Violations {
	if !isOfType(val, f.Type) {
		return append(violations, Violation{Path: path, Reason: fmt.Sprintf("must be %s, got %s", f.Type, typeOf(val))})
	}
	switch f.Type {
	case TypeObject:
		if f.Schema != nil {
			violations = f.Schema.validateObject(path, val.(map[string]interface{}), violations)
		}
	case TypeArray:
		if f.Items == "" {
			return violations
		}
		for i, item := range val.([]interface{}) {
			itemPath := path + "[" + strconv.Itoa(i) + "]"
			if !isOfType(item, f.Items) {
				violations = append(violations,
					Violation{Path: itemPath, Reason: fmt.Sprintf("must be %s, got %s", f.Items, typeOf(item))})
				continue
			}
			if f.Items == TypeObject && f.Schema != nil {
				violations = f.Schema.validateObject(itemPath, item.(map[string]interface{}), violations)
			}
		}
	}
	return violations
}

func isOfType(val interface{}, t Type) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeBoolean:
		_, ok := val.(bool)
		return ok
	case TypeNumber:
		_, ok := toFloat(val)
		return ok
	case TypeInteger:
		f, ok := toFloat(val)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case TypeObject:
		_, ok := val.(map[string]interface{})
		return ok
	case TypeArray:
		_, ok := val.([]interface{})
		return ok
	default:
		return false
	}
}

func toFloat(val interface{}) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeOf(val interface{}) string {
	switch val.(type) {
	case string:
		return string(TypeString)
	case bool:
		return string(TypeBoolean)
	case map[string]interface{}:
		return string(TypeObject)
	case []interface{}:
		return string(TypeArray)
	}
	if _, ok := toFloat(val); ok {
		return string(TypeNumber)
	}
	return fmt.Sprintf("%T", val)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
