/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package schema

import (
	"encoding/json"
	"strings"
)

// ExtractionStrategy produces the object to validate from a decoded response body.
// Extract returns false when the body doesn't have the shape the strategy expects.
type ExtractionStrategy struct {
	Name    string
	Extract func(body interface{}) (map[string]interface{}, bool)
}

// RootObject uses the body itself when it's a JSON object.
var RootObject = ExtractionStrategy{
	Name: "root_object",
	Extract: func(body interface{}) (map[string]interface{}, bool) {
		obj, ok := body.(map[string]interface{})
		return obj, ok
	},
}

// Envelope uses the object stored under key of the body ({"data": {...}}).
func Envelope(key string) ExtractionStrategy {
	return ExtractionStrategy{
		Name: "envelope:" + key,
		Extract: func(body interface{}) (map[string]interface{}, bool) {
			obj, ok := body.(map[string]interface{})
			if !ok {
				return nil, false
			}
			inner, ok := obj[key].(map[string]interface{})
			return inner, ok
		},
	}
}

// ChatCompletionContent parses the JSON object the model put into choices[0].message.content
// of an OpenAI-compatible chat completion.
var ChatCompletionContent = ExtractionStrategy{
	Name: "chat_completion_content",
	Extract: func(body interface{}) (map[string]interface{}, bool) {
		content, ok := ChatCompletionText(body)
		if !ok {
			return nil, false
		}
		return FindJSONObject(content)
	},
}

// EmbeddedJSON finds the first JSON object inside a text body, e.g. in a fenced code block.
var EmbeddedJSON = ExtractionStrategy{
	Name: "embedded_json",
	Extract: func(body interface{}) (map[string]interface{}, bool) {
		text, ok := body.(string)
		if !ok {
			return nil, false
		}
		return FindJSONObject(text)
	},
}

// DefaultStrategies are used when no strategies are passed to Extract.
var DefaultStrategies = []ExtractionStrategy{RootObject, Envelope("data"), ChatCompletionContent, EmbeddedJSON}

// ValidationError is returned by Extract when no strategy produced a valid object.
type ValidationError struct {
	// Strategy is the name of the strategy whose candidate is reported, empty if none produced one.
	Strategy   string
	Violations Violations
}

func (e *ValidationError) Error() string {
	if e.Strategy == "" {
		return "response doesn't match schema: " + e.Violations.Error()
	}
	return "response doesn't match schema (" + e.Strategy + "): " + e.Violations.Error()
}

// Extract tries strategies in order and returns the first candidate that is valid against s.
// If none is valid, the violations of the first produced candidate are returned in *ValidationError.
func Extract(s *Schema, body interface{}, strategies ...ExtractionStrategy) (map[string]interface{}, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	var firstErr *ValidationError
	for _, st := range strategies {
		candidate, ok := st.Extract(body)
		if !ok {
			continue
		}
		violations := s.Validate(candidate)
		if len(violations) == 0 {
			return candidate, nil
		}
		if firstErr == nil {
			firstErr = &ValidationError{Strategy: st.Name, Violations: violations}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &ValidationError{Violations: Violations{{Reason: "no JSON object found in response"}}}
}

// ChatCompletionText returns choices[0].message.content of an OpenAI-compatible chat completion.
func ChatCompletionText(body interface{}) (string, bool) {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return "", false
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	msg, ok := choice["message"].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	return content, ok
}

// FindJSONObject returns the first complete JSON object found in text.
func FindJSONObject(text string) (map[string]interface{}, bool) {
	for i := strings.IndexByte(text, '{'); i != -1; {
		var obj map[string]interface{}
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil {
			return obj, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next == -1 {
			break
		}
		i += next + 1
	}
	return nil, false
}
