/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi encodes JSON responses and error bodies of the reqguard HTTP surface.
package restapi

import (
	"net/http"
	"strings"
	"unicode"
)

// Error is the body of an error response, wrapped as {"error": {...}} on the wire.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// Error codes shared by the HTTP surface. They are variables so a service may rename them.
var (
	ErrCodeInternal           = "internalError"
	ErrCodeNotFound           = "notFound"
	ErrCodeTooManyRequests    = "tooManyRequests"
	ErrCodeUpstreamFailed     = "upstreamFailed"
	ErrCodeUpstreamValidation = "upstreamValidation"
	ErrCodeUpstreamOffline    = "upstreamOffline"
	ErrCodeRequestCancelled   = "requestCancelled"
)

// Default error messages.
var (
	ErrMessageInternal        = "Internal error."
	ErrMessageNotFound        = "Not found."
	ErrMessageTooManyRequests = "Too many requests."
)

// NewError creates a new Error with specified params.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates a new internal error with specified domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext adds value to error context.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[field] = value
	return e
}

// AddDebug adds value to debug info.
func (e *Error) AddDebug(field string, value interface{}) *Error {
	if e.Debug == nil {
		e.Debug = make(map[string]interface{})
	}
	e.Debug[field] = value
	return e
}

// HTTPCodeToErrorCode turns a status code into a camel-case error code ("Bad Gateway" -> "badGateway").
func HTTPCodeToErrorCode(httpCode int) string {
	if httpCode == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	words := strings.FieldsFunc(http.StatusText(httpCode), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if i > 0 && len(runes) > 0 {
			runes[0] = unicode.ToTitle(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, "")
}
