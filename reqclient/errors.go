/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a failed call.
type Kind string

// Kinds of failures.
const (
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	KindValidation        Kind = "validation"
	KindOffline           Kind = "offline"
	KindTransientNetwork  Kind = "transient_network"
	KindServer            Kind = "server"
	KindTooManyRequests   Kind = "too_many_requests"
	KindClient            Kind = "client"
	KindCancelled         Kind = "cancelled"
	KindRequestFailed     Kind = "request_failed"
	KindDuplicateID       Kind = "duplicate_id"
)

// Retryable reports whether a failure of this kind may succeed on another attempt.
// KindRateLimitExceeded is final: the client-side pacer already waited as long as the attempt allowed.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientNetwork, KindServer, KindTooManyRequests:
		return true
	}
	return false
}

type kindSentinel Kind

func (s kindSentinel) Error() string {
	return string(s)
}

// Sentinels for errors.Is checks. errors.Is(err, ErrCancelled) is true for any *Error of KindCancelled.
var (
	ErrRateLimitExceeded error = kindSentinel(KindRateLimitExceeded)
	ErrValidation        error = kindSentinel(KindValidation)
	ErrOffline           error = kindSentinel(KindOffline)
	ErrTransientNetwork  error = kindSentinel(KindTransientNetwork)
	ErrServer            error = kindSentinel(KindServer)
	ErrTooManyRequests   error = kindSentinel(KindTooManyRequests)
	ErrClient            error = kindSentinel(KindClient)
	ErrCancelled         error = kindSentinel(KindCancelled)
	ErrRequestFailed     error = kindSentinel(KindRequestFailed)
	ErrDuplicateID       error = kindSentinel(KindDuplicateID)
)

// Error is the only error type a call returns.
// A KindRequestFailed error wraps the error of the last attempt.
type Error struct {
	Kind       Kind
	Message    string
	Attempts   int
	RequestID  string
	StatusCode int
	// RetryAfter is the wait the upstream asked for (429 only).
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (attempts: %d)", e.Attempts)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the next error in the error chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error kind.
func (e *Error) Is(target error) bool {
	s, ok := target.(kindSentinel)
	return ok && Kind(s) == e.Kind
}

type errorJSON struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
	Cause    string `json:"cause,omitempty"`
}

// MarshalJSON encodes the error as {"kind", "message", "attempts", "cause"}.
func (e *Error) MarshalJSON() ([]byte, error) {
	data := errorJSON{Kind: e.Kind, Message: e.Message, Attempts: e.Attempts}
	if e.Cause != nil {
		data.Cause = e.Cause.Error()
	}
	return json.Marshal(data)
}

// DuplicateIDError is returned by Registry.Register when the id is already pending.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("request %q is already pending", e.ID)
}

// Is makes DuplicateIDError match ErrDuplicateID.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}
