// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes transport errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeStatus
	ErrTypeNoBody
	ErrTypeStreamBroken
	ErrTypeInvalidResponse
	ErrTypeInvalidRequest
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeStatus:
		return "status"
	case ErrTypeNoBody:
		return "no_body"
	case ErrTypeStreamBroken:
		return "stream_broken"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// TransportError is returned for every failed exchange with the backend.
type TransportError struct {
	Type       ErrorType
	StatusCode int // HTTP status, 0 when no response was received
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is matches any *TransportError of the same type, so errors.Is works
// against the sentinels below.
func (e *TransportError) Is(target error) bool {
	var t *TransportError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Sentinel errors for easy checking.
var (
	ErrTimeout      = &TransportError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNoBody       = &TransportError{Type: ErrTypeNoBody, Message: "response has no body"}
	ErrStreamBroken = &TransportError{Type: ErrTypeStreamBroken, Message: "stream interrupted"}
	ErrBadStatus    = &TransportError{Type: ErrTypeStatus, Message: "unexpected status"}
)

func statusError(op, status string, code int, detail string) *TransportError {
	msg := op + " failed: " + status
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &TransportError{Type: ErrTypeStatus, StatusCode: code, Message: msg}
}

func brokenStreamError(cause error, partial int64) *TransportError {
	return &TransportError{
		Type:    ErrTypeStreamBroken,
		Message: fmt.Sprintf("stream interrupted after %d bytes", partial),
		Cause:   cause,
	}
}

// requestError classifies a failure from http.Client.Do.
func requestError(op string, err error) *TransportError {
	switch {
	case errors.Is(err, context.Canceled):
		return &TransportError{Type: ErrTypeCanceled, Message: op + " canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Type: ErrTypeTimeout, Message: op + " timed out", Cause: err}
	default:
		return &TransportError{Type: ErrTypeConnection, Message: op + ": backend unreachable", Cause: err}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsCanceled reports whether err comes from a cancelled context, i.e. the
// caller abandoned the exchange.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
