// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Loom.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Loom errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a skill or resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMalformedDefinition indicates a skill definition failed validation
	// at registry load time. A single malformed skill aborts the whole load.
	CodeMalformedDefinition ErrorCode = "MALFORMED_DEFINITION"

	// CodeDimensionMismatch indicates embedding dimensionality differs
	// between the stored index and a query.
	CodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// CodeIndexingFailure indicates a per-chunk embedding failure during
	// batch indexing. Recorded and skipped, never fatal to the batch.
	CodeIndexingFailure ErrorCode = "INDEXING_FAILURE"

	// CodeSchemaViolation indicates a structured output failed schema
	// validation. Recoverable via the validation loop's retry ceiling.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeRetriesExhausted indicates the validation loop reached its retry
	// ceiling without producing a valid artifact.
	CodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// CodeProviderTimeout indicates an external embedding or correction call
	// exceeded its bound.
	CodeProviderTimeout ErrorCode = "PROVIDER_TIMEOUT"
)

// LoomError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type LoomError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *LoomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *LoomError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *LoomError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Recoverable: e.Recoverable,
		Context:     e.Context,
	}
	if e.Err != nil {
		payload.Err = e.Err.Error()
	}
	return json.Marshal(payload)
}

// New creates a new LoomError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *LoomError {
	return &LoomError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a new LoomError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *LoomError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *LoomError) WithContext(key string, value interface{}) *LoomError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *LoomError) WithRecoverable(recoverable bool) *LoomError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *LoomError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsLoomError attempts to convert an error to a LoomError, unwrapping
// fmt.Errorf("%w") chains along the way. Returns the error as LoomError
// if one is found in the chain, or wraps it otherwise.
func AsLoomError(err error) *LoomError {
	if err == nil {
		return nil
	}
	var le *LoomError
	if stderrors.As(err, &le) {
		return le
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for untyped errors.
// Wrapped LoomErrors are found anywhere in the chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var le *LoomError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var le *LoomError
	return stderrors.As(err, &le) && le.Code == code
}
