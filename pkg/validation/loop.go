// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomlabs/loom/pkg/errors"
	"github.com/loomlabs/loom/pkg/telemetry"
)

// State names a point in the validation state machine. Valid and Exhausted
// are terminal.
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateValid      State = "valid"
	StateExhausted  State = "exhausted"
)

// Attempt records one validation pass: the raw text checked and, on
// failure, every violation found.
type Attempt struct {
	Index  int          `json:"index"`
	Raw    string       `json:"raw"`
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Result is the terminal outcome of one validation session. Attempts is the
// complete audit trail, oldest first; its length never exceeds max retries
// plus one.
type Result struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Value     any       `json:"value,omitempty"`
	Attempts  []Attempt `json:"attempts"`
}

// Errors flattens every violation from every attempt, for exhaustion
// reporting.
func (r Result) Errors() []FieldError {
	var all []FieldError
	for _, a := range r.Attempts {
		all = append(all, a.Errors...)
	}
	return all
}

// CorrectionRequester performs the model round-trip for one corrective
// instruction and returns the new raw output. The loop only builds the
// instruction; the actual agent call lives with the caller.
type CorrectionRequester func(ctx context.Context, instruction string) (string, error)

// Loop validates raw output against a schema, requesting corrections until
// the output conforms or the retry ceiling is hit. The ceiling is fixed:
// max retries of zero means exactly one attempt and no round-trip.
type Loop struct {
	schema     Schema
	maxRetries int
	requester  CorrectionRequester
	metrics    *telemetry.CoreMetrics
}

// Option configures a Loop.
type Option func(*Loop)

// WithMetrics records per-attempt and per-session outcomes.
func WithMetrics(m *telemetry.CoreMetrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop creates a validation loop. The requester may be nil when
// maxRetries is zero.
func NewLoop(schema Schema, maxRetries int, requester CorrectionRequester, opts ...Option) (*Loop, error) {
	if schema == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "schema is required")
	}
	if maxRetries < 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "max retries must be >= 0, got %d", maxRetries)
	}
	if maxRetries > 0 && requester == nil {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"max retries %d requires a correction requester", maxRetries)
	}
	l := &Loop{schema: schema, maxRetries: maxRetries, requester: requester}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run drives raw through the state machine to a terminal state. On Valid
// the result carries the parsed value; on Exhausted the returned error has
// code RETRIES_EXHAUSTED and the result still carries the full history. A
// requester failure is a failed attempt like any other: it consumes one
// retry and is recorded in the history, so a transient provider error with
// budget left can still converge to Valid.
func (l *Loop) Run(ctx context.Context, raw string) (Result, error) {
	result := Result{SessionID: uuid.NewString(), State: StatePending}
	current := raw
	maxAttempts := l.maxRetries + 1

	ctx, span := otel.Tracer("loom/validation").Start(ctx, "Loop.Run", trace.WithAttributes(
		attribute.String(telemetry.AttrValidationSession, result.SessionID),
	))
	defer func() {
		span.SetAttributes(
			attribute.String(telemetry.AttrValidationState, string(result.State)),
			attribute.Int(telemetry.AttrValidationAttempt, len(result.Attempts)),
			attribute.Int(telemetry.AttrValidationErrors, len(result.Errors())),
		)
		span.End()
	}()

	var lastRequestErr error
session:
	for {
		result.State = StateValidating
		value, fieldErrs := l.schema.Validate(current)
		valid := len(fieldErrs) == 0
		result.Attempts = append(result.Attempts, Attempt{
			Index:  len(result.Attempts),
			Raw:    current,
			Valid:  valid,
			Errors: fieldErrs,
		})
		l.metrics.RecordValidationAttempt(ctx, valid)

		if valid {
			result.State = StateValid
			result.Value = value
			l.metrics.RecordValidationSession(ctx, string(StateValid), len(result.Attempts))
			return result, nil
		}

		if len(result.Attempts) == maxAttempts {
			break
		}

		result.State = StateRetrying
		instruction := l.buildCorrection(current, fieldErrs, len(result.Attempts))
		corrected, reqErr := l.requester(ctx, instruction)
		for reqErr != nil {
			// A failed round-trip is itself a failed attempt: it is
			// recorded and consumes one retry.
			result.Attempts = append(result.Attempts, Attempt{
				Index:  len(result.Attempts),
				Valid:  false,
				Errors: []FieldError{requestFieldError(reqErr)},
			})
			l.metrics.RecordValidationAttempt(ctx, false)
			slog.WarnContext(ctx, "correction request failed",
				"session", result.SessionID, "attempt", len(result.Attempts), "error", reqErr)
			if len(result.Attempts) == maxAttempts {
				lastRequestErr = reqErr
				break session
			}
			corrected, reqErr = l.requester(ctx, instruction)
		}
		slog.DebugContext(ctx, "validation retry",
			"session", result.SessionID, "attempt", len(result.Attempts), "errors", len(fieldErrs))
		current = corrected
	}

	result.State = StateExhausted
	l.metrics.RecordValidationSession(ctx, string(StateExhausted), len(result.Attempts))
	return result, errors.New(errors.CodeRetriesExhausted,
		fmt.Sprintf("output failed validation after %d attempt(s)", len(result.Attempts)), lastRequestErr)
}

// requestFieldError represents a failed correction round-trip in an
// attempt's error list.
func requestFieldError(err error) FieldError {
	return FieldError{
		Path:     "$",
		Expected: "corrected output",
		Got:      "correction request error",
		Message:  err.Error(),
	}
}

// buildCorrection renders a corrective instruction enumerating every current
// violation, the expected schema, and the rejected output. All errors go in
// at once so a fix for one does not silently reintroduce another across
// attempts.
func (l *Loop) buildCorrection(original string, fieldErrs []FieldError, attempt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous output failed validation (attempt %d/%d).\n\n", attempt, l.maxRetries)

	b.WriteString("VALIDATION ERRORS:\n")
	for _, fe := range fieldErrs {
		fmt.Fprintf(&b, "  - %s\n", fe.String())
	}

	b.WriteString("\nEXPECTED SCHEMA:\n")
	b.WriteString(l.schema.Describe())
	b.WriteString("\n\nORIGINAL OUTPUT:\n")
	b.WriteString(original)
	b.WriteString("\n\nProvide a corrected response that strictly adheres to the schema above. " +
		"Output ONLY the corrected JSON, without explanation or markdown formatting.")
	return b.String()
}
