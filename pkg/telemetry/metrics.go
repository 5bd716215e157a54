// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loomlabs/loom/pkg/errors"
)

// CoreMetrics tracks routing, indexing, and validation activity for
// production monitoring.
type CoreMetrics struct {
	// routeCounter tracks routing requests.
	routeCounter metric.Int64Counter

	// candidateHistogram tracks how many skills each routing call selected.
	candidateHistogram metric.Int64Histogram

	// chunkCounter tracks indexing outcomes by result (indexed, skipped, failed).
	chunkCounter metric.Int64Counter

	// attemptCounter tracks validation attempts by outcome.
	attemptCounter metric.Int64Counter

	// sessionCounter tracks validation sessions by terminal state.
	sessionCounter metric.Int64Counter

	// errorCounter tracks errors by code and component.
	errorCounter metric.Int64Counter
}

// NewCoreMetrics creates the Loom metric instruments on the global meter.
func NewCoreMetrics() (*CoreMetrics, error) {
	meter := otel.Meter("loom/core")

	routeCounter, err := meter.Int64Counter(
		"loom.router.requests",
		metric.WithDescription("Routing requests handled"),
	)
	if err != nil {
		return nil, err
	}

	candidateHistogram, err := meter.Int64Histogram(
		"loom.router.candidates",
		metric.WithDescription("Skills selected per routing request"),
	)
	if err != nil {
		return nil, err
	}

	chunkCounter, err := meter.Int64Counter(
		"loom.refstore.chunks",
		metric.WithDescription("Reference chunks processed by indexing, by result"),
	)
	if err != nil {
		return nil, err
	}

	attemptCounter, err := meter.Int64Counter(
		"loom.validation.attempts",
		metric.WithDescription("Validation attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	sessionCounter, err := meter.Int64Counter(
		"loom.validation.sessions",
		metric.WithDescription("Validation sessions by terminal state"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"loom.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &CoreMetrics{
		routeCounter:       routeCounter,
		candidateHistogram: candidateHistogram,
		chunkCounter:       chunkCounter,
		attemptCounter:     attemptCounter,
		sessionCounter:     sessionCounter,
		errorCounter:       errorCounter,
	}, nil
}

// RecordRoute records one routing request and the number of candidates it
// returned.
func (m *CoreMetrics) RecordRoute(ctx context.Context, candidates int) {
	if m == nil {
		return
	}
	m.routeCounter.Add(ctx, 1)
	m.candidateHistogram.Record(ctx, int64(candidates))
}

// RecordChunks records indexing outcomes for a batch.
func (m *CoreMetrics) RecordChunks(ctx context.Context, skillID string, indexed, skipped, failed int) {
	if m == nil {
		return
	}
	skill := attribute.String("skill.id", skillID)
	if indexed > 0 {
		m.chunkCounter.Add(ctx, int64(indexed),
			metric.WithAttributes(skill, attribute.String("result", "indexed")))
	}
	if skipped > 0 {
		m.chunkCounter.Add(ctx, int64(skipped),
			metric.WithAttributes(skill, attribute.String("result", "skipped")))
	}
	if failed > 0 {
		m.chunkCounter.Add(ctx, int64(failed),
			metric.WithAttributes(skill, attribute.String("result", "failed")))
	}
}

// RecordValidationAttempt records one validation attempt.
func (m *CoreMetrics) RecordValidationAttempt(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if valid {
		outcome = "success"
	}
	m.attemptCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordValidationSession records a completed validation session with its
// terminal state ("valid" or "exhausted") and total attempts.
func (m *CoreMetrics) RecordValidationSession(ctx context.Context, state string, attempts int) {
	if m == nil {
		return
	}
	m.sessionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("state", state),
			attribute.Int("attempts", attempts),
		))
}

// RecordError increments the error counter for the given error and component.
func (m *CoreMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	le := errors.AsLoomError(err)
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(le.Code)),
			attribute.String("component", component),
			attribute.String("recoverable", le.RecoverableString()),
		),
	)
}
