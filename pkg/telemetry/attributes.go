// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Loom spans and metrics.
const (
	// Skill attributes
	AttrSkillID      = "loom.skill.id"
	AttrSkillVersion = "loom.skill.version"
	AttrSkillCount   = "loom.skills.count"

	// Routing attributes
	AttrRouteMessageLen = "loom.route.message_length"
	AttrRouteLimit      = "loom.route.limit"
	AttrRouteMinScore   = "loom.route.min_score"
	AttrRouteCandidates = "loom.route.candidates"
	AttrRouteTopScore   = "loom.route.top_score"

	// Reference store attributes
	AttrSearchMode     = "loom.search.mode" // "keyword", "vector"
	AttrSearchLimit    = "loom.search.limit"
	AttrSearchResults  = "loom.search.results"
	AttrIndexedChunks  = "loom.index.indexed"
	AttrSkippedChunks  = "loom.index.skipped"
	AttrFailedChunks   = "loom.index.failed"
	AttrEmbeddingDims  = "loom.embedding.dimensions"
	AttrEmbeddingModel = "loom.embedding.model"

	// Validation attributes
	AttrValidationSession  = "loom.validation.session_id"
	AttrValidationAttempt  = "loom.validation.attempt"
	AttrValidationState    = "loom.validation.state"
	AttrValidationErrors   = "loom.validation.error_count"
	AttrPlausibilityStatus = "loom.plausibility.status"
	AttrPlausibilityScore  = "loom.plausibility.confidence"

	// Error attributes
	AttrErrorCode        = "loom.error.code"
	AttrErrorRecoverable = "loom.error.recoverable"
)

// SkillAttrs builds span attributes for a skill.
func SkillAttrs(id, version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrSkillID, id)}
	if version != "" {
		attrs = append(attrs, attribute.String(AttrSkillVersion, version))
	}
	return attrs
}

// RouteAttrs builds span attributes for a routing call.
func RouteAttrs(messageLen, limit, candidates int, topScore float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRouteMessageLen, messageLen),
		attribute.Int(AttrRouteLimit, limit),
		attribute.Int(AttrRouteCandidates, candidates),
		attribute.Float64(AttrRouteTopScore, topScore),
	}
}

// SearchAttrs builds span attributes for a reference search.
func SearchAttrs(mode string, limit, results int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSearchMode, mode),
		attribute.Int(AttrSearchLimit, limit),
		attribute.Int(AttrSearchResults, results),
	}
}
