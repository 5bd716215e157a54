// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package refstore persists reference document chunks with embeddings and
// serves keyword and vector similarity searches over them.
package refstore

import (
	"context"
	"math"
)

// SearchMode selects the retrieval strategy. Mode is explicit and
// caller-controlled; the store never silently falls back between modes.
type SearchMode string

const (
	// ModeKeyword scores chunks by case-insensitive token overlap. Always
	// available, no external calls.
	ModeKeyword SearchMode = "keyword"

	// ModeVector scores chunks by cosine similarity between the query
	// embedding and stored chunk embeddings. Requires embedded chunks.
	ModeVector SearchMode = "vector"
)

// Chunk is one bounded slice of a reference document, the unit of indexing
// and retrieval.
type Chunk struct {
	SkillID    string
	SourcePath string
	Index      int // contiguous from 0 per (skill, source path)
	Content    string
	Hash       string // sha-256 of Content, drives idempotent re-embedding
	Embedding  []float32
}

// SearchResult pairs a chunk with its relevance score for one query.
type SearchResult struct {
	Chunk Chunk
	Score float64
	Mode  SearchMode
}

// SearchOptions bounds a search call.
type SearchOptions struct {
	SkillID string // optional pre-filter
	Limit   int
	Mode    SearchMode
}

// Status reports indexing state for one skill, letting callers decide
// whether vector mode is usable before attempting it.
type Status struct {
	SkillID  string
	Chunks   int
	Embedded int
	Sources  int
}

// IndexReport summarizes one EmbedReferences batch. Failed chunks are
// recorded, never fatal to the batch.
type IndexReport struct {
	Indexed  int // newly embedded chunks
	Skipped  int // unchanged chunks left untouched
	Failed   int
	Failures []ChunkFailure
}

// ChunkFailure records a single per-chunk indexing failure. Index is -1 when
// the whole source file could not be read.
type ChunkFailure struct {
	SourcePath string
	Index      int
	Reason     string
}

// Embedder converts text into a fixed-dimensionality vector. Implementations
// block on network I/O and must honor ctx cancellation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is an optional nearest-neighbor accelerator mirroring the
// store's embedded chunks. Results must be consistent with an exact cosine
// scan; approximate implementations are acceptable only with validated
// recall (see the store's equivalence test).
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, skillID string, limit int) ([]IndexHit, error)
	DeleteSkill(ctx context.Context, skillID string) error
}

// IndexHit identifies a chunk returned by a VectorIndex.
type IndexHit struct {
	SkillID    string
	SourcePath string
	Index      int
	Score      float64
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors. Zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
