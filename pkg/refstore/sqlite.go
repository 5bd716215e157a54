// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package refstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/loomlabs/loom/pkg/errors"
	"github.com/loomlabs/loom/pkg/telemetry"
)

// Store persists reference chunks in SQLite. Keyword search and the exact
// cosine scan run directly over the table; an optional VectorIndex mirror
// can serve vector mode instead.
type Store struct {
	db       *sql.DB
	embedder Embedder
	index    VectorIndex
	tracer   trace.Tracer
	metrics  *telemetry.CoreMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithVectorIndex attaches a nearest-neighbor index mirror. Embedded chunks
// are upserted into it during indexing, and vector searches are served from
// it instead of the exact scan.
func WithVectorIndex(index VectorIndex) Option {
	return func(s *Store) { s.index = index }
}

// WithMetrics records indexing outcomes on the given instruments.
func WithMetrics(m *telemetry.CoreMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a chunk store over db and ensures the schema. The
// embedder is used both at index time and for query embedding, so
// dimensionality stays consistent.
func NewStore(db *sql.DB, embedder Embedder, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	s := &Store{db: db, embedder: embedder, tracer: otel.Tracer("loom/refstore")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open opens (or creates) the SQLite database at path and returns a store
// over it.
func Open(path string, embedder Embedder, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewStore(db, embedder, opts...)
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reference_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			skill_id TEXT NOT NULL,
			source_path TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			dims INTEGER NOT NULL DEFAULT 0,
			UNIQUE(skill_id, source_path, chunk_index)
		);
		CREATE INDEX IF NOT EXISTS idx_reference_chunks_skill ON reference_chunks(skill_id);
		CREATE INDEX IF NOT EXISTS idx_reference_chunks_source ON reference_chunks(skill_id, source_path);
	`)
	return err
}

// EmbedReferences chunks and embeds the given reference documents for a
// skill. Indexing is idempotent and incremental: a chunk whose
// (skill, path, index, hash) already exists with an embedding is skipped.
// Chunks of a changed document are re-embedded and stale trailing chunks
// are superseded. Per-chunk embedding failures are recorded in the report
// and do not abort the batch; failed chunks keep their row (embedding NULL)
// so chunk indices stay contiguous and a later run can retry them.
func (s *Store) EmbedReferences(ctx context.Context, skillID string, paths []string, chunkSize, overlap int) (IndexReport, error) {
	var report IndexReport
	if s.embedder == nil {
		return report, errors.Newf(errors.CodeInvalidInput, "store has no embedder configured")
	}

	ctx, span := s.tracer.Start(ctx, "Store.EmbedReferences", trace.WithAttributes(
		attribute.String(telemetry.AttrSkillID, skillID),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int(telemetry.AttrIndexedChunks, report.Indexed),
			attribute.Int(telemetry.AttrSkippedChunks, report.Skipped),
			attribute.Int(telemetry.AttrFailedChunks, report.Failed),
		)
		s.metrics.RecordChunks(ctx, skillID, report.Indexed, report.Skipped, report.Failed)
		span.End()
	}()

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ChunkFailure{
				SourcePath: path, Index: -1, Reason: err.Error(),
			})
			continue
		}
		chunks, err := SplitText(string(content), chunkSize, overlap)
		if err != nil {
			return report, err
		}
		if err := s.indexSource(ctx, skillID, path, chunks, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// existing row state for one (skill, path, index).
type storedChunk struct {
	hash     string
	embedded bool
}

func (s *Store) indexSource(ctx context.Context, skillID, path string, chunks []string, report *IndexReport) error {
	existing, err := s.loadExisting(ctx, skillID, path)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Supersede stale trailing chunks from a previously longer document.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reference_chunks WHERE skill_id = ? AND source_path = ? AND chunk_index >= ?`,
		skillID, path, len(chunks),
	); err != nil {
		return err
	}

	var mirror []Chunk
	for idx, content := range chunks {
		hash := HashChunk(content)
		if prev, ok := existing[idx]; ok && prev.hash == hash && prev.embedded {
			report.Skipped++
			continue
		}

		vec, embedErr := s.embedder.Embed(ctx, content)
		if embedErr != nil {
			// Recorded and skipped; the row is kept without an embedding so
			// a later run retries it.
			report.Failed++
			report.Failures = append(report.Failures, ChunkFailure{
				SourcePath: path, Index: idx, Reason: embedErr.Error(),
			})
			slog.WarnContext(ctx, "chunk embedding failed",
				"skill", skillID, "source", path, "chunk", idx, "error", embedErr)
			if err := upsertChunk(ctx, tx, skillID, path, idx, hash, content, nil); err != nil {
				return err
			}
			if ctx.Err() != nil {
				// The whole batch is cancelled; stop burning provider calls.
				if err := tx.Commit(); err != nil {
					return err
				}
				return errors.New(errors.CodeProviderTimeout, "indexing cancelled", ctx.Err())
			}
			continue
		}

		if err := upsertChunk(ctx, tx, skillID, path, idx, hash, content, vec); err != nil {
			return err
		}
		report.Indexed++
		mirror = append(mirror, Chunk{
			SkillID: skillID, SourcePath: path, Index: idx,
			Content: content, Hash: hash, Embedding: vec,
		})
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if s.index != nil && len(mirror) > 0 {
		if err := s.index.Upsert(ctx, mirror); err != nil {
			return errors.New(errors.CodeIndexingFailure, "vector index upsert", err)
		}
	}
	return nil
}

func (s *Store) loadExisting(ctx context.Context, skillID, path string) (map[int]storedChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, content_hash, embedding IS NOT NULL
		 FROM reference_chunks WHERE skill_id = ? AND source_path = ?`,
		skillID, path,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[int]storedChunk)
	for rows.Next() {
		var idx int
		var sc storedChunk
		if err := rows.Scan(&idx, &sc.hash, &sc.embedded); err != nil {
			return nil, err
		}
		existing[idx] = sc
	}
	return existing, rows.Err()
}

func upsertChunk(ctx context.Context, tx *sql.Tx, skillID, path string, idx int, hash, content string, vec []float32) error {
	var blob []byte
	dims := 0
	if vec != nil {
		blob = encodeVector(vec)
		dims = len(vec)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reference_chunks (skill_id, source_path, chunk_index, content_hash, content, embedding, dims)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(skill_id, source_path, chunk_index)
		DO UPDATE SET content_hash = excluded.content_hash,
		              content = excluded.content,
		              embedding = excluded.embedding,
		              dims = excluded.dims
	`, skillID, path, idx, hash, content, blob, dims)
	return err
}

// Search returns up to opts.Limit chunks ordered by descending score.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "search query is empty")
	}
	if opts.Limit <= 0 {
		return nil, nil
	}

	if opts.Mode == "" {
		opts.Mode = ModeKeyword
	}

	ctx, span := s.tracer.Start(ctx, "Store.Search")
	defer span.End()

	var results []SearchResult
	var err error
	switch opts.Mode {
	case ModeKeyword:
		results, err = s.searchKeyword(ctx, query, opts)
	case ModeVector:
		results, err = s.searchVector(ctx, query, opts)
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown search mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.SearchAttrs(string(opts.Mode), opts.Limit, len(results))...)
	return results, nil
}

func (s *Store) searchKeyword(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	chunks, err := s.loadChunks(ctx, opts.SkillID, false)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	tokens := uniqueTokens(queryLower)

	var results []SearchResult
	for _, chunk := range chunks {
		contentLower := strings.ToLower(chunk.Content)
		score := 0.0
		for _, tok := range tokens {
			if strings.Contains(contentLower, tok) {
				score++
			}
		}
		// Whole-phrase hits rank above scattered token overlap.
		if len(tokens) > 1 && strings.Contains(contentLower, queryLower) {
			score += float64(len(tokens))
		}
		if score > 0 {
			results = append(results, SearchResult{Chunk: chunk, Score: score, Mode: ModeKeyword})
		}
	}

	sortResults(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Store) searchVector(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "vector search requires an embedder")
	}

	status, err := s.StatusFor(ctx, opts.SkillID)
	if err != nil {
		return nil, err
	}
	if status.Embedded == 0 {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"no embedded chunks for %q; run indexing and check Status before vector search",
			opts.SkillID)
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(errors.CodeProviderTimeout, "query embedding", err)
		}
		return nil, errors.New(errors.CodeIndexingFailure, "query embedding", err)
	}

	if s.index != nil {
		return s.searchVectorIndexed(ctx, queryVec, opts)
	}
	return s.searchVectorExact(ctx, queryVec, opts)
}

// searchVectorExact is the correctness oracle: an exact cosine scan over
// every embedded chunk.
func (s *Store) searchVectorExact(ctx context.Context, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	chunks, err := s.loadChunks(ctx, opts.SkillID, true)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(queryVec) {
			return nil, errors.Newf(errors.CodeDimensionMismatch,
				"query dims %d, chunk %s[%d] dims %d",
				len(queryVec), chunk.SourcePath, chunk.Index, len(chunk.Embedding))
		}
		score := CosineSimilarity(queryVec, chunk.Embedding)
		results = append(results, SearchResult{Chunk: chunk, Score: score, Mode: ModeVector})
	}

	sortResults(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Store) searchVectorIndexed(ctx context.Context, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	hits, err := s.index.Search(ctx, queryVec, opts.SkillID, opts.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.getChunk(ctx, hit.SkillID, hit.SourcePath, hit.Index)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: chunk, Score: hit.Score, Mode: ModeVector})
	}
	sortResults(results)
	return results, nil
}

// StatusFor reports how many chunks exist (and are embedded) for a skill.
// An empty skillID reports across all skills.
func (s *Store) StatusFor(ctx context.Context, skillID string) (Status, error) {
	query := `SELECT COUNT(*),
	                 COALESCE(SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END), 0),
	                 COUNT(DISTINCT source_path)
	          FROM reference_chunks`
	var args []any
	if skillID != "" {
		query += ` WHERE skill_id = ?`
		args = append(args, skillID)
	}
	status := Status{SkillID: skillID}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&status.Chunks, &status.Embedded, &status.Sources)
	return status, err
}

// DeleteSkill removes every chunk owned by a skill, from the table and from
// the attached index if any.
func (s *Store) DeleteSkill(ctx context.Context, skillID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM reference_chunks WHERE skill_id = ?`, skillID); err != nil {
		return err
	}
	if s.index != nil {
		return s.index.DeleteSkill(ctx, skillID)
	}
	return nil
}

func (s *Store) loadChunks(ctx context.Context, skillID string, embeddedOnly bool) ([]Chunk, error) {
	query := `SELECT skill_id, source_path, chunk_index, content_hash, content, embedding, dims
	          FROM reference_chunks`
	var where []string
	var args []any
	if skillID != "" {
		where = append(where, "skill_id = ?")
		args = append(args, skillID)
	}
	if embeddedOnly {
		where = append(where, "embedding IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY skill_id, source_path, chunk_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *Store) getChunk(ctx context.Context, skillID, path string, idx int) (Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT skill_id, source_path, chunk_index, content_hash, content, embedding, dims
		 FROM reference_chunks WHERE skill_id = ? AND source_path = ? AND chunk_index = ?`,
		skillID, path, idx,
	)
	return scanChunk(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (Chunk, error) {
	var chunk Chunk
	var blob []byte
	var dims int
	if err := row.Scan(&chunk.SkillID, &chunk.SourcePath, &chunk.Index,
		&chunk.Hash, &chunk.Content, &blob, &dims); err != nil {
		return Chunk{}, err
	}
	if len(blob) > 0 {
		vec, err := decodeVector(blob)
		if err != nil {
			return Chunk{}, fmt.Errorf("chunk %s[%d]: %w", chunk.SourcePath, chunk.Index, err)
		}
		chunk.Embedding = vec
	}
	return chunk, nil
}

// sortResults orders by descending score, then source path and chunk index
// for determinism.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.SourcePath != results[j].Chunk.SourcePath {
			return results[i].Chunk.SourcePath < results[j].Chunk.SourcePath
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}

func uniqueTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// encodeVector serializes float32 values little-endian for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(vec) * 4)
	for _, v := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
