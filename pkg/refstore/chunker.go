// SPDX-License-Identifier: Apache-2.0
package refstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/loomlabs/loom/pkg/errors"
)

// SplitText splits content into chunks of at most size characters, with
// overlap trailing characters shared between consecutive chunks so a term
// spanning a chunk boundary is still findable in at least one chunk.
// Consecutive chunk starts are size-overlap apart: a 2500-character document
// at size 1000 / overlap 100 yields chunks starting at 0, 900, and 1800.
func SplitText(content string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"chunk overlap must be in [0, size), got %d for size %d", overlap, size)
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(content); start += step {
		end := start + size
		if end > len(content) {
			end = len(content)
		}
		chunk := content[start:end]
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(content) {
			break
		}
	}
	return chunks, nil
}

// HashChunk returns the hex-encoded sha-256 of a chunk's content.
func HashChunk(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
