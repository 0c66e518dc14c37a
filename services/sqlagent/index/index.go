// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index builds a searchable index of canonical proper-noun values
// (materials and techniques) and resolves approximate user spellings to the
// nearest stored values by embedding similarity.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SourceColumn identifies which reference column a term came from.
type SourceColumn string

const (
	SourceMaterial  SourceColumn = "material"
	SourceTechnique SourceColumn = "technique"
)

// Entry is one canonical value in the term index.
//
// Thread Safety: Entry is immutable after Build.
type Entry struct {
	Value  string
	Source SourceColumn
}

// buildConcurrency bounds parallel embedding calls during Build.
// 10 concurrent requests saturates a local Ollama without overwhelming it.
const buildConcurrency = 10

// isolatedNumerals matches standalone numeral tokens (size codes like
// "Gold 12") that must be stripped before deduplication.
var isolatedNumerals = regexp.MustCompile(`\b\d+\b`)

// whitespaceRuns collapses the gaps left behind by numeral stripping.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// TermIndex resolves approximate spellings to canonical stored values.
//
// Description:
//
//	Built once at process start from the two reference columns, then
//	immutable for the process lifetime. Vectors are unit-normalized at
//	build time so cosine similarity reduces to a dot product at query
//	time. When a VectorStore is configured, vectors persist in BadgerDB
//	keyed by a corpus hash (terms + embedding model); any change to
//	either produces a cache miss and a fresh embed pass.
//
// Thread Safety: Safe for concurrent Query after Build completes.
type TermIndex struct {
	mu      sync.RWMutex
	entries []Entry
	vectors map[string][]float32 // canonical value → unit-normalized vector
	built   bool

	embedder Embedder
	store    VectorStore // nil = in-memory-only
	logger   *slog.Logger
}

// NewTermIndex creates an unbuilt index.
//
// Inputs:
//   - embedder: Embedding backend. Must not be nil.
//   - store: Optional BadgerDB persistence. Nil disables persistence.
//   - logger: Logger for warnings and progress. Nil uses slog.Default.
func NewTermIndex(embedder Embedder, store VectorStore, logger *slog.Logger) *TermIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &TermIndex{
		vectors:  make(map[string][]float32),
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// normalizeTerm strips isolated numeral tokens and collapses whitespace.
// "Gold 12" and "Gold 7" both normalize to "Gold".
func normalizeTerm(s string) string {
	s = isolatedNumerals.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// dedupeTerms normalizes, drops empties, and deduplicates while keeping
// first-seen order (order is not significant post-deduplication, but a
// stable order keeps the corpus hash deterministic).
func dedupeTerms(values []string, source SourceColumn, seen map[string]bool) []Entry {
	var out []Entry
	for _, v := range values {
		norm := normalizeTerm(v)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, Entry{Value: norm, Source: source})
	}
	return out
}

// Build reads the two reference columns, normalizes and deduplicates them,
// and embeds every canonical value.
//
// Description:
//
//	Idempotent: building twice from the same source columns yields index
//	contents equal as sets. Individual embedding failures are logged and
//	skipped (the term simply cannot be matched); a completely unreachable
//	embedding backend fails the build.
//
// Inputs:
//   - ctx: Context for the embedding calls.
//   - materials: Raw values of the material reference column.
//   - techniques: Raw values of the technique reference column.
//
// Outputs:
//   - error: Non-nil if the embedding backend is unreachable or the
//     persisted-vector load path fails irrecoverably.
//
// Thread Safety: Not safe to call concurrently. Call once at startup.
func (t *TermIndex) Build(ctx context.Context, materials, techniques []string) error {
	seen := make(map[string]bool)
	entries := dedupeTerms(materials, SourceMaterial, seen)
	entries = append(entries, dedupeTerms(techniques, SourceTechnique, seen)...)

	if len(entries) == 0 {
		t.mu.Lock()
		t.entries = nil
		t.vectors = make(map[string][]float32)
		t.built = true
		t.mu.Unlock()
		t.logger.Warn("term index: no reference values, index is empty")
		return nil
	}

	corpusHash := t.corpusHash(entries)

	// Check the persisted cache before embedding.
	if t.store != nil {
		cached, err := t.store.LoadVectors(ctx, corpusHash)
		if err != nil {
			t.logger.Warn("term index: vector store load failed, re-embedding",
				slog.String("error", err.Error()),
			)
		} else if len(cached) > 0 {
			t.mu.Lock()
			t.entries = entries
			t.vectors = cached // already unit-normalized on save
			t.built = true
			t.mu.Unlock()
			t.logger.Info("term index: loaded vectors from cache",
				slog.Int("terms", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return nil
		}
	}

	t.logger.Info("term index: embedding reference values",
		slog.Int("terms", len(entries)),
		slog.String("model", t.embedder.Model()),
	)

	type result struct {
		value  string
		vector []float32
	}

	resultCh := make(chan result, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, buildConcurrency)

	for _, e := range entries {
		entry := e
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := t.embedder.Embed(gctx, entry.Value)
			if err != nil {
				t.logger.Warn("term index: failed to embed term",
					slog.String("term", entry.Value),
					slog.String("error", err.Error()),
				)
				// Individual failure is not fatal.
				return nil
			}
			resultCh <- result{value: entry.Value, vector: vec}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("term index build: %w", err)
	}
	close(resultCh)

	vectors := make(map[string][]float32, len(entries))
	for r := range resultCh {
		if unit := unitVector(r.vector); unit != nil {
			vectors[r.value] = unit
		}
	}

	if len(vectors) == 0 {
		return fmt.Errorf("term index build: embedding backend produced no vectors")
	}

	t.mu.Lock()
	t.entries = entries
	t.vectors = vectors
	t.built = true
	t.mu.Unlock()

	t.logger.Info("term index: build complete",
		slog.Int("embedded", len(vectors)),
		slog.Int("requested", len(entries)),
	)

	// Persistence failure is non-fatal: vectors are already in RAM.
	if t.store != nil {
		if err := t.store.SaveVectors(ctx, corpusHash, vectors); err != nil {
			t.logger.Warn("term index: failed to persist vectors",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Query returns up to k canonical values ranked by similarity to text.
//
// Description:
//
//	An empty index returns an empty sequence, not an error. Ties break
//	deterministically: descending similarity, then ascending term, so
//	identical index state and query always give identical output.
//
// Inputs:
//   - ctx: Context for the query embedding call.
//   - text: The user's approximate spelling.
//   - k: Maximum number of results. Non-positive k returns empty.
//
// Outputs:
//   - []string: Up to k canonical values, best match first.
//   - error: Non-nil if the query embedding call fails.
//
// Thread Safety: Safe for concurrent use after Build completes.
func (t *TermIndex) Query(ctx context.Context, text string, k int) ([]string, error) {
	t.mu.RLock()
	size := len(t.vectors)
	t.mu.RUnlock()

	if size == 0 || k <= 0 {
		return []string{}, nil
	}

	queryVec, err := t.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("term index query: %w", err)
	}
	queryUnit := unitVector(queryVec)
	if queryUnit == nil {
		return []string{}, nil
	}

	type scored struct {
		value string
		sim   float32
	}

	t.mu.RLock()
	ranked := make([]scored, 0, len(t.vectors))
	for value, vec := range t.vectors {
		// Dot of two unit vectors = cosine similarity.
		ranked = append(ranked, scored{value: value, sim: dotProduct(queryUnit, vec)})
	}
	t.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].value < ranked[j].value
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, 0, k)
	for _, s := range ranked[:k] {
		out = append(out, s.value)
	}
	return out, nil
}

// Size returns the number of indexed terms with vectors.
func (t *TermIndex) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vectors)
}

// Entries returns a copy of the canonical entries (value + source column).
func (t *TermIndex) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// corpusHash captures every signal that determines vector shape: the
// canonical terms, their source columns, and the embedding model name.
func (t *TermIndex) corpusHash(entries []Entry) string {
	h := sha256.New()
	h.Write([]byte(t.embedder.Model()))
	h.Write([]byte{0})
	for _, e := range entries {
		h.Write([]byte(e.Value))
		h.Write([]byte{0})
		h.Write([]byte(e.Source))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash truncates a hash for log lines.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// unitVector returns v scaled to unit length, or nil for a zero vector.
func unitVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / float32(norm)
	}
	return out
}

// dotProduct computes the dot product of two float32 vectors.
// Mismatched lengths use the shorter.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
