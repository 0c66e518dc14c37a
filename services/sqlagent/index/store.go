// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// VectorStore persists term embedding vectors between process runs.
//
// Description:
//
//	Keyed by corpus hash, so a change in reference values or embedding
//	model invalidates the cache automatically (fresh hash, cache miss).
//	Nil store means in-memory-only operation.
//
// Thread Safety: Implementations must be safe for concurrent use.
type VectorStore interface {
	// LoadVectors returns the cached vectors for the corpus hash, or an
	// empty map on a clean miss.
	LoadVectors(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveVectors persists the vectors under the corpus hash.
	SaveVectors(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// vectorKeyPrefix namespaces term-index entries inside the shared cache DB.
const vectorKeyPrefix = "sqlagent/term_vectors/v1/"

// BadgerVectorStore is the BadgerDB-backed VectorStore.
//
// Thread Safety: Safe for concurrent use; BadgerDB handles locking.
type BadgerVectorStore struct {
	db     *badger.DB
	ttl    time.Duration // 0 = no expiry
	logger *slog.Logger
}

// NewBadgerVectorStore wraps an open BadgerDB handle.
//
// Inputs:
//   - db: Open BadgerDB. The caller owns its lifecycle.
//   - ttl: Entry lifetime. Zero disables expiry.
//   - logger: Logger for debug output. Nil uses slog.Default.
func NewBadgerVectorStore(db *badger.DB, ttl time.Duration, logger *slog.Logger) *BadgerVectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerVectorStore{db: db, ttl: ttl, logger: logger}
}

// LoadVectors returns the cached vectors for the corpus hash.
// A missing key is a clean miss: empty map, nil error.
func (s *BadgerVectorStore) LoadVectors(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(vectorKey(corpusHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger vector store: load: %w", err)
	}
	if raw == nil {
		return map[string][]float32{}, nil
	}

	vectors, err := gobDecodeVectors(raw)
	if err != nil {
		// A corrupt entry is treated as a miss; the caller re-embeds.
		s.logger.Warn("badger vector store: corrupt entry, treating as miss",
			slog.String("error", err.Error()),
		)
		return map[string][]float32{}, nil
	}
	return vectors, nil
}

// SaveVectors persists the vectors under the corpus hash.
func (s *BadgerVectorStore) SaveVectors(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := gobEncodeVectors(vectors)
	if err != nil {
		return fmt.Errorf("badger vector store: encode: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(vectorKey(corpusHash), raw)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger vector store: save: %w", err)
	}

	s.logger.Debug("badger vector store: saved vectors",
		slog.Int("terms", len(vectors)),
		slog.String("corpus_hash", shortHash(corpusHash)),
	)
	return nil
}

func vectorKey(corpusHash string) []byte {
	return []byte(vectorKeyPrefix + corpusHash)
}

func gobEncodeVectors(vectors map[string][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecodeVectors(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}
