// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlagent wires the agent together: database catalog, term index,
// tool registry, completion gateway, and pipeline, plus the HTTP surface.
package sqlagent

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/config"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/db"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/index"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/pipeline"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/tools"
)

// runner is the pipeline operation the HTTP handlers depend on.
type runner interface {
	Run(ctx context.Context, question string) (*pipeline.Result, error)
}

// Service owns the wired agent and its closeable resources.
//
// Thread Safety: Safe for concurrent use once built; the pipeline supports
// concurrent runs and the term index is read-only after construction.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline runner
	idx      *index.TermIndex
	catalog  *db.Postgres
	cache    *badger.DB
}

// New builds the full agent from configuration.
//
// Description:
//
//	Connects the read-only catalog, opens the optional vector cache,
//	builds the term index from the configured reference columns, and
//	assembles registry, executors, gateway, and pipeline. On error all
//	partially acquired resources are released.
//
// Inputs:
//   - ctx: Context for connection and index construction.
//   - cfg: Immutable configuration from config.Load.
//   - logger: Logger. Nil uses slog.Default.
//
// Outputs:
//   - *Service: The ready service. Caller owns Close().
//   - error: Non-nil when any collaborator cannot be built.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, logger: logger, catalog: catalog}
	if err := s.buildIndex(ctx); err != nil {
		s.Close()
		return nil, err
	}

	client, err := llm.NewClient(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlagent: building llm client: %w", err)
	}

	registry := tools.NewRegistry(
		tools.NewListTablesTool(catalog),
		tools.NewGetSchemaTool(catalog),
		tools.NewSearchMaterialsTool(s.idx),
	)
	executor := tools.NewFallbackExecutor(tools.NewExecutor(registry, logger), logger)
	gateway := pipeline.NewGateway(client, llm.GenerationParams{
		Temperature: cfg.LLM.Temperature,
	}, logger)

	s.pipeline = pipeline.New(gateway, executor, registry,
		pipeline.Config{MaxContractRetries: cfg.Pipeline.MaxContractRetries}, logger)
	return s, nil
}

// buildIndex reads the reference columns and constructs the term index,
// optionally backed by a Badger vector cache.
func (s *Service) buildIndex(ctx context.Context) error {
	var store index.VectorStore
	if dir := s.cfg.Index.CacheDir; dir != "" {
		cache, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
		if err != nil {
			return fmt.Errorf("sqlagent: opening vector cache: %w", err)
		}
		s.cache = cache
		store = index.NewBadgerVectorStore(cache, s.cfg.Index.CacheTTL.Std(), s.logger)
	}

	var embedder index.Embedder
	switch s.cfg.Embedding.Provider {
	case "openai":
		embedder = index.NewOpenAIEmbedder(s.cfg.Embedding.APIKey, s.cfg.Embedding.Model)
	case "ollama":
		embedder = index.NewOllamaEmbedder(s.cfg.Embedding.BaseURL, s.cfg.Embedding.Model)
	default:
		return fmt.Errorf("sqlagent: unknown embedding provider %q", s.cfg.Embedding.Provider)
	}

	materials, err := s.catalog.ColumnValues(ctx, s.cfg.Index.MaterialsTable, s.cfg.Index.TermColumn)
	if err != nil {
		return fmt.Errorf("sqlagent: reading materials: %w", err)
	}
	techniques, err := s.catalog.ColumnValues(ctx, s.cfg.Index.TechniquesTable, s.cfg.Index.TermColumn)
	if err != nil {
		return fmt.Errorf("sqlagent: reading techniques: %w", err)
	}

	s.idx = index.NewTermIndex(embedder, store, s.logger)
	if err := s.idx.Build(ctx, materials, techniques); err != nil {
		return fmt.Errorf("sqlagent: building term index: %w", err)
	}
	s.logger.Info("term index ready", slog.Int("terms", s.idx.Size()))
	return nil
}

// Run answers one question through the pipeline.
func (s *Service) Run(ctx context.Context, question string) (*pipeline.Result, error) {
	return s.pipeline.Run(ctx, question)
}

// Close releases the database pool and vector cache.
func (s *Service) Close() {
	if s.catalog != nil {
		s.catalog.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("closing vector cache", slog.Any("error", err))
		}
	}
}
