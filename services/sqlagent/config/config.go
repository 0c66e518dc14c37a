// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the immutable agent configuration: a YAML file for
// structure, environment variables for secrets. Built once at process start
// and passed by reference; never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML file omits a field.
const (
	DefaultListenAddr     = ":8095"
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultEmbedProvider  = "openai"
	DefaultEmbedModel     = "text-embedding-3-large"
	DefaultCacheTTL       = 720 * time.Hour
	DefaultMaterialsTable = "materials"
	DefaultTechniquesTab  = "techniques"
	DefaultTermColumn     = "name"
)

// Duration is a time.Duration that decodes from YAML strings like "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LLMConfig selects the completion backend.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// Model overrides the provider default model.
	Model string `yaml:"model"`

	// Temperature, when set, overrides the provider default.
	Temperature *float32 `yaml:"temperature"`

	// APIKey is never read from YAML; it comes from OPENAI_API_KEY or
	// ANTHROPIC_API_KEY depending on Provider.
	APIKey string `yaml:"-"`
}

// EmbeddingConfig selects the embedding backend for the term index.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama".
	Provider string `yaml:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// BaseURL points at the Ollama server. Ignored for openai.
	BaseURL string `yaml:"base_url"`

	// APIKey comes from OPENAI_API_KEY for the openai provider.
	APIKey string `yaml:"-"`
}

// IndexConfig controls term index construction and vector caching.
type IndexConfig struct {
	// CacheDir is the Badger directory for persisted term vectors.
	// Empty disables persistence; the index stays in memory.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL bounds the lifetime of persisted vectors.
	CacheTTL Duration `yaml:"cache_ttl"`

	// MaterialsTable and TechniquesTable are the reference tables whose
	// TermColumn values seed the index.
	MaterialsTable  string `yaml:"materials_table"`
	TechniquesTable string `yaml:"techniques_table"`
	TermColumn      string `yaml:"term_column"`
}

// PipelineConfig holds run-level knobs.
type PipelineConfig struct {
	// MaxContractRetries is how many extra query-generation turns a run
	// may spend after a wrong-tool violation. Zero fails closed.
	MaxContractRetries int `yaml:"max_contract_retries"`
}

// Config is the complete agent configuration.
//
// Thread Safety: Config is immutable after Load and safe for concurrent
// read access.
type Config struct {
	// ListenAddr is the HTTP bind address of the serve command.
	ListenAddr string `yaml:"listen_addr"`

	// DatabaseURL is never read from YAML; it comes from DATABASE_URL.
	DatabaseURL string `yaml:"-"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// Load builds the configuration from an optional YAML file plus the
// environment.
//
// Description:
//
//	A .env file in the working directory is loaded first when present
//	(best effort, development convenience). The YAML path may be empty,
//	in which case only defaults and environment apply. Secrets are taken
//	exclusively from the environment so they never land in config files.
//
// Inputs:
//   - path: YAML file path, or "" for defaults.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil on unreadable YAML or missing required settings.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	cfg.applyDefaults()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	default:
		return nil, fmt.Errorf("config: unknown llm provider %q", cfg.LLM.Provider)
	}
	if cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = DefaultLLMProvider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = DefaultEmbedProvider
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbedModel
	}
	if c.Index.CacheTTL == 0 {
		c.Index.CacheTTL = Duration(DefaultCacheTTL)
	}
	if c.Index.MaterialsTable == "" {
		c.Index.MaterialsTable = DefaultMaterialsTable
	}
	if c.Index.TechniquesTable == "" {
		c.Index.TechniquesTable = DefaultTechniquesTab
	}
	if c.Index.TermColumn == "" {
		c.Index.TermColumn = DefaultTermColumn
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: API key for llm provider %q is required", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for openai embeddings")
		}
	case "ollama":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("config: embedding base_url is required for ollama")
		}
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Pipeline.MaxContractRetries < 0 {
		return fmt.Errorf("config: max_contract_retries must not be negative")
	}
	return nil
}
