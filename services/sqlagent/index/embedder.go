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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder turns text into a vector under one fixed embedding model.
//
// Description:
//
//	The term index depends only on this interface. Backends are adapters
//	over raw HTTP APIs (Ollama /api/embed, OpenAI /v1/embeddings), never
//	SDKs. Model() feeds the corpus hash so a model change invalidates
//	any persisted vectors.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// =============================================================================
// Ollama Embedder
// =============================================================================

const defaultOllamaEmbedModel = "nomic-embed-text-v2-moe"

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder calls a local Ollama /api/embed endpoint.
//
// Thread Safety: OllamaEmbedder is safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaEmbedder creates an embedder for the given /api/embed URL.
//
// Inputs:
//   - url: Full endpoint URL (e.g. "http://localhost:11434/api/embed").
//   - model: Embedding model name. Empty selects the default.
func NewOllamaEmbedder(url, model string) *OllamaEmbedder {
	if model == "" {
		model = defaultOllamaEmbedModel
	}
	return &OllamaEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// Embed calls the Ollama /api/embed endpoint and returns the embedding vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var out ollamaEmbedResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return out.Embeddings[0], nil
}

// =============================================================================
// OpenAI Embedder
// =============================================================================

const defaultOpenAIEmbedURL = "https://api.openai.com/v1/embeddings"

const defaultOpenAIEmbedModel = "text-embedding-3-large"

type openaiEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
//
// Thread Safety: OpenAIEmbedder is safe for concurrent use.
type OpenAIEmbedder struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIEmbedder creates an embedder against api.openai.com.
//
// Inputs:
//   - apiKey: The OpenAI API key.
//   - model: Embedding model name. Empty selects text-embedding-3-large.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return NewOpenAIEmbedderWithURL(apiKey, model, defaultOpenAIEmbedURL)
}

// NewOpenAIEmbedderWithURL creates an embedder with an explicit endpoint URL.
// Useful for testing with mock servers.
func NewOpenAIEmbedderWithURL(apiKey, model, url string) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIEmbedModel
	}
	return &OpenAIEmbedder{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed calls the OpenAI embeddings endpoint and returns the vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openaiEmbedReq{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var out openaiEmbedResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embed API error: %s - %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return out.Data[0].Embedding, nil
}
