// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides provider-agnostic clients for LLM chat completion
// with function calling. The pipeline depends only on the Client interface;
// concrete backends (OpenAI, Anthropic) are adapters over raw net/http.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrCompletionUnavailable is the single failure kind surfaced by the
// completion boundary. The wrapped cause carries provider detail.
//
// Description:
//
//	A failed completion call is fatal to a pipeline run: there is no model
//	turn left to correct anything. Callers test with errors.Is and abort.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// Client is the completion gateway every pipeline stage talks to.
//
// Description:
//
//	One synchronous call per invocation: no retries, no caching, no state
//	beyond the network call. The returned result's tool calls reference only
//	tool names present in the request's tool definitions; a backend that
//	violates this is repaired downstream by the pipeline's validation gate,
//	not here.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Client interface {
	// ChatWithTools sends the accumulated history plus tool definitions and
	// a tool-choice policy, returning the assistant's turn.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation history with tool metadata.
	//   - params: Generation parameters.
	//   - tools: Tool definitions the model may call.
	//   - choice: Tool-choice policy (auto, none, forced).
	//
	// Outputs:
	//   - *ChatWithToolsResult: Content and/or tool calls.
	//   - error: Wraps ErrCompletionUnavailable on any failure.
	ChatWithTools(ctx context.Context, messages []ChatMessage, params GenerationParams,
		tools []ToolDef, choice ToolChoice) (*ChatWithToolsResult, error)

	// Provider returns the backend name ("openai", "anthropic") for logging
	// and metrics labels.
	Provider() string
}

// GenerationParams holds provider-agnostic generation parameters.
//
// Description:
//
//	Pointer fields are omitted from the wire request when nil so the
//	provider default applies.
type GenerationParams struct {
	// Temperature controls randomness. Zero makes generation deterministic.
	Temperature *float32

	// MaxTokens limits the response length.
	MaxTokens *int

	// Stop lists stop sequences.
	Stop []string

	// ModelOverride selects a model for this request only.
	ModelOverride string
}

// NewClient builds a Client for the named provider.
//
// Inputs:
//   - provider: "openai" or "anthropic".
//   - apiKey: The provider API key.
//   - model: The model name. Empty selects the provider default.
//
// Outputs:
//   - Client: The configured client.
//   - error: Non-nil for an unknown provider or missing key.
func NewClient(provider, apiKey, model string) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(apiKey, model)
	case "anthropic":
		return NewAnthropicClient(apiKey, model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

// completionErr wraps a provider failure in the single "completion
// unavailable" failure kind while keeping the cause chain intact.
func completionErr(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrCompletionUnavailable, err)
}
