// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// =============================================================================
// Anthropic Wire Types
// =============================================================================

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"

const defaultAnthropicModel = "claude-sonnet-4-20250514"

const anthropicVersion = "2023-06-01"

// anthropicMaxTokens is the default response budget when the caller does not
// set one. The Anthropic API requires max_tokens on every request.
const anthropicMaxTokens = 4096

type systemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicToolMessage is a message with structured content blocks.
// Content must be an array of blocks (text, tool_use, tool_result)
// rather than a plain string when tool metadata is present.
type anthropicToolMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

// anthropicToolRequest is the request payload for ChatWithTools.
type anthropicToolRequest struct {
	Model      string        `json:"model"`
	Messages   []interface{} `json:"messages"`
	System     []systemBlock `json:"system,omitempty"`
	MaxTokens  int           `json:"max_tokens"`
	Tools      []interface{} `json:"tools,omitempty"`
	ToolChoice any           `json:"tool_choice,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

// anthropicToolUseBlock is a tool_use content block in the request (assistant message).
type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// anthropicToolResultBlock is a tool_result content block in the request (user message).
type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// anthropicTextBlock is a text content block.
type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicToolDef is a tool definition for the Anthropic API.
type anthropicToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

// anthropicToolChoice is the tool_choice wire form.
// Type is "auto", "none", or "tool"; Name is set only for "tool".
type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicToolResponse is used for parsing the response envelope.
type anthropicToolResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	Error      *anthropicError   `json:"error,omitempty"`
	StopReason string            `json:"stop_reason,omitempty"`
}

// anthropicContentBlock is used for parsing individual content blocks.
type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// AnthropicClient implements Client for Claude models using raw net/http.
//
// Thread Safety: AnthropicClient is safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewAnthropicClient creates an AnthropicClient with the given key and model.
//
// Inputs:
//   - apiKey: The Anthropic API key.
//   - model: The model name. Empty selects the default Claude Sonnet model.
//
// Outputs:
//   - *AnthropicClient: The configured client.
//   - error: Non-nil if the API key is missing.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key is missing")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return NewAnthropicClientWithConfig(apiKey, model, defaultAnthropicBaseURL), nil
}

// NewAnthropicClientWithConfig creates an AnthropicClient with explicit configuration.
//
// Description:
//
//	Creates an AnthropicClient without defaults. Useful for testing with
//	mock servers.
//
// Inputs:
//   - apiKey: The Anthropic API key.
//   - model: The model name (e.g., "claude-sonnet-4-20250514").
//   - baseURL: The base URL for API requests.
//
// Outputs:
//   - *AnthropicClient: The configured client.
func NewAnthropicClientWithConfig(apiKey, model, baseURL string) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Provider returns "anthropic".
func (a *AnthropicClient) Provider() string { return "anthropic" }

// ChatWithTools sends a chat request with tool definitions and returns tool calls.
//
// Description:
//
//	Converts generic ChatMessage history to Anthropic content blocks:
//	system messages become top-level system blocks, assistant tool calls
//	become tool_use blocks, and tool results become user messages carrying
//	tool_result blocks. The tool-choice policy maps to Anthropic's
//	{"type":"auto"|"none"|"tool"} forms.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history with tool metadata.
//   - params: Generation parameters.
//   - tools: Tool definitions for function calling.
//   - choice: Tool-choice policy.
//
// Outputs:
//   - *ChatWithToolsResult: Content and/or tool calls.
//   - error: Wraps ErrCompletionUnavailable on failure.
//
// Thread Safety: This method is safe for concurrent use.
func (a *AnthropicClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef, choice ToolChoice) (*ChatWithToolsResult, error) {

	model := a.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("ChatWithTools via Anthropic",
		slog.String("model", model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
		slog.String("tool_choice", string(choice.Mode)),
	)

	var system []systemBlock
	wireMessages := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == "system":
			system = append(system, systemBlock{Type: "text", Text: msg.Content})

		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := make([]interface{}, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropicTextBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropicToolUseBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			wireMessages = append(wireMessages, anthropicToolMessage{Role: "assistant", Content: blocks})

		case msg.Role == "tool":
			// Tool results travel as user messages with a tool_result block.
			wireMessages = append(wireMessages, anthropicToolMessage{
				Role: "user",
				Content: []interface{}{anthropicToolResultBlock{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		default:
			wireMessages = append(wireMessages, anthropicToolMessage{
				Role:    msg.Role,
				Content: []interface{}{anthropicTextBlock{Type: "text", Text: msg.Content}},
			})
		}
	}

	wireTools := make([]interface{}, 0, len(tools))
	for _, td := range tools {
		wireTools = append(wireTools, anthropicToolDef{
			Name:        td.Function.Name,
			Description: td.Function.Description,
			InputSchema: td.Function.Parameters,
		})
	}

	maxTokens := anthropicMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	reqPayload := anthropicToolRequest{
		Model:     model,
		Messages:  wireMessages,
		System:    system,
		MaxTokens: maxTokens,
		Tools:     wireTools,
	}
	switch choice.Mode {
	case ToolChoiceAuto:
		reqPayload.ToolChoice = anthropicToolChoice{Type: "auto"}
	case ToolChoiceNone:
		reqPayload.ToolChoice = anthropicToolChoice{Type: "none"}
	case ToolChoiceForced:
		reqPayload.ToolChoice = anthropicToolChoice{Type: "tool", Name: choice.Tool}
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if len(params.Stop) > 0 {
		reqPayload.StopSeqs = params.Stop
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, completionErr("anthropic", fmt.Errorf("marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, completionErr("anthropic", fmt.Errorf("creating HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		observeCompletion("anthropic", "error", time.Since(start))
		return nil, completionErr("anthropic", fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		observeCompletion("anthropic", "error", time.Since(start))
		return nil, completionErr("anthropic", fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		observeCompletion("anthropic", "error", time.Since(start))
		return nil, completionErr("anthropic",
			fmt.Errorf("API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes))))
	}

	var apiResp anthropicToolResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		observeCompletion("anthropic", "error", time.Since(start))
		return nil, completionErr("anthropic", fmt.Errorf("parsing response JSON: %w", err))
	}

	if apiResp.Error != nil {
		observeCompletion("anthropic", "error", time.Since(start))
		return nil, completionErr("anthropic",
			fmt.Errorf("API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message)))
	}

	observeCompletion("anthropic", "success", time.Since(start))

	result := &ChatWithToolsResult{StopReason: "end"}
	for _, raw := range apiResp.Content {
		var block anthropicContentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, completionErr("anthropic", fmt.Errorf("parsing content block: %w", err))
		}
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	}

	slog.Debug("Received Anthropic tool response",
		slog.String("stop_reason", apiResp.StopReason),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("content_len", len(result.Content)),
	)

	return result, nil
}
