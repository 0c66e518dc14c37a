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
// OpenAI Wire Types
// =============================================================================

const defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

const defaultOpenAIModel = "gpt-4o-mini"

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float32        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Tools               []openaiTool    `json:"tools,omitempty"`
	ToolChoice          any             `json:"tool_choice,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Tool-related wire types for OpenAI function calling.
type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// openaiForcedChoice is the tool_choice wire form that forces one function.
type openaiForcedChoice struct {
	Type     string              `json:"type"`
	Function openaiForcedChoiceF `json:"function"`
}

type openaiForcedChoiceF struct {
	Name string `json:"name"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAIClient implements Client for OpenAI models using raw net/http.
//
// Description:
//
//	Uses the OpenAI Chat Completions REST API directly without third-party
//	SDKs. Supports multi-turn conversations, function calling, and forced
//	tool choice.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIClient creates an OpenAIClient with the given key and model.
//
// Inputs:
//   - apiKey: The OpenAI API key.
//   - model: The model name. Empty selects gpt-4o-mini.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil if the API key is missing.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is missing")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return NewOpenAIClientWithConfig(apiKey, model, defaultOpenAIBaseURL), nil
}

// NewOpenAIClientWithConfig creates an OpenAIClient with explicit configuration.
//
// Description:
//
//	Creates an OpenAIClient without defaults. Useful for testing with mock
//	servers or when configuration comes from a non-standard source.
//
// Inputs:
//   - apiKey: The OpenAI API key.
//   - model: The model name (e.g., "gpt-4o").
//   - baseURL: The base URL for API requests.
//
// Outputs:
//   - *OpenAIClient: The configured client.
func NewOpenAIClientWithConfig(apiKey, model, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Provider returns "openai".
func (o *OpenAIClient) Provider() string { return "openai" }

// ChatWithTools sends a chat request with tool definitions and returns tool calls.
//
// Description:
//
//	Converts generic ToolDef and ChatMessage types to OpenAI wire format,
//	applies the tool-choice policy, sends the request, and parses tool_calls
//	from the response. One external call per invocation; a timeout surfaces
//	as an ordinary completion failure, not a distinct cancellation state.
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
func (o *OpenAIClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef, choice ToolChoice) (*ChatWithToolsResult, error) {

	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("ChatWithTools via OpenAI",
		slog.String("model", model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
		slog.String("tool_choice", string(choice.Mode)),
	)

	// Convert ChatMessage to OpenAI format
	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openaiMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		// Handle tool result messages
		if msg.Role == "tool" && msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		// Handle assistant messages with tool calls
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiCallFunction{
						Name:      tc.Name,
						Arguments: tc.ArgumentsString(),
					},
				})
			}
		}

		oaiMessages = append(oaiMessages, oaiMsg)
	}

	// Convert ToolDef to OpenAI format
	oaiTools := make([]openaiTool, 0, len(tools))
	for _, td := range tools {
		oaiTools = append(oaiTools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        td.Function.Name,
				Description: td.Function.Description,
				Parameters:  td.Function.Parameters,
			},
		})
	}

	reqPayload := openaiRequest{
		Model:    model,
		Messages: oaiMessages,
		Tools:    oaiTools,
	}
	switch choice.Mode {
	case ToolChoiceAuto:
		reqPayload.ToolChoice = "auto"
	case ToolChoiceNone:
		reqPayload.ToolChoice = "none"
	case ToolChoiceForced:
		reqPayload.ToolChoice = openaiForcedChoice{
			Type:     "function",
			Function: openaiForcedChoiceF{Name: choice.Tool},
		}
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		reqPayload.MaxCompletionTokens = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		reqPayload.Stop = params.Stop
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, completionErr("openai", fmt.Errorf("marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, completionErr("openai", fmt.Errorf("creating HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai", fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai", fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai",
			fmt.Errorf("API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes))))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai", fmt.Errorf("parsing response JSON: %w", err))
	}

	if apiResp.Error != nil {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai",
			fmt.Errorf("API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message)))
	}

	if len(apiResp.Choices) == 0 {
		observeCompletion("openai", "error", time.Since(start))
		return nil, completionErr("openai", fmt.Errorf("returned no choices"))
	}

	observeCompletion("openai", "success", time.Since(start))

	msg := apiResp.Choices[0].Message
	result := &ChatWithToolsResult{
		Content:    msg.Content,
		StopReason: "end",
	}

	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	}

	slog.Debug("Received OpenAI tool response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("content_len", len(result.Content)),
	)

	return result, nil
}
