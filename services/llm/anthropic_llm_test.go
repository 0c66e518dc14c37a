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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClient_ChatWithTools_ToolUseResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want %q", got, "test-key")
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q, want %q", got, anthropicVersion)
		}

		var req anthropicToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.System) != 1 {
			t.Errorf("len(System) = %d, want 1 (system message hoisted out of history)", len(req.System))
		}
		if len(req.Tools) != 1 {
			t.Errorf("len(Tools) = %d, want 1", len(req.Tools))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Looking up schemas."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_schema",
				 "input": {"tables": ["opere"]}}
			]
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-sonnet-4-20250514", server.URL)

	messages := []ChatMessage{
		{Role: "system", Content: "You are a SQL agent."},
		{Role: "user", Content: "Which works use gold leaf?"},
	}

	result, err := client.ChatWithTools(context.Background(), messages, GenerationParams{},
		sqlTools(), AutoToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Content != "Looking up schemas." {
		t.Errorf("Content = %q, want %q", result.Content, "Looking up schemas.")
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(result.ToolCalls))
	}
	if result.ToolCalls[0].ID != "toolu_1" {
		t.Errorf("ToolCalls[0].ID = %q, want %q", result.ToolCalls[0].ID, "toolu_1")
	}
	if result.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "tool_use")
	}
}

func TestAnthropicClient_ChatWithTools_ForcedChoiceWireFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		var tc anthropicToolChoice
		if err := json.Unmarshal(raw["tool_choice"], &tc); err != nil {
			t.Fatalf("tool_choice missing or malformed: %v", err)
		}
		if tc.Type != "tool" || tc.Name != "submit_final_answer" {
			t.Errorf("tool_choice = %+v, want {tool submit_final_answer}", tc)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_2", "type": "message", "role": "assistant",
			"stop_reason": "tool_use",
			"content": [{"type": "tool_use", "id": "toolu_2",
				"name": "submit_final_answer",
				"input": {"final_answer": "SELECT nome FROM materiali"}}]
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-sonnet-4-20250514", server.URL)

	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{},
		sqlTools(), ForcedToolChoice("submit_final_answer"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "submit_final_answer" {
		t.Fatalf("ToolCalls = %+v, want single submit_final_answer call", result.ToolCalls)
	}

	args, err := result.ToolCalls[0].ArgumentsMap()
	if err != nil {
		t.Fatalf("ArgumentsMap() error: %v", err)
	}
	if args["final_answer"] != "SELECT nome FROM materiali" {
		t.Errorf("final_answer = %v, want the SQL string", args["final_answer"])
	}
}

func TestAnthropicClient_ChatWithTools_ToolResultMessageFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(raw.Messages) != 3 {
			t.Fatalf("len(messages) = %d, want 3", len(raw.Messages))
		}

		// The tool result must be a user message carrying a tool_result block.
		var last struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string `json:"type"`
				ToolUseID string `json:"tool_use_id"`
				Content   string `json:"content"`
			} `json:"content"`
		}
		if err := json.Unmarshal(raw.Messages[2], &last); err != nil {
			t.Fatalf("failed to decode last message: %v", err)
		}
		if last.Role != "user" {
			t.Errorf("last message role = %q, want %q", last.Role, "user")
		}
		if len(last.Content) != 1 || last.Content[0].Type != "tool_result" {
			t.Fatalf("last message content = %+v, want one tool_result block", last.Content)
		}
		if last.Content[0].ToolUseID != "toolu_5" {
			t.Errorf("tool_use_id = %q, want %q", last.Content[0].ToolUseID, "toolu_5")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_3","type":"message","role":"assistant",
			"stop_reason":"end_turn","content":[{"type":"text","text":"done"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-sonnet-4-20250514", server.URL)

	messages := []ChatMessage{
		{Role: "user", Content: "What tables exist?"},
		{Role: "assistant", ToolCalls: []ToolCallResponse{
			{ID: "toolu_5", Name: "list_tables", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: "tool", ToolCallID: "toolu_5", Content: "opere, materiali, tecniche"},
	}

	result, err := client.ChatWithTools(context.Background(), messages, GenerationParams{},
		sqlTools(), AutoToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "done" {
		t.Errorf("Content = %q, want %q", result.Content, "done")
	}
}
