// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state holds the append-only interaction log threaded through the
// SQL agent pipeline. The log is the complete audit trail of one run:
// entries are never removed or reordered, only appended.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianSQL/services/llm"
)

// EntryKind discriminates the closed set of entry variants.
type EntryKind string

const (
	// EntryKindUser marks the free-text question that starts a run.
	EntryKindUser EntryKind = "user"

	// EntryKindAssistant marks a model (or synthesized) turn.
	EntryKindAssistant EntryKind = "assistant"

	// EntryKindToolResult marks the answer to one ToolRequest.
	EntryKindToolResult EntryKind = "tool_result"
)

// Entry is one immutable unit in the interaction log.
//
// Description:
//
//	A closed sum type: the only implementations are *UserEntry,
//	*AssistantEntry, and *ToolResultEntry (enforced by the unexported
//	method). Pipeline stages switch exhaustively on Kind().
type Entry interface {
	Kind() EntryKind
	isEntry()
}

// ToolRequest is a structured instruction from an assistant turn naming an
// external capability to invoke.
//
// Description:
//
//	ID is unique within its AssistantEntry. Arguments hold the JSON value
//	union (string, float64, bool, []any of same) as produced by decoding
//	the model's raw arguments. Every ToolRequest must be answered by
//	exactly one ToolResultEntry carrying the same ID before the pipeline
//	proceeds past the stage that issued it.
type ToolRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// UserEntry is the free-text question from the caller. Origin of the log.
type UserEntry struct {
	Text string `json:"text"`
}

func (*UserEntry) Kind() EntryKind { return EntryKindUser }
func (*UserEntry) isEntry()        {}

// MarshalJSON tags the entry with its kind so serialized logs keep the
// variant discriminator (a text-only assistant turn would otherwise be
// indistinguishable from a user entry).
func (e *UserEntry) MarshalJSON() ([]byte, error) {
	type alias UserEntry
	return json.Marshal(struct {
		Kind EntryKind `json:"kind"`
		*alias
	}{Kind: EntryKindUser, alias: (*alias)(e)})
}

// AssistantEntry is a model turn: free text, tool requests, or both.
type AssistantEntry struct {
	Text         string        `json:"text,omitempty"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
}

func (*AssistantEntry) Kind() EntryKind { return EntryKindAssistant }
func (*AssistantEntry) isEntry()        {}

func (e *AssistantEntry) MarshalJSON() ([]byte, error) {
	type alias AssistantEntry
	return json.Marshal(struct {
		Kind EntryKind `json:"kind"`
		*alias
	}{Kind: EntryKindAssistant, alias: (*alias)(e)})
}

// ToolResultEntry answers exactly one ToolRequest, by id.
type ToolResultEntry struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content"`

	// IsError marks error payloads. The Content of an error result always
	// begins with "Error: " so the model can recognize and correct it.
	IsError bool `json:"is_error,omitempty"`
}

func (*ToolResultEntry) Kind() EntryKind { return EntryKindToolResult }
func (*ToolResultEntry) isEntry()        {}

func (e *ToolResultEntry) MarshalJSON() ([]byte, error) {
	type alias ToolResultEntry
	return json.Marshal(struct {
		Kind EntryKind `json:"kind"`
		*alias
	}{Kind: EntryKindToolResult, alias: (*alias)(e)})
}

// NewErrorResult builds the error-valued ToolResultEntry for a failed request.
//
// Description:
//
//	The payload format is fixed: "Error: <cause>. please fix your mistakes."
//	The next model turn sees this text verbatim and may adapt.
func NewErrorResult(requestID string, cause error) *ToolResultEntry {
	return &ToolResultEntry{
		RequestID: requestID,
		Content:   fmt.Sprintf("Error: %v. please fix your mistakes.", cause),
		IsError:   true,
	}
}

// Log is the shared State of one pipeline run.
//
// Description:
//
//	Ordered, append-only sequence of Entries. Owned exclusively by the
//	pipeline driver for the lifetime of one run; never shared across
//	concurrent runs, so no locking.
//
// Thread Safety: NOT safe for concurrent use. One run, one goroutine.
type Log struct {
	entries []Entry
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds entries to the end of the log. Entries are never removed
// or reordered afterwards.
func (l *Log) Append(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entry sequence. The entries themselves are
// shared; callers must treat them as immutable.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// LastAssistant returns the most recent AssistantEntry, or nil if none exists.
func (l *Log) LastAssistant() *AssistantEntry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if a, ok := l.entries[i].(*AssistantEntry); ok {
			return a
		}
	}
	return nil
}

// PendingRequests returns the ToolRequests of the latest AssistantEntry that
// have no matching ToolResultEntry after it.
//
// Description:
//
//	This is the work list for a tool-execution stage: the stage must
//	produce exactly one ToolResultEntry per returned request before the
//	pipeline may proceed.
func (l *Log) PendingRequests() []ToolRequest {
	lastIdx := -1
	var last *AssistantEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if a, ok := l.entries[i].(*AssistantEntry); ok {
			last, lastIdx = a, i
			break
		}
	}
	if last == nil {
		return nil
	}

	answered := make(map[string]bool)
	for _, e := range l.entries[lastIdx+1:] {
		if r, ok := e.(*ToolResultEntry); ok {
			answered[r.RequestID] = true
		}
	}

	var pending []ToolRequest
	for _, req := range last.ToolRequests {
		if !answered[req.ID] {
			pending = append(pending, req)
		}
	}
	return pending
}

// Messages converts the log to completion-gateway history, optionally
// prepending a system prompt.
//
// Description:
//
//	UserEntry maps to role "user", AssistantEntry to role "assistant" with
//	tool calls re-marshaled to raw JSON, ToolResultEntry to role "tool"
//	with its request id. Stage-specific system prompts are prepended here
//	rather than stored, so the log stays a pure record of the interaction.
func (l *Log) Messages(systemPrompt string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(l.entries)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llm.ChatMessage{Role: "system", Content: systemPrompt})
	}

	for _, e := range l.entries {
		switch v := e.(type) {
		case *UserEntry:
			msgs = append(msgs, llm.ChatMessage{Role: "user", Content: v.Text})

		case *AssistantEntry:
			msg := llm.ChatMessage{Role: "assistant", Content: v.Text}
			for _, req := range v.ToolRequests {
				args := req.Arguments
				if args == nil {
					args = map[string]any{}
				}
				raw, err := json.Marshal(args)
				if err != nil {
					// Arguments came from JSON decoding; re-encoding cannot
					// fail for the value union, but never drop the call.
					raw = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCallResponse{
					ID:        req.ID,
					Name:      req.Name,
					Arguments: raw,
				})
			}
			msgs = append(msgs, msg)

		case *ToolResultEntry:
			msgs = append(msgs, llm.ChatMessage{
				Role:       "tool",
				ToolCallID: v.RequestID,
				Content:    v.Content,
			})
		}
	}
	return msgs
}
