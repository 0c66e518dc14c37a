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

import "encoding/json"

// ToolDef is the generic tool definition used as input to ChatWithTools
// for all providers. Follows the OpenAI function calling schema.
//
// Description:
//
//	Provides a provider-agnostic way to define tools. Each provider's
//	ChatWithTools method converts ToolDef into its wire format
//	(Anthropic input_schema, OpenAI function).
//
// Thread Safety: ToolDef is immutable and safe for concurrent read access.
type ToolDef struct {
	// Type is the tool type. Always "function" for function calling.
	Type string `json:"type"`

	// Function contains the function definition.
	Function ToolFunction `json:"function"`
}

// ToolFunction contains the function name, description, and parameter schema.
type ToolFunction struct {
	// Name is the function name the model will call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description"`

	// Parameters defines the JSON Schema for function parameters.
	Parameters ToolParameters `json:"parameters"`
}

// ToolParameters defines the JSON Schema for tool parameters.
type ToolParameters struct {
	// Type is the JSON Schema type. Always "object" for tool parameters.
	Type string `json:"type"`

	// Properties maps parameter names to their definitions.
	Properties map[string]ToolParamDef `json:"properties,omitempty"`

	// Required lists parameter names that must be provided.
	Required []string `json:"required,omitempty"`
}

// ToolParamDef defines a single parameter in JSON Schema format.
type ToolParamDef struct {
	// Type is the JSON Schema type (string, integer, boolean, number, array).
	Type string `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description,omitempty"`

	// Items describes the element type for array parameters.
	Items *ToolParamDef `json:"items,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`
}

// ToolChoiceMode controls which tools, if any, the model may invoke.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide between free text and any of the
	// listed tools (zero, one, or several calls).
	ToolChoiceAuto ToolChoiceMode = "auto"

	// ToolChoiceNone restricts the model to free text only.
	ToolChoiceNone ToolChoiceMode = "none"

	// ToolChoiceForced restricts output to a call of one named tool.
	ToolChoiceForced ToolChoiceMode = "forced"
)

// ToolChoice is the provider-agnostic tool-choice policy for one request.
//
// Description:
//
//	Providers translate this into their wire form: OpenAI "tool_choice"
//	("auto" | "none" | {"type":"function","function":{"name":...}}),
//	Anthropic "tool_choice" ({"type":"auto"} | {"type":"tool","name":...}).
//
// Thread Safety: ToolChoice is immutable and safe for concurrent read access.
type ToolChoice struct {
	Mode ToolChoiceMode

	// Tool is the forced tool name. Only meaningful when Mode is ToolChoiceForced.
	Tool string
}

// AutoToolChoice returns the policy that lets the model choose freely.
func AutoToolChoice() ToolChoice { return ToolChoice{Mode: ToolChoiceAuto} }

// NoToolChoice returns the policy that forbids tool calls.
func NoToolChoice() ToolChoice { return ToolChoice{Mode: ToolChoiceNone} }

// ForcedToolChoice returns the policy that forces a call of the named tool.
func ForcedToolChoice(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceForced, Tool: name}
}

// ChatMessage is a richer message type that carries tool call metadata.
//
// Description:
//
//	Regular messages use Role + Content. Tool results include ToolCallID.
//	Assistant messages with tool calls include ToolCalls. This is the
//	history format every provider client accepts; each client converts
//	it to its own wire format.
//
// Thread Safety: ChatMessage is safe for concurrent read access.
type ChatMessage struct {
	// Role is the message role: "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool invocations (for assistant messages).
	ToolCalls []ToolCallResponse `json:"tool_calls,omitempty"`

	// ToolCallID links this message back to a specific tool call (for tool result messages).
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCallResponse represents a tool call from any LLM provider.
//
// Description:
//
//	Provider-agnostic representation of a tool call. Each provider's
//	ChatWithTools method populates this from its native response format:
//	- OpenAI: tool_calls array
//	- Anthropic: tool_use content blocks
//
// Thread Safety: ToolCallResponse is safe for concurrent read access.
type ToolCallResponse struct {
	// ID is the unique identifier for this tool call.
	ID string `json:"id"`

	// Name is the function name to call.
	Name string `json:"name"`

	// Arguments is the raw JSON arguments for the function.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsString returns the arguments as a JSON string.
//
// Description:
//
//	If arguments is already a JSON string value (starts with quote),
//	it returns the unquoted string. If arguments is an object or other
//	JSON value, it returns the raw JSON as-is. Returns "{}" for nil/empty.
//
// Outputs:
//   - string: The arguments as a JSON string suitable for tool execution.
//
// Thread Safety: This method is safe for concurrent use.
func (t *ToolCallResponse) ArgumentsString() string {
	if len(t.Arguments) == 0 {
		return "{}"
	}

	// Check if it's a JSON string (starts with quote)
	if t.Arguments[0] == '"' {
		var s string
		if err := json.Unmarshal(t.Arguments, &s); err == nil {
			return s
		}
	}

	// It's an object or other JSON value, return as-is
	return string(t.Arguments)
}

// ArgumentsMap decodes the arguments into a map.
//
// Description:
//
//	Tool executors need structured access to arguments, not raw JSON.
//	Values land as the JSON value union: string, float64, bool, or
//	[]any of same. Nil or empty arguments yield an empty map.
//
// Outputs:
//   - map[string]any: Decoded arguments. Never nil on success.
//   - error: Non-nil if the raw JSON is not an object.
//
// Thread Safety: This method is safe for concurrent use.
func (t *ToolCallResponse) ArgumentsMap() (map[string]any, error) {
	if len(t.Arguments) == 0 {
		return map[string]any{}, nil
	}

	raw := json.RawMessage(t.ArgumentsString())
	args := make(map[string]any)
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ChatWithToolsResult is the provider-agnostic result from ChatWithTools.
//
// Description:
//
//	Contains the LLM response including any tool calls. All provider
//	clients return this from their ChatWithTools method.
//
// Thread Safety: ChatWithToolsResult is safe for concurrent read access.
type ChatWithToolsResult struct {
	// Content is the text response (may be empty if only tool calls).
	Content string

	// ToolCalls contains tool calls from the model.
	ToolCalls []ToolCallResponse

	// StopReason indicates why generation stopped.
	// Values: "end" (normal completion) or "tool_use" (tool calls present).
	StopReason string
}
