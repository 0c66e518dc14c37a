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
	"encoding/json"
	"testing"
)

func TestToolCallResponse_ArgumentsString_Object(t *testing.T) {
	tc := ToolCallResponse{
		ID:        "call-1",
		Name:      "get_schema",
		Arguments: json.RawMessage(`{"tables":["opere"]}`),
	}

	result := tc.ArgumentsString()
	if result != `{"tables":["opere"]}` {
		t.Errorf("ArgumentsString() = %q, want JSON object string", result)
	}
}

func TestToolCallResponse_ArgumentsString_String(t *testing.T) {
	// Some models return arguments as a JSON string
	tc := ToolCallResponse{
		ID:        "call-2",
		Name:      "search_materials",
		Arguments: json.RawMessage(`"{\"query\":\"gold leaf\"}"`),
	}

	result := tc.ArgumentsString()
	if result != `{"query":"gold leaf"}` {
		t.Errorf("ArgumentsString() = %q, want unquoted JSON string", result)
	}
}

func TestToolCallResponse_ArgumentsString_Empty(t *testing.T) {
	tc := ToolCallResponse{ID: "call-3", Name: "list_tables"}

	result := tc.ArgumentsString()
	if result != "{}" {
		t.Errorf("ArgumentsString() = %q, want %q", result, "{}")
	}
}

func TestToolCallResponse_ArgumentsMap(t *testing.T) {
	tc := ToolCallResponse{
		ID:        "call-4",
		Name:      "search_materials",
		Arguments: json.RawMessage(`{"query":"paiette","limit":5}`),
	}

	args, err := tc.ArgumentsMap()
	if err != nil {
		t.Fatalf("ArgumentsMap() error: %v", err)
	}
	if args["query"] != "paiette" {
		t.Errorf("args[query] = %v, want %q", args["query"], "paiette")
	}
	// JSON numbers decode as float64
	if args["limit"] != float64(5) {
		t.Errorf("args[limit] = %v (%T), want float64(5)", args["limit"], args["limit"])
	}
}

func TestToolCallResponse_ArgumentsMap_Empty(t *testing.T) {
	tc := ToolCallResponse{ID: "call-5", Name: "list_tables"}

	args, err := tc.ArgumentsMap()
	if err != nil {
		t.Fatalf("ArgumentsMap() error: %v", err)
	}
	if len(args) != 0 {
		t.Errorf("len(args) = %d, want 0", len(args))
	}
}

func TestToolCallResponse_ArgumentsMap_NotAnObject(t *testing.T) {
	tc := ToolCallResponse{
		ID:        "call-6",
		Name:      "list_tables",
		Arguments: json.RawMessage(`[1,2,3]`),
	}

	if _, err := tc.ArgumentsMap(); err == nil {
		t.Error("expected error for non-object arguments, got nil")
	}
}

func TestToolChoice_Constructors(t *testing.T) {
	if got := AutoToolChoice(); got.Mode != ToolChoiceAuto {
		t.Errorf("AutoToolChoice().Mode = %q, want %q", got.Mode, ToolChoiceAuto)
	}
	if got := NoToolChoice(); got.Mode != ToolChoiceNone {
		t.Errorf("NoToolChoice().Mode = %q, want %q", got.Mode, ToolChoiceNone)
	}
	forced := ForcedToolChoice("submit_final_answer")
	if forced.Mode != ToolChoiceForced || forced.Tool != "submit_final_answer" {
		t.Errorf("ForcedToolChoice() = %+v, want forced submit_final_answer", forced)
	}
}
