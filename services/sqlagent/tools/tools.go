// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the tool surface the agent exposes to the model:
// the executable tools (table listing, schema lookup, material search), the
// terminal answer tool, and the executors that run tool requests and turn
// failures into recoverable error results.
package tools

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianSQL/services/llm"
)

// Tool names as the model sees them.
const (
	NameListTables      = "list_tables"
	NameGetSchema       = "get_schema"
	NameSearchMaterials = "search_materials"
	NameSubmitFinal     = "submit_final_answer"
)

// FinalAnswerField is the required argument of the terminal tool.
const FinalAnswerField = "final_answer"

// Tool is one executable capability exposed to the model.
type Tool interface {
	// Name returns the tool name as published in its definition.
	Name() string

	// Definition returns the schema sent to the model.
	Definition() llm.ToolDef

	// Invoke runs the tool against validated arguments and returns the
	// result text for the tool result entry.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools available to a pipeline run, keyed by name.
//
// Thread Safety: Registry is immutable after construction and safe for
// concurrent reads.
type Registry struct {
	byName []Tool
}

// NewRegistry builds a registry from the given tools. Duplicate names are
// a programming error and panic.
func NewRegistry(ts ...Tool) *Registry {
	seen := make(map[string]bool, len(ts))
	for _, t := range ts {
		if seen[t.Name()] {
			panic(fmt.Sprintf("tools: duplicate tool %q", t.Name()))
		}
		seen[t.Name()] = true
	}
	return &Registry{byName: ts}
}

// Lookup returns the named tool, or false when unknown.
func (r *Registry) Lookup(name string) (Tool, bool) {
	for _, t := range r.byName {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Definitions returns the tool schemas in registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.byName))
	for _, t := range r.byName {
		defs = append(defs, t.Definition())
	}
	return defs
}

// validateArgs checks the arguments against the tool's published schema:
// required fields present, declared types respected, no undeclared fields.
func validateArgs(def llm.ToolDef, args map[string]any) error {
	for name := range args {
		if _, ok := def.Function.Parameters.Properties[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}
	for _, req := range def.Function.Parameters.Required {
		raw, ok := args[req]
		if !ok {
			return fmt.Errorf("missing required argument %q", req)
		}
		prop, ok := def.Function.Parameters.Properties[req]
		if !ok {
			continue
		}
		switch prop.Type {
		case "string":
			if _, ok := raw.(string); !ok {
				return fmt.Errorf("argument %q must be a string", req)
			}
		case "array":
			if _, ok := raw.([]any); !ok {
				return fmt.Errorf("argument %q must be an array", req)
			}
		}
	}
	return nil
}

// stringSlice extracts a []string from a decoded JSON array argument.
func stringSlice(raw any) ([]string, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings")
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
