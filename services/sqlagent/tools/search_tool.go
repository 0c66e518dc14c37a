// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSQL/services/llm"
)

// searchResultCount is how many canonical terms a search returns.
const searchResultCount = 5

// TermSearcher is the index operation the search tool depends on,
// satisfied by *index.TermIndex.
type TermSearcher interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// SearchMaterialsTool resolves free-text material and technique mentions to
// canonical database terms via the term index.
type SearchMaterialsTool struct {
	index TermSearcher
}

// NewSearchMaterialsTool creates the search tool over a built term index.
func NewSearchMaterialsTool(idx TermSearcher) *SearchMaterialsTool {
	return &SearchMaterialsTool{index: idx}
}

func (t *SearchMaterialsTool) Name() string { return NameSearchMaterials }

func (t *SearchMaterialsTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name: NameSearchMaterials,
			Description: "Look up the canonical spelling of material or technique names. " +
				"Use this before filtering on a material or technique value.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"query": {
						Type:        "string",
						Description: "Approximate material or technique name to resolve.",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

func (t *SearchMaterialsTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := validateArgs(t.Definition(), args); err != nil {
		return "", fmt.Errorf("tools: %w", err)
	}
	query := args["query"].(string)

	terms, err := t.index.Query(ctx, query, searchResultCount)
	if err != nil {
		return "", fmt.Errorf("tools: %w", err)
	}
	if len(terms) == 0 {
		return "No matching terms found.", nil
	}
	return strings.Join(terms, "\n"), nil
}

// SubmitFinalAnswerDef is the terminal tool schema. The terminal tool is
// never executed: calling it ends the run, and its final_answer argument
// becomes the result.
func SubmitFinalAnswerDef() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        NameSubmitFinal,
			Description: "Submit the final answer to the user's question.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					FinalAnswerField: {
						Type:        "string",
						Description: "The final answer to return to the user.",
					},
				},
				Required: []string{FinalAnswerField},
			},
		},
	}
}
