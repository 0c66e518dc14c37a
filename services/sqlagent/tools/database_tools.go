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
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/db"
)

// ListTablesTool exposes the public-schema table names.
type ListTablesTool struct {
	catalog db.Catalog
}

// NewListTablesTool creates the table listing tool over a catalog.
func NewListTablesTool(catalog db.Catalog) *ListTablesTool {
	return &ListTablesTool{catalog: catalog}
}

func (t *ListTablesTool) Name() string { return NameListTables }

func (t *ListTablesTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        NameListTables,
			Description: "List the names of all tables in the database.",
			Parameters: llm.ToolParameters{
				Type:       "object",
				Properties: map[string]llm.ToolParamDef{},
				Required:   []string{},
			},
		},
	}
}

func (t *ListTablesTool) Invoke(ctx context.Context, _ map[string]any) (string, error) {
	names, err := t.catalog.ListTables(ctx)
	if err != nil {
		return "", fmt.Errorf("tools: %w", err)
	}
	if len(names) == 0 {
		return "No tables found.", nil
	}
	return strings.Join(names, ", "), nil
}

// GetSchemaTool returns CREATE TABLE-style definitions for named tables.
type GetSchemaTool struct {
	catalog db.Catalog
}

// NewGetSchemaTool creates the schema lookup tool over a catalog.
func NewGetSchemaTool(catalog db.Catalog) *GetSchemaTool {
	return &GetSchemaTool{catalog: catalog}
}

func (t *GetSchemaTool) Name() string { return NameGetSchema }

func (t *GetSchemaTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        NameGetSchema,
			Description: "Get the schema of the given tables as CREATE TABLE statements.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"table_names": {
						Type:        "array",
						Description: "Names of the tables to describe.",
						Items:       &llm.ToolParamDef{Type: "string"},
					},
				},
				Required: []string{"table_names"},
			},
		},
	}
}

func (t *GetSchemaTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := validateArgs(t.Definition(), args); err != nil {
		return "", fmt.Errorf("tools: %w", err)
	}
	names, err := stringSlice(args["table_names"])
	if err != nil {
		return "", fmt.Errorf("tools: table_names: %w", err)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("tools: table_names must not be empty")
	}

	schemas, err := t.catalog.DescribeTables(ctx, names)
	if err != nil {
		return "", fmt.Errorf("tools: %w", err)
	}
	return db.RenderSchemas(schemas), nil
}
