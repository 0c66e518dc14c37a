// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package db

import (
	"strings"
	"testing"
)

func TestRenderSchemas(t *testing.T) {
	schemas := []TableSchema{
		{
			Name: "materials",
			Columns: []Column{
				{Name: "id", DataType: "integer", Nullable: false},
				{Name: "name", DataType: "character varying", Nullable: true},
			},
		},
		{
			Name: "techniques",
			Columns: []Column{
				{Name: "id", DataType: "integer", Nullable: false},
			},
		},
	}

	got := RenderSchemas(schemas)

	wantFragments := []string{
		"CREATE TABLE materials (",
		"    id integer NOT NULL,",
		"    name character varying\n",
		"CREATE TABLE techniques (",
	}
	for _, frag := range wantFragments {
		if !strings.Contains(got, frag) {
			t.Errorf("rendered schema missing %q:\n%s", frag, got)
		}
	}
	if !strings.Contains(got, ")\n\nCREATE TABLE") {
		t.Errorf("tables should be separated by a blank line:\n%s", got)
	}
}

func TestRenderSchemasEmpty(t *testing.T) {
	if got := RenderSchemas(nil); got != "" {
		t.Errorf("expected empty render, got %q", got)
	}
}

func TestValidIdentifier(t *testing.T) {
	valid := []string{"materials", "nome", "column_2", "_private", "A"}
	for _, s := range valid {
		if !validIdentifier(s) {
			t.Errorf("expected %q to be a valid identifier", s)
		}
	}

	invalid := []string{"", "2cols", "name; DROP TABLE x", `quo"ted`, "with space", strings.Repeat("a", 64)}
	for _, s := range invalid {
		if validIdentifier(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := quoteIdentifier("materials"); got != `"materials"` {
		t.Errorf("expected quoted identifier, got %q", got)
	}
}
