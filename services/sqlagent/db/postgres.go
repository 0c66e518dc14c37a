// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package db adapts a Postgres database to the catalog operations the agent
// tools consume: table listing, schema introspection, and reference-column
// reads for the term index. The agent never mutates the database; every
// session runs read-only.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Column is one column definition from information_schema.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// TableSchema is the column set of one table.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Catalog is the read-only database boundary the tools depend on.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Catalog interface {
	// ListTables returns the table names of the public schema, sorted.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeTables returns column definitions for the named tables.
	// Unknown names yield an error naming the missing table.
	DescribeTables(ctx context.Context, names []string) ([]TableSchema, error)

	// ColumnValues returns all values of one text column, for term index
	// construction. Table and column names are validated as identifiers
	// before interpolation.
	ColumnValues(ctx context.Context, table, column string) ([]string, error)
}

// Postgres implements Catalog over a pgx connection pool.
//
// Thread Safety: Postgres is safe for concurrent use; pgxpool handles
// connection management.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a read-only pool against the given DSN.
//
// Description:
//
//	Forces default_transaction_read_only=on at the session level so even
//	a defective query path cannot mutate the database. The caller owns
//	Close().
//
// Inputs:
//   - ctx: Context for the initial connection attempt.
//   - dsn: Postgres connection string.
//   - logger: Logger. Nil uses slog.Default.
//
// Outputs:
//   - *Postgres: The connected catalog.
//   - error: Non-nil if the pool cannot be created or pinged.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parsing DSN: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping failed: %w", err)
	}

	logger.Info("database pool ready",
		slog.String("host", cfg.ConnConfig.Host),
		slog.String("database", cfg.ConnConfig.Database),
	)
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ListTables returns the table names of the public schema, sorted.
func (p *Postgres) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("db: listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db: scanning table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: reading table names: %w", err)
	}
	return names, nil
}

// DescribeTables returns column definitions for the named tables.
func (p *Postgres) DescribeTables(ctx context.Context, names []string) ([]TableSchema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("db: no table names given")
	}

	rows, err := p.pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ANY($1)
		ORDER BY table_name, ordinal_position`, names)
	if err != nil {
		return nil, fmt.Errorf("db: describing tables: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*TableSchema)
	order := make([]string, 0, len(names))
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("db: scanning column: %w", err)
		}
		ts, ok := byName[table]
		if !ok {
			ts = &TableSchema{Name: table}
			byName[table] = ts
			order = append(order, table)
		}
		ts.Columns = append(ts.Columns, Column{
			Name:     column,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: reading columns: %w", err)
	}

	for _, name := range names {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("db: table %q does not exist", name)
		}
	}

	out := make([]TableSchema, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// ColumnValues returns all non-null values of one text column.
func (p *Postgres) ColumnValues(ctx context.Context, table, column string) ([]string, error) {
	if !validIdentifier(table) || !validIdentifier(column) {
		return nil, fmt.Errorf("db: invalid identifier %q.%q", table, column)
	}

	// Identifiers cannot be bound parameters; both were validated above
	// and are quoted.
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`,
		quoteIdentifier(column), quoteIdentifier(table), quoteIdentifier(column))

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db: reading %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("db: scanning value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: reading values: %w", err)
	}
	return values, nil
}

// RenderSchemas renders table schemas as CREATE TABLE-style text, the form
// the model consumes in tool results.
func RenderSchemas(schemas []TableSchema) string {
	var b strings.Builder
	for i, ts := range schemas {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", ts.Name)
		for j, col := range ts.Columns {
			fmt.Fprintf(&b, "    %s %s", col.Name, col.DataType)
			if !col.Nullable {
				b.WriteString(" NOT NULL")
			}
			if j < len(ts.Columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(")")
	}
	return b.String()
}

// validIdentifier accepts unquoted Postgres identifiers: letters, digits,
// underscores, not starting with a digit.
func validIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// quoteIdentifier double-quotes an identifier per pgx conventions.
func quoteIdentifier(s string) string {
	return pgx.Identifier{s}.Sanitize()
}
