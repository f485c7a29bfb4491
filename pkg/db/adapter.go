// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package db implements the storage layer shared by all gproxy services:
// backend adapters for SQLite and PostgreSQL, a connection-per-request
// manager, metadata-driven tables with triggers, and a named-parameter
// query builder.
//
// All SQL flows through named :name placeholders; the adapters rewrite them
// to the driver's native binding via sqlx. Values are never interpolated
// into query text.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Conn is a live connection with its implicit transaction. One Conn serves
// one unit of work: the manager acquires it, binds it into the context,
// commits or rolls back at the end, and releases it.
type Conn struct {
	conn *sqlx.Conn
	tx   *sqlx.Tx
}

// Adapter is the narrow backend interface. Implementations exist for
// SQLite (embedded) and PostgreSQL (networked); everything above this
// interface is backend-agnostic.
type Adapter interface {
	// Acquire returns a fresh connection with an open implicit transaction.
	Acquire(ctx context.Context) (*Conn, error)
	// Release returns the connection to the pool (or closes it).
	Release(conn *Conn)
	// Shutdown closes the underlying pool. Application shutdown only.
	Shutdown() error

	// Commit commits the connection's implicit transaction.
	Commit(conn *Conn) error
	// Rollback rolls back the connection's implicit transaction.
	Rollback(conn *Conn) error

	// Exec runs a statement, returning the affected row count.
	Exec(ctx context.Context, conn *Conn, query string, params map[string]any) (int64, error)
	// ExecMany runs the statement once per parameter set (batch writes).
	ExecMany(ctx context.Context, conn *Conn, query string, paramsList []map[string]any) (int64, error)
	// FetchOne returns a single row, or nil when there is none.
	FetchOne(ctx context.Context, conn *Conn, query string, params map[string]any) (Record, error)
	// FetchAll returns all rows.
	FetchAll(ctx context.Context, conn *Conn, query string, params map[string]any) ([]Record, error)
	// ExecScript runs a multi-statement DDL script.
	ExecScript(ctx context.Context, conn *Conn, script string) error
	// InsertReturningID inserts values and returns the generated key.
	InsertReturningID(ctx context.Context, conn *Conn, table string, values map[string]any, pkCol string) (int64, error)

	// Placeholder returns the named-parameter placeholder for name.
	// Queries are always written with these; native rewriting is internal.
	Placeholder(name string) string
	// ForUpdateClause returns the row-lock suffix, empty when unsupported.
	ForUpdateClause() string
	// PKColumn returns the autoincrement primary key column definition.
	PKColumn(name string) string
	// AddColumnIfNotExistsSQL returns the ALTER TABLE statement used by
	// schema sync for one column definition.
	AddColumnIfNotExistsSQL(table, columnDef string) string
}

// quoteIdent returns the double-quoted SQL identifier for a column or
// table name.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// bindNamed rewrites a :name query plus parameter map into driver-ready
// positional form.
func bindNamed(bindType int, query string, params map[string]any) (string, []any, error) {
	if params == nil {
		params = map[string]any{}
	}
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("binding named parameters: %w", err)
	}
	return sqlx.Rebind(bindType, q), args, nil
}

// scanRows drains the result set into Records, applying the adapter's
// value normalization to every row.
func scanRows(rows *sqlx.Rows, normalize func(Record) Record) ([]Record, error) {
	defer rows.Close()

	// Always a non-nil slice so empty results serialize as [].
	out := []Record{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, normalize(decodeByteValues(row)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return out, nil
}

// decodeByteValues turns []byte text values into strings so callers see a
// uniform representation across drivers.
func decodeByteValues(row map[string]any) Record {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return Record(row)
}
