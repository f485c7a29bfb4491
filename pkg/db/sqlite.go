// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteAdapter is the embedded backend. Each Acquire takes a dedicated
// connection from the pool so concurrent units of work stay isolated.
//
// Rows are normalized so the embedded backend behaves like PostgreSQL:
// ISO datetime strings become time.Time and 0/1 becomes bool for
// boolean-looking columns.
type SQLiteAdapter struct {
	path string
	db   *sqlx.DB
}

// NewSQLiteAdapter opens (lazily on first Acquire is not needed; the pool
// itself connects on demand) a SQLite database at path. ":memory:" selects
// a shared in-memory database.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if path == "" {
		path = ":memory:"
	}

	dsn := sqliteDSN(path)
	pool, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %q: %w", path, err)
	}
	if path == ":memory:" {
		// A second connection to :memory: would see an empty database.
		pool.SetMaxOpenConns(1)
	}

	return &SQLiteAdapter{path: path, db: pool}, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Acquire takes a dedicated connection and opens its implicit transaction.
func (a *SQLiteAdapter) Acquire(ctx context.Context) (*Conn, error) {
	conn, err := a.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring sqlite connection: %w", err)
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Conn{conn: conn, tx: tx}, nil
}

// Release returns the connection to the pool.
func (a *SQLiteAdapter) Release(conn *Conn) {
	if conn == nil {
		return
	}
	_ = conn.conn.Close()
}

// Shutdown closes the pool.
func (a *SQLiteAdapter) Shutdown() error {
	return a.db.Close()
}

// Commit commits the implicit transaction.
func (*SQLiteAdapter) Commit(conn *Conn) error {
	return conn.tx.Commit()
}

// Rollback rolls back the implicit transaction.
func (*SQLiteAdapter) Rollback(conn *Conn) error {
	return conn.tx.Rollback()
}

// Exec runs a statement, returning the affected row count.
func (*SQLiteAdapter) Exec(ctx context.Context, conn *Conn, query string, params map[string]any) (int64, error) {
	q, args, err := bindNamed(sqlx.QUESTION, query, params)
	if err != nil {
		return 0, err
	}
	res, err := conn.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// ExecMany runs the statement once per parameter set.
func (a *SQLiteAdapter) ExecMany(ctx context.Context, conn *Conn, query string, paramsList []map[string]any) (int64, error) {
	for _, params := range paramsList {
		if _, err := a.Exec(ctx, conn, query, params); err != nil {
			return 0, err
		}
	}
	return int64(len(paramsList)), nil
}

// FetchOne returns a single row, or nil when there is none.
func (*SQLiteAdapter) FetchOne(ctx context.Context, conn *Conn, query string, params map[string]any) (Record, error) {
	q, args, err := bindNamed(sqlx.QUESTION, query, params)
	if err != nil {
		return nil, err
	}
	rows, err := conn.tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	all, err := scanRows(rows, normalizeRow)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// FetchAll returns all rows.
func (*SQLiteAdapter) FetchAll(ctx context.Context, conn *Conn, query string, params map[string]any) ([]Record, error) {
	q, args, err := bindNamed(sqlx.QUESTION, query, params)
	if err != nil {
		return nil, err
	}
	rows, err := conn.tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return scanRows(rows, normalizeRow)
}

// ExecScript runs a multi-statement DDL script.
func (*SQLiteAdapter) ExecScript(ctx context.Context, conn *Conn, script string) error {
	for _, stmt := range splitScript(script) {
		if _, err := conn.tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing script statement: %w", err)
		}
	}
	return nil
}

// InsertReturningID inserts a row and returns the generated rowid.
func (*SQLiteAdapter) InsertReturningID(ctx context.Context, conn *Conn, table string, values map[string]any, _ string) (int64, error) {
	cols := sortedKeys(values)
	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, quoteIdent(c))
		placeholders = append(placeholders, ":"+c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))

	q, args, err := bindNamed(sqlx.QUESTION, query, values)
	if err != nil {
		return 0, err
	}
	res, err := conn.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading generated id: %w", err)
	}
	return id, nil
}

// Placeholder returns the named parameter placeholder.
func (*SQLiteAdapter) Placeholder(name string) string {
	return ":" + name
}

// ForUpdateClause returns "" because SQLite has no row-level locks; the
// implicit transaction already serializes writers.
func (*SQLiteAdapter) ForUpdateClause() string {
	return ""
}

// PKColumn returns the native autoincrement primary key definition.
func (*SQLiteAdapter) PKColumn(name string) string {
	return quoteIdent(name) + " INTEGER PRIMARY KEY"
}

// AddColumnIfNotExistsSQL returns the schema-sync ALTER TABLE form. SQLite
// has no IF NOT EXISTS for columns; duplicate-column errors are swallowed
// by the caller.
func (*SQLiteAdapter) AddColumnIfNotExistsSQL(table, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDef)
}

// splitScript breaks a DDL script into executable statements.
func splitScript(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
