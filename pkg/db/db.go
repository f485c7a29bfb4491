// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/genropy/gproxy/pkg/logger"
)

// ErrNoConnection reports a query issued outside a WithConnection scope.
var ErrNoConnection = errors.New("no active connection: wrap the call in WithConnection")

type connCtxKey struct{}

// Crypto is the column-encryption hook. The encryption manager implements
// it; a nil or unconfigured Crypto leaves values untouched.
type Crypto interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(value string) (string, error)
	Configured() bool
}

// DB owns one adapter and the registry of tables built on it. Query
// methods run on the connection carried by the context, bound by
// WithConnection.
type DB struct {
	connString string
	adapter    Adapter
	tables     map[string]*Table
	order      []string
	crypto     Crypto
}

// New opens the backend named by connString and returns the manager.
func New(connString string) (*DB, error) {
	adapter, err := OpenAdapter(connString)
	if err != nil {
		return nil, err
	}
	return &DB{
		connString: connString,
		adapter:    adapter,
		tables:     map[string]*Table{},
	}, nil
}

// NewWithAdapter wraps an already-open adapter. Used by tests.
func NewWithAdapter(a Adapter) *DB {
	return &DB{adapter: a, tables: map[string]*Table{}}
}

// Adapter returns the backend adapter.
func (d *DB) Adapter() Adapter { return d.adapter }

// ConnectionString returns the target the manager was opened with.
func (d *DB) ConnectionString() string { return d.connString }

// SetCrypto installs the column-encryption hook.
func (d *DB) SetCrypto(c Crypto) { d.crypto = c }

// Crypto returns the installed encryption hook, or nil.
func (d *DB) Crypto() Crypto { return d.crypto }

// WithConnection acquires a connection, binds it into the context passed
// to fn, and finishes the implicit transaction: commit when fn returns
// nil, rollback otherwise. The connection is released on all paths.
func (d *DB) WithConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := d.adapter.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer d.adapter.Release(conn)

	if err := fn(context.WithValue(ctx, connCtxKey{}, conn)); err != nil {
		if rbErr := d.adapter.Rollback(conn); rbErr != nil {
			logger.Debugf("rollback after error failed: %v", rbErr)
		}
		return err
	}
	if err := d.adapter.Commit(conn); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// conn returns the connection bound to ctx.
func (d *DB) conn(ctx context.Context) (*Conn, error) {
	c, ok := ctx.Value(connCtxKey{}).(*Conn)
	if !ok || c == nil {
		return nil, ErrNoConnection
	}
	return c, nil
}

// Shutdown closes the adapter's pool. Application shutdown only.
func (d *DB) Shutdown() error {
	return d.adapter.Shutdown()
}

// AddTable instantiates a table definition and registers it under its
// name. Registering an existing name replaces the table while keeping
// its original position in the creation order.
func (d *DB) AddTable(def TableDef) (*Table, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("table definition must carry a name")
	}
	tbl, err := newTable(d, def)
	if err != nil {
		return nil, err
	}
	if _, exists := d.tables[def.Name]; !exists {
		d.order = append(d.order, def.Name)
	}
	d.tables[def.Name] = tbl
	return tbl, nil
}

// Table returns the registered table by name.
func (d *DB) Table(name string) (*Table, error) {
	tbl, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q not registered", name)
	}
	return tbl, nil
}

// MustTable returns the registered table or panics. For wiring code that
// runs at startup with a known registry.
func (d *DB) MustTable(name string) *Table {
	tbl, err := d.Table(name)
	if err != nil {
		panic(err)
	}
	return tbl
}

// TableNames returns the registered table names in registration order.
func (d *DB) TableNames() []string {
	return append([]string(nil), d.order...)
}

// CheckStructure creates every registered table, referenced tables
// first so foreign keys resolve on backends that enforce them at DDL
// time.
func (d *DB) CheckStructure(ctx context.Context) error {
	for _, name := range d.creationOrder() {
		if err := d.tables[name].CreateSchema(ctx); err != nil {
			return fmt.Errorf("creating table %s: %w", name, err)
		}
	}
	return nil
}

// SyncSchema adds declared columns missing from existing tables. Errors
// from backends without idempotent ADD COLUMN are logged and swallowed.
func (d *DB) SyncSchema(ctx context.Context) {
	for _, name := range d.creationOrder() {
		d.tables[name].SyncSchema(ctx)
	}
}

// creationOrder sorts tables so that relation targets come before the
// tables referencing them. Cycles and unknown targets fall back to
// registration order.
func (d *DB) creationOrder() []string {
	visited := map[string]bool{}
	var ordered []string

	var visit func(name string, trail map[string]bool)
	visit = func(name string, trail map[string]bool) {
		if visited[name] || trail[name] {
			return
		}
		trail[name] = true
		if tbl := d.tables[name]; tbl != nil {
			for _, col := range tbl.columns.All() {
				if col.RelatedTable != "" && col.RelatedTable != name {
					if _, known := d.tables[col.RelatedTable]; known {
						visit(col.RelatedTable, trail)
					}
				}
			}
		}
		delete(trail, name)
		visited[name] = true
		ordered = append(ordered, name)
	}

	for _, name := range d.order {
		visit(name, map[string]bool{})
	}
	return ordered
}

// Exec runs a statement on the context's connection.
func (d *DB) Exec(ctx context.Context, query string, params map[string]any) (int64, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return 0, err
	}
	return d.adapter.Exec(ctx, conn, query, params)
}

// ExecMany runs the statement once per parameter set.
func (d *DB) ExecMany(ctx context.Context, query string, paramsList []map[string]any) (int64, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return 0, err
	}
	return d.adapter.ExecMany(ctx, conn, query, paramsList)
}

// FetchOne returns a single row, or nil when none matches.
func (d *DB) FetchOne(ctx context.Context, query string, params map[string]any) (Record, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	return d.adapter.FetchOne(ctx, conn, query, params)
}

// FetchAll returns every matching row.
func (d *DB) FetchAll(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	return d.adapter.FetchAll(ctx, conn, query, params)
}

// ExecScript runs a multi-statement DDL script.
func (d *DB) ExecScript(ctx context.Context, script string) error {
	conn, err := d.conn(ctx)
	if err != nil {
		return err
	}
	return d.adapter.ExecScript(ctx, conn, script)
}

// Commit commits the current transaction early.
func (d *DB) Commit(ctx context.Context) error {
	conn, err := d.conn(ctx)
	if err != nil {
		return err
	}
	return d.adapter.Commit(conn)
}

// Rollback rolls back the current transaction.
func (d *DB) Rollback(ctx context.Context) error {
	conn, err := d.conn(ctx)
	if err != nil {
		return err
	}
	return d.adapter.Rollback(conn)
}

// Insert adds one row, returning the affected count.
func (d *DB) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := sortedKeys(values)
	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, quoteIdent(c))
		placeholders = append(placeholders, d.adapter.Placeholder(c))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return d.Exec(ctx, query, values)
}

// InsertReturningID adds one row and returns the generated key.
func (d *DB) InsertReturningID(ctx context.Context, table string, values map[string]any, pkCol string) (int64, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return 0, err
	}
	return d.adapter.InsertReturningID(ctx, conn, table, values, pkCol)
}

// SelectOpts narrows a Select.
type SelectOpts struct {
	Columns []string
	Where   map[string]any
	OrderBy string
	Limit   int
}

// Select returns rows matching an equality where-map. Complex predicates
// go through the query builder.
func (d *DB) Select(ctx context.Context, table string, opts SelectOpts) ([]Record, error) {
	colsSQL := "*"
	if len(opts.Columns) > 0 {
		quoted := make([]string, 0, len(opts.Columns))
		for _, c := range opts.Columns {
			quoted = append(quoted, quoteIdent(c))
		}
		colsSQL = strings.Join(quoted, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", colsSQL, table)

	params := map[string]any{}
	if len(opts.Where) > 0 {
		conds := make([]string, 0, len(opts.Where))
		for _, k := range sortedKeys(opts.Where) {
			conds = append(conds, quoteIdent(k)+" = "+d.adapter.Placeholder(k))
			params[k] = opts.Where[k]
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if opts.OrderBy != "" {
		query += " ORDER BY " + opts.OrderBy
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return d.FetchAll(ctx, query, params)
}

// SelectOne returns the first matching row, or nil.
func (d *DB) SelectOne(ctx context.Context, table string, columns []string, where map[string]any) (Record, error) {
	rows, err := d.Select(ctx, table, SelectOpts{Columns: columns, Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Update rewrites matching rows, returning the affected count. Values
// bind as val_<col>, the where-map as whr_<col>, so a column may appear
// on both sides.
func (d *DB) Update(ctx context.Context, table string, values, where map[string]any) (int64, error) {
	setParts := make([]string, 0, len(values))
	params := make(map[string]any, len(values)+len(where))
	for _, k := range sortedKeys(values) {
		setParts = append(setParts, quoteIdent(k)+" = "+d.adapter.Placeholder("val_"+k))
		params["val_"+k] = values[k]
	}
	whereParts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		whereParts = append(whereParts, quoteIdent(k)+" = "+d.adapter.Placeholder("whr_"+k))
		params["whr_"+k] = where[k]
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(setParts, ", "), strings.Join(whereParts, " AND "))
	return d.Exec(ctx, query, params)
}

// Delete removes matching rows, returning the affected count.
func (d *DB) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	whereParts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		whereParts = append(whereParts, quoteIdent(k)+" = "+d.adapter.Placeholder(k))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(whereParts, " AND "))
	return d.Exec(ctx, query, where)
}

// Exists reports whether any row matches.
func (d *DB) Exists(ctx context.Context, table string, where map[string]any) (bool, error) {
	conds := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		conds = append(conds, quoteIdent(k)+" = "+d.adapter.Placeholder(k))
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", table, strings.Join(conds, " AND "))
	row, err := d.FetchOne(ctx, query, where)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Count returns the number of matching rows; a nil where-map counts the
// whole table.
func (d *DB) Count(ctx context.Context, table string, where map[string]any) (int64, error) {
	query := "SELECT COUNT(*) AS cnt FROM " + table
	params := map[string]any{}
	if len(where) > 0 {
		conds := make([]string, 0, len(where))
		for _, k := range sortedKeys(where) {
			conds = append(conds, quoteIdent(k)+" = "+d.adapter.Placeholder(k))
			params[k] = where[k]
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	row, err := d.FetchOne(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.GetInt("cnt"), nil
}
