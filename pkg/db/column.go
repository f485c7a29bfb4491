// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of a column. The adapter maps it to the
// backend's SQL type; booleans are stored as 0/1 integers on both backends.
type ColumnType string

// Logical column types.
const (
	Int       ColumnType = "int"
	String    ColumnType = "string"
	Bool      ColumnType = "bool"
	Timestamp ColumnType = "timestamp"
)

func (t ColumnType) sqlType() string {
	switch t {
	case Int, Bool:
		return "INTEGER"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Column describes one table column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool

	// Default is the column default. With ServerDefault set it is a SQL
	// literal (e.g. CURRENT_TIMESTAMP) rendered verbatim.
	Default       any
	ServerDefault bool

	// RelatedTable/RelatedPK name the referenced table and column;
	// RelationSQL emits a real FOREIGN KEY constraint in the schema.
	RelatedTable string
	RelatedPK    string
	RelationSQL  bool

	// JSONEncoded columns marshal on write and unmarshal on read.
	JSONEncoded bool
	// Encrypted columns pass through the encryption manager.
	Encrypted bool
}

// ColumnOption customizes a column at declaration time.
type ColumnOption func(*Column)

// NotNull marks the column NOT NULL.
func NotNull() ColumnOption {
	return func(c *Column) { c.Nullable = false }
}

// Default sets a value default rendered into the schema.
func Default(v any) ColumnOption {
	return func(c *Column) { c.Default = v }
}

// ServerDefault sets a SQL-literal default such as CURRENT_TIMESTAMP.
func ServerDefault(expr string) ColumnOption {
	return func(c *Column) {
		c.Default = expr
		c.ServerDefault = true
	}
}

// JSONEncoded marks the column as JSON-encoded.
func JSONEncoded() ColumnOption {
	return func(c *Column) { c.JSONEncoded = true }
}

// Encrypted marks the column as encrypted at rest.
func Encrypted() ColumnOption {
	return func(c *Column) { c.Encrypted = true }
}

// Relation declares a foreign key to another table. The target is either
// a table name (referencing its id column) or "table.column". With
// sql=true the schema carries a real FOREIGN KEY constraint.
func (c *Column) Relation(target string, sql bool) *Column {
	table, pk, found := strings.Cut(target, ".")
	if !found {
		pk = "id"
	}
	c.RelatedTable = table
	c.RelatedPK = pk
	c.RelationSQL = sql
	return c
}

// DefSQL renders the column definition. primaryKey appends the PRIMARY KEY
// qualifier (used for explicit, non-autoincrement keys).
func (c *Column) DefSQL(primaryKey bool) string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type.sqlType())

	if primaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if !c.Nullable {
		b.WriteString(" NOT NULL")
	}

	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.defaultLiteral())
	}
	return b.String()
}

func (c *Column) defaultLiteral() string {
	if c.ServerDefault {
		return fmt.Sprint(c.Default)
	}
	switch v := c.Default.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

// Columns is the ordered column set of a table.
type Columns struct {
	order []string
	byKey map[string]*Column
}

// NewColumns returns an empty column set.
func NewColumns() *Columns {
	return &Columns{byKey: map[string]*Column{}}
}

// Add declares a column and returns it for relation chaining. Columns
// default to nullable.
func (cs *Columns) Add(name string, typ ColumnType, opts ...ColumnOption) *Column {
	col := &Column{Name: name, Type: typ, Nullable: true}
	for _, opt := range opts {
		opt(col)
	}
	if _, exists := cs.byKey[name]; !exists {
		cs.order = append(cs.order, name)
	}
	cs.byKey[name] = col
	return col
}

// Get returns the named column, or nil.
func (cs *Columns) Get(name string) *Column {
	return cs.byKey[name]
}

// Names returns the column names in declaration order.
func (cs *Columns) Names() []string {
	return append([]string(nil), cs.order...)
}

// All returns the columns in declaration order.
func (cs *Columns) All() []*Column {
	out := make([]*Column, 0, len(cs.order))
	for _, name := range cs.order {
		out = append(out, cs.byKey[name])
	}
	return out
}

// Len returns the number of declared columns.
func (cs *Columns) Len() int {
	return len(cs.order)
}
