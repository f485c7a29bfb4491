// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"strings"
)

// Query is a fluent select/update/delete over one table. Row selection
// is either an equality map or an expression over named predicates:
//
//	rows, err := tbl.Query().Where(db.Record{"active": true}).Fetch(ctx)
//
//	rows, err := tbl.Query().
//		Pred("a", "status", "!=", "deleted").
//		Pred("b", "name", "ILIKE", ":search").
//		WhereExpr("$a AND $b").
//		Bind("search", "%test%").
//		Fetch(ctx)
//
// Compound Update and Delete run per-row with the table's trigger chain;
// the Raw variants issue a single statement without triggers.
type Query struct {
	table      *Table
	columns    []string
	whereEq    map[string]any
	whereExpr  string
	conditions map[string]Predicate
	params     map[string]any
	orderBy    string
	limit      int
	offset     int
	forUpdate  bool
}

// Query starts a fluent query on the table.
func (t *Table) Query() *Query {
	return &Query{
		table:      t,
		conditions: map[string]Predicate{},
		params:     map[string]any{},
	}
}

// Select narrows the fetched columns.
func (q *Query) Select(columns ...string) *Query {
	q.columns = columns
	return q
}

// Where sets an equality map, ANDed.
func (q *Query) Where(where map[string]any) *Query {
	q.whereEq = where
	return q
}

// WhereExpr sets a boolean expression over named predicates.
func (q *Query) WhereExpr(expr string) *Query {
	q.whereExpr = expr
	return q
}

// Pred declares the named predicate referenced as $name in the
// expression.
func (q *Query) Pred(name, column, op string, value any) *Query {
	q.conditions[name] = Predicate{Column: column, Op: op, Value: value}
	return q
}

// Predicates merges pre-parsed named predicates.
func (q *Query) Predicates(conds map[string]Predicate) *Query {
	for name, cond := range conds {
		q.conditions[name] = cond
	}
	return q
}

// Bind supplies the value for a :name reference.
func (q *Query) Bind(name string, value any) *Query {
	q.params[name] = value
	return q
}

// BindAll merges :name reference values.
func (q *Query) BindAll(params map[string]any) *Query {
	for name, value := range params {
		q.params[name] = value
	}
	return q
}

// OrderBy sets the ORDER BY clause.
func (q *Query) OrderBy(orderBy string) *Query {
	q.orderBy = orderBy
	return q
}

// Limit caps the number of fetched rows.
func (q *Query) Limit(limit int) *Query {
	q.limit = limit
	return q
}

// Offset skips leading rows.
func (q *Query) Offset(offset int) *Query {
	q.offset = offset
	return q
}

// ForUpdate locks fetched rows on backends that support it.
func (q *Query) ForUpdate() *Query {
	q.forUpdate = true
	return q
}

func (q *Query) buildWhere() (string, map[string]any, error) {
	builder := NewWhereBuilder(q.table.db.adapter)
	if q.whereExpr != "" {
		return builder.BuildExpr(q.whereExpr, q.conditions, q.params)
	}
	if len(q.whereEq) > 0 {
		sql, params := builder.BuildEq(q.whereEq)
		return sql, params, nil
	}
	return "", map[string]any{}, nil
}

// Fetch returns all matching rows, decoded.
func (q *Query) Fetch(ctx context.Context) ([]Record, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return nil, err
	}
	return q.executeSelect(ctx, whereSQL, params, q.limit)
}

// FetchOne returns the first matching row, or nil.
func (q *Query) FetchOne(ctx context.Context) (Record, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return nil, err
	}
	rows, err := q.executeSelect(ctx, whereSQL, params, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int64, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) AS cnt FROM " + q.table.def.Name
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	row, err := q.table.db.FetchOne(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.GetInt("cnt"), nil
}

// Exists reports whether any row matches.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *Query) executeSelect(ctx context.Context, whereSQL string, params map[string]any, limit int) ([]Record, error) {
	colsSQL := "*"
	if len(q.columns) > 0 {
		colsSQL = strings.Join(q.columns, ", ")
	}
	query := "SELECT " + colsSQL + " FROM " + q.table.def.Name
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	if q.orderBy != "" {
		query += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if q.offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.offset)
	}
	if q.forUpdate {
		query += q.table.db.adapter.ForUpdateClause()
	}

	rows, err := q.table.db.FetchAll(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return q.table.decodeRows(rows)
}

// Delete removes matching rows one at a time with delete triggers.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return 0, err
	}
	rows, err := q.executeSelect(ctx, whereSQL, params, q.limit)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, rec := range rows {
		if err := q.table.applyDeleting(ctx, rec); err != nil {
			return deleted, err
		}
		where := q.rowKey(rec)
		affected, err := q.table.db.Delete(ctx, q.table.def.Name, where)
		if err != nil {
			return deleted, err
		}
		if affected > 0 {
			if err := q.table.applyDeleted(ctx, rec); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// DeleteRaw removes matching rows in a single statement without
// triggers.
func (q *Query) DeleteRaw(ctx context.Context) (int64, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return 0, err
	}
	query := "DELETE FROM " + q.table.def.Name
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	return q.table.db.Exec(ctx, query, params)
}

// Update rewrites matching rows one at a time with update triggers and
// column encoding.
func (q *Query) Update(ctx context.Context, values Record) (int64, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return 0, err
	}
	rows, err := q.executeSelect(ctx, whereSQL, params, q.limit)
	if err != nil {
		return 0, err
	}

	var updated int64
	for _, old := range rows {
		rec := old.Clone()
		for k, v := range values {
			rec[k] = v
		}
		if err := q.table.applyUpdating(ctx, rec, old); err != nil {
			return updated, err
		}
		encoded, err := q.table.encodeRecord(rec)
		if err != nil {
			return updated, err
		}
		affected, err := q.table.db.Update(ctx, q.table.def.Name, encoded, q.rowKey(old))
		if err != nil {
			return updated, err
		}
		if affected > 0 {
			if err := q.table.applyUpdated(ctx, rec, old); err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}

// UpdateRaw rewrites matching rows in a single statement without
// triggers or encoding. Values bind as upd_<col> so they never collide
// with condition parameters.
func (q *Query) UpdateRaw(ctx context.Context, values Record) (int64, error) {
	whereSQL, params, err := q.buildWhere()
	if err != nil {
		return 0, err
	}
	setParts := make([]string, 0, len(values))
	for _, k := range sortedKeys(values) {
		setParts = append(setParts, k+" = "+q.table.db.adapter.Placeholder("upd_"+k))
		params["upd_"+k] = values[k]
	}
	query := "UPDATE " + q.table.def.Name + " SET " + strings.Join(setParts, ", ")
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	return q.table.db.Exec(ctx, query, params)
}

// rowKey identifies one fetched row: the primary key when the table has
// one, the whole row otherwise.
func (q *Query) rowKey(rec Record) map[string]any {
	if pk := q.table.def.PKey; pk != "" {
		if v, ok := rec[pk]; ok && v != nil {
			return map[string]any{pk: v}
		}
	}
	return rec
}
