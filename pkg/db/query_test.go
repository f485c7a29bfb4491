// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedThings(t *testing.T, d *DB, tbl *Table) {
	t.Helper()
	require.NoError(t, d.WithConnection(context.Background(), func(ctx context.Context) error {
		rows := []Record{
			{"id": "q1", "name": "alpha", "qty": 10},
			{"id": "q2", "name": "beta", "qty": 20},
			{"id": "q3", "name": "gamma", "qty": 30},
			{"id": "q4", "name": "beta-two", "qty": 40},
		}
		for _, rec := range rows {
			if err := tbl.InsertRaw(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestQuery_Fetch(t *testing.T) {
	var log hookLog
	d, tbl := newThingsTable(t, &log)
	seedThings(t, d, tbl)
	ctx := context.Background()

	require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
		t.Run("equality map", func(t *testing.T) {
			rows, err := tbl.Query().Where(map[string]any{"name": "beta"}).Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "q2", rows[0].GetString("id"))
		})

		t.Run("expression with predicates", func(t *testing.T) {
			rows, err := tbl.Query().
				Pred("big", "qty", ">=", 20).
				Pred("named", "name", "LIKE", ":pattern").
				WhereExpr("$big AND $named").
				Bind("pattern", "beta%").
				OrderBy("qty").
				Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "q2", rows[0].GetString("id"))
			assert.Equal(t, "q4", rows[1].GetString("id"))
		})

		t.Run("in predicate", func(t *testing.T) {
			rows, err := tbl.Query().
				Pred("ids", "id", "IN", []any{"q1", "q3"}).
				WhereExpr("$ids").
				OrderBy("id").
				Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
		})

		t.Run("empty in matches nothing", func(t *testing.T) {
			rows, err := tbl.Query().
				Pred("ids", "id", "IN", []any{}).
				WhereExpr("$ids").
				Fetch(ctx)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("empty not in matches all", func(t *testing.T) {
			rows, err := tbl.Query().
				Pred("ids", "id", "NOT IN", []any{}).
				WhereExpr("$ids").
				Fetch(ctx)
			require.NoError(t, err)
			assert.Len(t, rows, 4)
		})

		t.Run("limit and offset", func(t *testing.T) {
			rows, err := tbl.Query().OrderBy("qty").Limit(2).Offset(1).Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "q2", rows[0].GetString("id"))
			assert.Equal(t, "q3", rows[1].GetString("id"))
		})

		t.Run("column projection", func(t *testing.T) {
			rows, err := tbl.Query().Select("id").Where(map[string]any{"name": "alpha"}).Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.False(t, rows[0].Has("qty"))
		})
		return nil
	}))
}

func TestQuery_FetchOneCountExists(t *testing.T) {
	var log hookLog
	d, tbl := newThingsTable(t, &log)
	seedThings(t, d, tbl)
	ctx := context.Background()

	require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
		row, err := tbl.Query().Where(map[string]any{"id": "q1"}).FetchOne(ctx)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "alpha", row.GetString("name"))

		row, err = tbl.Query().Where(map[string]any{"id": "missing"}).FetchOne(ctx)
		require.NoError(t, err)
		assert.Nil(t, row)

		count, err := tbl.Query().Pred("big", "qty", ">", 15).WhereExpr("$big").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		exists, err := tbl.Query().Where(map[string]any{"name": "gamma"}).Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = tbl.Query().Where(map[string]any{"name": "delta"}).Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	}))
}

func TestQuery_Update(t *testing.T) {
	var log hookLog
	d, tbl := newThingsTable(t, &log)
	seedThings(t, d, tbl)
	ctx := context.Background()

	t.Run("per row with triggers", func(t *testing.T) {
		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			n, err := tbl.Query().
				Pred("small", "qty", "<=", 20).
				WhereExpr("$small").
				Update(ctx, Record{"name": "small"})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			return nil
		}))
		assert.Equal(t, 2, log.updating)
		assert.Equal(t, 2, log.updated)

		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			rec, err := tbl.Record(ctx, RecordOpts{PKey: "q1"})
			require.NoError(t, err)
			assert.Equal(t, "small", rec.GetString("name"))
			// The on-updating hook bumped the quantity.
			assert.Equal(t, int64(11), rec.GetInt("qty"))
			return nil
		}))
	})

	t.Run("raw single statement", func(t *testing.T) {
		before := log.updating
		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			n, err := tbl.Query().
				Where(map[string]any{"name": "gamma"}).
				UpdateRaw(ctx, Record{"qty": 0})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			return nil
		}))
		assert.Equal(t, before, log.updating)
	})
}

func TestQuery_Delete(t *testing.T) {
	var log hookLog
	d, tbl := newThingsTable(t, &log)
	seedThings(t, d, tbl)
	ctx := context.Background()

	t.Run("per row with triggers", func(t *testing.T) {
		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			n, err := tbl.Query().
				Pred("named", "name", "LIKE", ":p").
				WhereExpr("$named").
				Bind("p", "beta%").
				Delete(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			return nil
		}))
		assert.Equal(t, 2, log.deleting)
		assert.Equal(t, 2, log.deleted)
	})

	t.Run("raw single statement", func(t *testing.T) {
		before := log.deleting
		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			n, err := tbl.Query().Where(map[string]any{"id": "q1"}).DeleteRaw(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			count, err := tbl.Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
			return nil
		}))
		assert.Equal(t, before, log.deleting)
	})

	t.Run("no match deletes nothing", func(t *testing.T) {
		require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
			n, err := tbl.Query().Where(map[string]any{"name": "nobody"}).Delete(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
			return nil
		}))
	})
}

func TestQuery_KwargsIntegration(t *testing.T) {
	var log hookLog
	d, tbl := newThingsTable(t, &log)
	seedThings(t, d, tbl)
	ctx := context.Background()

	// The flattened style arrives as request parameters and flows through
	// ParseWhereKwargs into the query.
	kwargs := map[string]any{
		"where_a_column": "qty",
		"where_a_op":     ">=",
		"where_a_value":  20,
		"where_b_column": "name",
		"where_b_op":     "NOT LIKE",
		"where_b_value":  ":skip",
	}

	require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
		rows, err := tbl.Query().
			Predicates(ParseWhereKwargs(kwargs)).
			WhereExpr("$a AND $b").
			Bind("skip", "beta%").
			OrderBy("qty").
			Fetch(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "gamma", rows[0].GetString("name"))
		return nil
	}))
}
