// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genropy/gproxy/pkg/db"
)

func render(t *testing.T, result any) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, PrintResult(&buf, result))
	return buf.String()
}

func TestPrintResult_RecordList(t *testing.T) {
	t.Parallel()
	out := render(t, []db.Record{
		{"id": "a", "name": "alpha"},
		{"id": "b", "qty": int64(2)},
	})

	// id column leads, union of keys covered
	upper := strings.ToUpper(out)
	assert.Less(t, strings.Index(upper, "ID"), strings.Index(upper, "NAME"))
	assert.Contains(t, upper, "QTY")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "b")
	assert.Contains(t, out, "2")
}

func TestPrintResult_EmptyList(t *testing.T) {
	t.Parallel()
	out := render(t, []db.Record{})
	assert.Equal(t, "No records found.\n", out)
}

func TestPrintResult_SingleRecord(t *testing.T) {
	t.Parallel()
	out := render(t, db.Record{"name": "alpha", "id": "a", "qty": int64(2)})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id: a", lines[0])
	assert.Equal(t, "name: alpha", lines[1])
	assert.Equal(t, "qty: 2", lines[2])
}

func TestPrintResult_NestedValuesAsJSON(t *testing.T) {
	t.Parallel()
	out := render(t, db.Record{"id": "a", "config": map[string]any{"k": "v"}})
	assert.Contains(t, out, `config: {"k":"v"}`)
}

func TestPrintResult_ScalarList(t *testing.T) {
	t.Parallel()
	out := render(t, []any{"one", "two"})
	assert.Equal(t, "  • one\n  • two\n", out)
}

func TestPrintResult_MapList(t *testing.T) {
	t.Parallel()
	out := render(t, []any{
		map[string]any{"id": "x"},
		db.Record{"id": "y"},
	})
	assert.Contains(t, out, "x")
	assert.Contains(t, out, "y")
}

func TestPrintResult_Scalars(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "true\n", render(t, true))
	assert.Equal(t, "42\n", render(t, 42))
	assert.Equal(t, "done\n", render(t, "done"))
	assert.Empty(t, render(t, nil))
}
