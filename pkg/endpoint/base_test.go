// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genropy/gproxy/pkg/db"
)

// newTestTable opens a sqlite database in a temp dir and registers the
// widgets table.
func newTestTable(t *testing.T) *db.Table {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })

	table, err := d.AddTable(widgetsDef())
	require.NoError(t, err)

	require.NoError(t, d.WithConnection(context.Background(), func(ctx context.Context) error {
		return d.CheckStructure(ctx)
	}))
	return table
}

func widgetsDef() db.TableDef {
	return db.TableDef{
		Name: "widgets",
		PKey: "id",
		Configure: func(c *db.Columns) {
			c.Add("id", db.String)
			c.Add("name", db.String)
			c.Add("qty", db.Int, db.Default(0))
			c.Add("tenant_id", db.String)
		},
	}
}

func TestNew_CRUDMethods(t *testing.T) {
	t.Run("table-backed endpoint gets CRUD", func(t *testing.T) {
		ep := New("widgets", newTestTable(t))
		for _, name := range []string{"list", "get", "add", "delete"} {
			_, ok := ep.Method(name)
			assert.True(t, ok, "missing method %s", name)
		}
	})

	t.Run("WithoutCRUD skips them", func(t *testing.T) {
		ep := New("widgets", newTestTable(t), WithoutCRUD())
		assert.Empty(t, ep.Methods())
	})

	t.Run("table-less endpoint has no CRUD", func(t *testing.T) {
		ep := New("proc", nil)
		assert.Empty(t, ep.Methods())
		assert.Nil(t, ep.Table())
	})
}

func TestBase_AddMethodReplaces(t *testing.T) {
	ep := New("widgets", newTestTable(t))
	before := len(ep.Methods())

	ep.AddMethod(Method{
		Name: "list",
		Doc:  "Custom listing.",
		Handler: func(_ context.Context, _ db.Record) (any, error) {
			return []db.Record{}, nil
		},
	})

	assert.Len(t, ep.Methods(), before)
	m, ok := ep.Method("list")
	require.True(t, ok)
	assert.Equal(t, "Custom listing.", m.Doc)
}

func TestBase_HTTPMethod(t *testing.T) {
	ep := New("widgets", newTestTable(t))

	assert.Equal(t, "GET", ep.HTTPMethod("list"))
	assert.Equal(t, "GET", ep.HTTPMethod("get"))
	assert.Equal(t, "POST", ep.HTTPMethod("add"))
	assert.Equal(t, "POST", ep.HTTPMethod("delete"))

	t.Run("endpoint default post", func(t *testing.T) {
		ep := New("hooks", nil, WithDefaults(Defaults{API: true, CLI: true, REPL: true, Post: true}))
		ep.AddMethod(Method{Name: "fire"})
		ep.AddMethod(Method{Name: "peek", Post: Flag(false)})

		assert.Equal(t, "POST", ep.HTTPMethod("fire"))
		assert.Equal(t, "GET", ep.HTTPMethod("peek"))
	})
}

func TestBase_IsAvailable(t *testing.T) {
	ep := New("proc", nil, WithDefaults(Defaults{API: false, CLI: true, REPL: true}))
	ep.AddMethod(Method{Name: "serve"})
	ep.AddMethod(Method{Name: "status", API: Flag(true)})
	ep.AddMethod(Method{Name: "shell", CLI: Flag(false)})

	assert.False(t, ep.IsAvailable("serve", ChannelAPI))
	assert.True(t, ep.IsAvailable("serve", ChannelCLI))
	assert.True(t, ep.IsAvailable("status", ChannelAPI))
	assert.False(t, ep.IsAvailable("shell", ChannelCLI))
	assert.True(t, ep.IsAvailable("shell", ChannelREPL))

	t.Run("unknown method is unavailable", func(t *testing.T) {
		assert.False(t, ep.IsAvailable("nope", ChannelAPI))
	})
}

func TestBase_MethodsSorted(t *testing.T) {
	ep := New("proc", nil)
	ep.AddMethod(Method{Name: "stop"})
	ep.AddMethod(Method{Name: "list"})
	ep.AddMethod(Method{Name: "restart"})

	var names []string
	for _, m := range ep.Methods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"list", "restart", "stop"}, names)
}

func TestBase_ParamIntrospection(t *testing.T) {
	ep := New("proc", nil)
	ep.AddMethod(Method{Name: "simple", Params: []Param{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "count", Type: TypeInt},
	}})
	ep.AddMethod(Method{Name: "complex", Params: []Param{
		{Name: "name", Type: TypeString},
		{Name: "config", Type: TypeObject},
	}})

	assert.True(t, ep.IsSimpleParams("simple"))
	assert.False(t, ep.IsSimpleParams("complex"))
	assert.Equal(t, 2, ep.CountParams("simple"))
	assert.Equal(t, 0, ep.CountParams("nope"))
}
