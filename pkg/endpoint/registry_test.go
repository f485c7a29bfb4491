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

func newRegistryDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })
	return d
}

func widgetsEntry(doc string) Entry {
	return Entry{
		NewTable: widgetsDef,
		NewEndpoint: func(table *db.Table) *Base {
			ep := New("widgets", table)
			ep.AddMethod(Method{Name: "marker", Doc: doc})
			return ep
		},
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("widgets", widgetsEntry("base"))
	reg.Register("proc", Entry{
		NewEndpoint: func(table *db.Table) *Base {
			return New("proc", table)
		},
	})

	assert.Equal(t, []string{"widgets", "proc"}, reg.Names())
	assert.True(t, reg.Has("widgets"))
	assert.False(t, reg.Has("gadgets"))

	d := newRegistryDB(t)
	endpoints, err := reg.Build(d)
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	assert.Equal(t, "widgets", endpoints[0].Name())
	assert.NotNil(t, endpoints[0].Table())
	assert.Equal(t, "proc", endpoints[1].Name())
	assert.Nil(t, endpoints[1].Table())

	assert.Contains(t, d.TableNames(), "widgets")
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	reg := NewRegistry()
	reg.Register("widgets", widgetsEntry("first"))
	reg.Register("widgets", widgetsEntry("second"))

	endpoints, err := reg.Build(newRegistryDB(t))
	require.NoError(t, err)
	require.Len(t, endpoints, 1)

	m, ok := endpoints[0].Method("marker")
	require.True(t, ok)
	assert.Equal(t, "first", m.Doc)
}

func TestRegistry_OverrideReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register("widgets", widgetsEntry("base"))
	reg.Register("proc", Entry{NewEndpoint: func(*db.Table) *Base { return New("proc", nil) }})

	derived := widgetsEntry("derived")
	derived.Override = true
	reg.Register("widgets", derived)

	// Replacement keeps the original position.
	assert.Equal(t, []string{"widgets", "proc"}, reg.Names())

	endpoints, err := reg.Build(newRegistryDB(t))
	require.NoError(t, err)
	m, ok := endpoints[0].Method("marker")
	require.True(t, ok)
	assert.Equal(t, "derived", m.Doc)
}

func TestRegistry_Wrappers(t *testing.T) {
	reg := NewRegistry()
	reg.Register("widgets", widgetsEntry("base"))

	reg.WrapTable("widgets", func(def db.TableDef) db.TableDef {
		inner := def.Configure
		def.Configure = func(c *db.Columns) {
			inner(c)
			c.Add("extra", db.String)
		}
		return def
	})
	reg.WrapEndpoint("widgets", func(ep *Base) *Base {
		ep.AddMethod(Method{Name: "extra_op", Doc: "Added by wrapper."})
		return ep
	})

	d := newRegistryDB(t)
	endpoints, err := reg.Build(d)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)

	table := d.MustTable("widgets")
	assert.NotNil(t, table.Columns().Get("extra"))

	_, ok := endpoints[0].Method("extra_op")
	assert.True(t, ok)
}

func TestRegistry_BuildWiresEndpointTable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("widgets", widgetsEntry("base"))

	d := newRegistryDB(t)
	endpoints, err := reg.Build(d)
	require.NoError(t, err)

	require.NoError(t, d.WithConnection(context.Background(), func(ctx context.Context) error {
		return d.CheckStructure(ctx)
	}))

	_, err = endpoints[0].Invoke(context.Background(), "add",
		db.Record{"id": "w1"}, Admin())
	require.NoError(t, err)
}
