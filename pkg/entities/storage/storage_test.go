// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/encryption"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/entities/tenant"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

func newStorageFixture(t *testing.T) (*db.DB, *Manager, *endpoint.Base) {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "storages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })

	crypto := encryption.NewManager()
	require.NoError(t, crypto.SetKey(bytes.Repeat([]byte{9}, 32)))
	d.SetCrypto(crypto)

	tenantTbl, err := d.AddTable(tenant.NewTableDef())
	require.NoError(t, err)
	tbl, err := d.AddTable(NewTableDef())
	require.NoError(t, err)
	require.NoError(t, d.WithConnection(context.Background(), func(ctx context.Context) error {
		if err := d.CheckStructure(ctx); err != nil {
			return err
		}
		tenants := tenant.Wrap(tenantTbl)
		for _, id := range []string{"t1", "t2"} {
			if _, err := tenants.Add(ctx, db.Record{"id": id}); err != nil {
				return err
			}
		}
		return nil
	}))
	return d, Wrap(tbl), NewEndpoint(tbl)
}

func invoke(t *testing.T, ep *endpoint.Base, method string, params db.Record) (any, error) {
	t.Helper()
	return ep.Invoke(context.Background(), method, params, endpoint.Admin())
}

// makeMountDir builds a small local tree: a.txt, b.txt and sub/inner.txt.
func makeMountDir(t *testing.T) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "mount")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "b.txt"), []byte("world!"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "inner.txt"), []byte("x"), 0o644))
	return base
}

func TestEndpointAdd_UpsertsOnName(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	result, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": "/data/home"},
	})
	require.NoError(t, err)
	created := result.(db.Record)
	assert.Len(t, created.GetString("pk"), 36)
	assert.Equal(t, "local", created.GetString("protocol"))
	assert.Equal(t, map[string]any{"base_path": "/data/home"}, created["config"])

	result, err = invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": "/data/elsewhere"},
	})
	require.NoError(t, err)
	updated := result.(db.Record)
	assert.Equal(t, created.GetString("pk"), updated.GetString("pk"))
	assert.Equal(t, map[string]any{"base_path": "/data/elsewhere"}, updated["config"])
}

func TestEndpointAdd_NilConfigStoresEmptyObject(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	result, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "BARE", "protocol": "local",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result.(db.Record)["config"])
}

func TestEndpointGet_NotFound(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "get", db.Record{"tenant_id": "t1", "name": "ghost"})
	require.Error(t, err)
	assert.True(t, proxyerr.IsNotFound(err))
	assert.Contains(t, err.Error(), "storage 'ghost' not found for tenant 't1'")
}

func TestEndpointList_OrderedPerTenant(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	for _, mount := range []db.Record{
		{"tenant_id": "t1", "name": "SALES", "protocol": "local"},
		{"tenant_id": "t1", "name": "HOME", "protocol": "local"},
		{"tenant_id": "t2", "name": "OTHER", "protocol": "local"},
	} {
		mount["config"] = map[string]any{}
		_, err := invoke(t, ep, "add", mount)
		require.NoError(t, err)
	}

	result, err := invoke(t, ep, "list", db.Record{"tenant_id": "t1"})
	require.NoError(t, err)
	rows := result.([]db.Record)
	require.Len(t, rows, 2)
	assert.Equal(t, "HOME", rows[0].GetString("name"))
	assert.Equal(t, "SALES", rows[1].GetString("name"))
}

func TestEndpointDelete(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "add", db.Record{"tenant_id": "t1", "name": "HOME", "protocol": "local"})
	require.NoError(t, err)

	result, err := invoke(t, ep, "delete", db.Record{"tenant_id": "t1", "name": "HOME"})
	require.NoError(t, err)
	assert.Equal(t, db.Record{"ok": true, "tenant_id": "t1", "name": "HOME"}, result)

	result, err = invoke(t, ep, "delete", db.Record{"tenant_id": "t1", "name": "HOME"})
	require.NoError(t, err)
	assert.False(t, result.(db.Record).GetBool("ok"))
}

func TestListFiles_LocalMount(t *testing.T) {
	_, _, ep := newStorageFixture(t)
	base := makeMountDir(t)

	_, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": base},
	})
	require.NoError(t, err)

	// No path defaults to the mount root.
	result, err := invoke(t, ep, "list_files", db.Record{"tenant_id": "t1", "storage_name": "HOME"})
	require.NoError(t, err)
	entries := result.([]db.Record)
	require.Len(t, entries, 3)

	assert.Equal(t, "a.txt", entries[0].GetString("name"))
	assert.Equal(t, "a.txt", entries[0].GetString("path"))
	assert.False(t, entries[0].GetBool("is_dir"))
	assert.Equal(t, int64(5), entries[0].GetInt("size"))
	assert.Greater(t, entries[0].GetInt("mtime"), int64(0))

	assert.Equal(t, "b.txt", entries[1].GetString("name"))
	assert.Equal(t, "sub", entries[2].GetString("name"))
	assert.True(t, entries[2].GetBool("is_dir"))
	assert.Equal(t, int64(0), entries[2].GetInt("size"))

	result, err = invoke(t, ep, "list_files", db.Record{
		"tenant_id": "t1", "storage_name": "HOME", "path": "/sub",
	})
	require.NoError(t, err)
	entries = result.([]db.Record)
	require.Len(t, entries, 1)
	assert.Equal(t, "inner.txt", entries[0].GetString("name"))
	assert.Equal(t, "sub/inner.txt", entries[0].GetString("path"))
}

func TestListFiles_MissingPathYieldsEmpty(t *testing.T) {
	_, _, ep := newStorageFixture(t)
	base := makeMountDir(t)

	_, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": base},
	})
	require.NoError(t, err)

	result, err := invoke(t, ep, "list_files", db.Record{
		"tenant_id": "t1", "storage_name": "HOME", "path": "/nope",
	})
	require.NoError(t, err)
	assert.Empty(t, result)

	// A file path is not a directory either.
	result, err = invoke(t, ep, "list_files", db.Record{
		"tenant_id": "t1", "storage_name": "HOME", "path": "/a.txt",
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestListFiles_CannotClimbOutOfMount(t *testing.T) {
	_, _, ep := newStorageFixture(t)
	parent := t.TempDir()
	base := filepath.Join(parent, "mount")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("keep out"), 0o644))

	_, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": base},
	})
	require.NoError(t, err)

	result, err := invoke(t, ep, "list_files", db.Record{
		"tenant_id": "t1", "storage_name": "HOME", "path": "../",
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestListFiles_UnknownMount(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "list_files", db.Record{"tenant_id": "t1", "storage_name": "GHOST"})
	require.Error(t, err)
	assert.True(t, proxyerr.IsNotFound(err))
}

func TestListFiles_CloudProtocolNotBrowsable(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "CLOUD", "protocol": "s3",
		"config": map[string]any{"bucket": "b"},
	})
	require.NoError(t, err)

	_, err = invoke(t, ep, "list_files", db.Record{"tenant_id": "t1", "storage_name": "CLOUD"})
	require.Error(t, err)
	assert.True(t, proxyerr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "not browsable")
}

func TestListFiles_MissingBasePath(t *testing.T) {
	_, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "add", db.Record{"tenant_id": "t1", "name": "HOME", "protocol": "local"})
	require.NoError(t, err)

	_, err = invoke(t, ep, "list_files", db.Record{"tenant_id": "t1", "storage_name": "HOME"})
	require.Error(t, err)
	assert.True(t, proxyerr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "base_path")
}

func TestConfigEncryptedAtRest(t *testing.T) {
	d, _, ep := newStorageFixture(t)

	_, err := invoke(t, ep, "add", db.Record{
		"tenant_id": "t1", "name": "HOME", "protocol": "local",
		"config": map[string]any{"base_path": "/data", "secret_key": "hushhush"},
	})
	require.NoError(t, err)

	var raw db.Record
	ctx := context.Background()
	require.NoError(t, d.WithConnection(ctx, func(ctx context.Context) error {
		var err error
		raw, err = d.FetchOne(ctx, "SELECT config FROM storages WHERE name = :name", map[string]any{"name": "HOME"})
		return err
	}))
	stored := raw.GetString("config")
	assert.True(t, strings.HasPrefix(stored, encryption.Prefix), "config stored in plaintext: %q", stored)
	assert.NotContains(t, stored, "hushhush")
}

func TestCreateTableSQL_CompositeUnique(t *testing.T) {
	d, err := db.New(filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })

	tbl, err := d.AddTable(NewTableDef())
	require.NoError(t, err)

	sql := tbl.CreateTableSQL()
	assert.Contains(t, sql, `UNIQUE ("tenant_id", "name")`)
	assert.Contains(t, sql, `FOREIGN KEY ("tenant_id") REFERENCES tenants("id")`)
}
