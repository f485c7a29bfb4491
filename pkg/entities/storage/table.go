// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package storage bundles the storages entity: named storage mounts per
// tenant (HOME, SALES, ARCHIVE and so on). The community edition can
// browse local filesystem mounts; cloud protocols may be declared but
// are served by the enterprise edition.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Name is the entity name used for the table, routes and CLI group.
const Name = "storages"

// ProtocolLocal is the only protocol browsable in the community edition.
const ProtocolLocal = "local"

// NewTableDef declares the storages table. Mounts are addressed by a
// surrogate UUID while (tenant_id, name) stays unique.
func NewTableDef() db.TableDef {
	return db.TableDef{
		Name: Name,
		PKey: "pk",
		Configure: func(c *db.Columns) {
			c.Add("pk", db.String)
			c.Add("tenant_id", db.String, db.NotNull()).Relation("tenants", true)
			c.Add("name", db.String, db.NotNull())
			c.Add("protocol", db.String, db.NotNull())
			c.Add("config", db.String, db.JSONEncoded(), db.Encrypted())
			c.Add("created_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
			c.Add("updated_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
		},
		CreateSQL: func(sql string) string {
			i := strings.LastIndex(sql, ")")
			return sql[:i] + ",\n    UNIQUE (\"tenant_id\", \"name\")\n)"
		},
	}
}

// Manager wraps the storages table with its domain operations.
type Manager struct {
	tbl *db.Table
}

// Wrap returns a Manager over a registered storages table.
func Wrap(tbl *db.Table) *Manager { return &Manager{tbl: tbl} }

// Add inserts or updates a mount, matching on (tenant_id, name). A nil
// config is stored as an empty object, never as NULL.
func (m *Manager) Add(ctx context.Context, tenantID, name, protocol string, config map[string]any) error {
	key := db.Record{"tenant_id": tenantID, "name": name}
	return m.tbl.RecordToUpdate(ctx, key, db.UpdaterOpts{InsertMissing: true}, func(rec db.Record) error {
		rec["protocol"] = protocol
		if config == nil {
			config = map[string]any{}
		}
		rec["config"] = config
		return nil
	})
}

// Get fetches one mount by tenant and name.
func (m *Manager) Get(ctx context.Context, tenantID, name string) (db.Record, error) {
	rec, err := m.tbl.Record(ctx, db.RecordOpts{
		Where: map[string]any{"tenant_id": tenantID, "name": name},
	})
	if proxyerr.IsNotFound(err) {
		return nil, notFound(tenantID, name)
	}
	return rec, err
}

// List returns all mounts of a tenant ordered by name.
func (m *Manager) List(ctx context.Context, tenantID string) ([]db.Record, error) {
	return m.tbl.Select(ctx, db.SelectOpts{
		Where:   map[string]any{"tenant_id": tenantID},
		OrderBy: "name",
	})
}

// Remove deletes one mount.
func (m *Manager) Remove(ctx context.Context, tenantID, name string) (bool, error) {
	count, err := m.tbl.Delete(ctx, map[string]any{"tenant_id": tenantID, "name": name})
	return count > 0, err
}

// ListFiles lists the entries under subPath of a named mount. Each
// entry carries name, path within the mount, is_dir, size (zero for
// directories) and mtime in Unix seconds. A path that does not resolve
// to a directory inside the mount yields an empty list.
func (m *Manager) ListFiles(ctx context.Context, tenantID, name, subPath string) ([]db.Record, error) {
	mount, err := m.Get(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	if p := mount.GetString("protocol"); p != ProtocolLocal {
		return nil, proxyerr.NewConfigurationError(
			fmt.Sprintf("storage protocol '%s' is not browsable in this edition", p), nil)
	}

	config, _ := mount["config"].(map[string]any)
	basePath, _ := config["base_path"].(string)
	if basePath == "" {
		return nil, proxyerr.NewConfigurationError(
			fmt.Sprintf("storage '%s' has no base_path configured", name), nil)
	}

	// The base path fs refuses any path that climbs out of the mount.
	fs := afero.NewBasePathFs(afero.NewOsFs(), basePath)
	sub := strings.Trim(path.Clean("/"+subPath), "/")

	st, statErr := fs.Stat(sub)
	if statErr != nil || !st.IsDir() {
		return []db.Record{}, nil
	}

	infos, err := afero.ReadDir(fs, sub)
	if err != nil {
		return nil, fmt.Errorf("listing storage %q: %w", name, err)
	}

	entries := make([]db.Record, 0, len(infos))
	for _, fi := range infos {
		childPath := fi.Name()
		if sub != "" {
			childPath = sub + "/" + fi.Name()
		}
		size := fi.Size()
		if fi.IsDir() {
			size = 0
		}
		entries = append(entries, db.Record{
			"name":   fi.Name(),
			"path":   childPath,
			"is_dir": fi.IsDir(),
			"size":   size,
			"mtime":  fi.ModTime().Unix(),
		})
	}
	return entries, nil
}

func notFound(tenantID, name string) error {
	return proxyerr.NewNotFoundError(
		fmt.Sprintf("storage '%s' not found for tenant '%s'", name, tenantID), nil)
}
