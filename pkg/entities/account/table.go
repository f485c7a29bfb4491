// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package account bundles the accounts entity: per-tenant upstream
// resource configurations keyed by (tenant_id, id). The base endpoint
// exposes only the generic fields; domain proxies layer their own
// parameters on top through the registry's endpoint wrappers.
package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Name is the entity name used for the table, routes and CLI group.
const Name = "accounts"

// DefaultTTL is the connection cache lifetime in seconds.
const DefaultTTL = 300

// NewTableDef declares the accounts table. Rows are addressed by a
// surrogate UUID while (tenant_id, id) stays unique.
func NewTableDef() db.TableDef {
	return db.TableDef{
		Name: Name,
		PKey: "pk",
		Configure: func(c *db.Columns) {
			c.Add("pk", db.String)
			c.Add("id", db.String, db.NotNull())
			c.Add("tenant_id", db.String, db.NotNull()).Relation("tenants", true)
			c.Add("name", db.String)
			c.Add("host", db.String)
			c.Add("port", db.Int)
			c.Add("user", db.String)
			c.Add("password", db.String, db.Encrypted())
			c.Add("ttl", db.Int, db.Default(DefaultTTL))
			c.Add("limit_per_minute", db.Int)
			c.Add("limit_per_hour", db.Int)
			c.Add("limit_per_day", db.Int)
			c.Add("limit_behavior", db.String)
			c.Add("use_tls", db.Int)
			c.Add("batch_size", db.Int)
			c.Add("config", db.String, db.JSONEncoded())
			c.Add("created_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
			c.Add("updated_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
		},
		CreateSQL: func(sql string) string {
			i := strings.LastIndex(sql, ")")
			return sql[:i] + ",\n    UNIQUE (\"tenant_id\", \"id\")\n)"
		},
		PostSync: func(ctx context.Context, t *db.Table) {
			// Legacy databases predate the table-level constraint.
			_, _ = t.Exec(ctx,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_tenant_id ON accounts ("tenant_id", "id")`, nil)
		},
	}
}

// listColumns is the list projection. The password column stays out.
var listColumns = []string{
	"pk", "id", "tenant_id", "name", "host", "port", "user", "ttl",
	"limit_per_minute", "limit_per_hour", "limit_per_day",
	"limit_behavior", "use_tls", "batch_size", "config",
	"created_at", "updated_at",
}

// Manager wraps the accounts table with its domain operations.
type Manager struct {
	tbl *db.Table
}

// Wrap returns a Manager over a registered accounts table.
func Wrap(tbl *db.Table) *Manager { return &Manager{tbl: tbl} }

// Add inserts or updates the full domain configuration of an account,
// matching on (tenant_id, id). Returns the surrogate key.
func (m *Manager) Add(ctx context.Context, acc db.Record) (string, error) {
	key := db.Record{"tenant_id": acc.GetString("tenant_id"), "id": acc.GetString("id")}

	err := m.tbl.RecordToUpdate(ctx, key, db.UpdaterOpts{InsertMissing: true}, func(rec db.Record) error {
		rec["host"] = acc["host"]
		if acc.Has("port") {
			rec["port"] = acc.GetInt("port")
		} else {
			rec["port"] = nil
		}
		rec["user"] = acc["user"]
		rec["password"] = acc["password"]
		rec["ttl"] = intOrDefault(acc, "ttl", DefaultTTL)
		rec["limit_per_minute"] = acc["limit_per_minute"]
		rec["limit_per_hour"] = acc["limit_per_hour"]
		rec["limit_per_day"] = acc["limit_per_day"]
		rec["limit_behavior"] = stringOrDefault(acc, "limit_behavior", "defer")
		rec["use_tls"] = triStateInt(acc, "use_tls")
		rec["batch_size"] = acc["batch_size"]
		return nil
	})
	if err != nil {
		return "", err
	}

	rec, err := m.tbl.Record(ctx, db.RecordOpts{Where: key, Columns: []string{"pk"}})
	if err != nil {
		return "", err
	}
	return rec.GetString("pk"), nil
}

// Get fetches one account by tenant and account id.
func (m *Manager) Get(ctx context.Context, tenantID, accountID string) (db.Record, error) {
	rec, err := m.tbl.Record(ctx, db.RecordOpts{
		Where: map[string]any{"tenant_id": tenantID, "id": accountID},
	})
	if proxyerr.IsNotFound(err) {
		return nil, notFound(tenantID, accountID)
	}
	return rec, err
}

// List returns accounts ordered by id, all tenants when tenantID is
// empty. Passwords are never included.
func (m *Manager) List(ctx context.Context, tenantID string) ([]db.Record, error) {
	opts := db.SelectOpts{Columns: listColumns, OrderBy: "id"}
	if tenantID != "" {
		opts.Where = map[string]any{"tenant_id": tenantID}
	}
	return m.tbl.Select(ctx, opts)
}

// Remove deletes one account, returning the number of removed rows.
func (m *Manager) Remove(ctx context.Context, tenantID, accountID string) (int64, error) {
	return m.tbl.Delete(ctx, map[string]any{"tenant_id": tenantID, "id": accountID})
}

func notFound(tenantID, accountID string) error {
	return proxyerr.NewNotFoundError(
		fmt.Sprintf("account '%s' not found for tenant '%s'", accountID, tenantID), nil)
}

func intOrDefault(rec db.Record, key string, fallback int64) int64 {
	if rec.Has(key) && rec[key] != nil {
		return rec.GetInt(key)
	}
	return fallback
}

func stringOrDefault(rec db.Record, key, fallback string) string {
	if s := rec.GetString(key); s != "" {
		return s
	}
	return fallback
}

// triStateInt maps an optional boolean to 1, 0 or NULL.
func triStateInt(rec db.Record, key string) any {
	if !rec.Has(key) || rec[key] == nil {
		return nil
	}
	if rec.GetBool(key) {
		return int64(1)
	}
	return int64(0)
}
