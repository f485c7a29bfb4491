// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package tenant bundles the tenants entity: per-tenant client
// configuration, API key issuance and batch suspension state. In
// single-tenant deployments the implicit "default" tenant stands in for
// an explicit configuration.
package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/encryption"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Name is the entity name used for the table, routes and CLI group.
const Name = "tenants"

// DefaultID is the implicit tenant used when none is configured.
const DefaultID = "default"

// SuspendAll is the suspension marker that blocks every batch.
const SuspendAll = "*"

// TransientKeyField carries a freshly minted API key out of the insert
// trigger. The key is never stored; callers surface it exactly once.
const TransientKeyField = "_api_key"

// NewTableDef declares the tenants table.
func NewTableDef() db.TableDef {
	return db.TableDef{
		Name: Name,
		PKey: "id",
		Configure: func(c *db.Columns) {
			c.Add("id", db.String)
			c.Add("name", db.String)
			c.Add("client_auth", db.String, db.JSONEncoded())
			c.Add("client_base_url", db.String)
			c.Add("client_sync_path", db.String)
			c.Add("client_attachment_path", db.String)
			c.Add("rate_limits", db.String, db.JSONEncoded())
			c.Add("large_file_config", db.String, db.JSONEncoded())
			c.Add("active", db.Int, db.Default(1))
			c.Add("suspended_batches", db.String)
			c.Add("api_key_hash", db.String)
			// Unix seconds; NULL or zero means the key never expires.
			c.Add("api_key_expires_at", db.Int)
			c.Add("created_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
			c.Add("updated_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
		},
		OnInserting: mintAPIKey,
	}
}

// mintAPIKey generates an API key for every new tenant. Only the hash
// reaches the row; the key itself rides along under TransientKeyField.
func mintAPIKey(_ context.Context, _ *db.Table, rec db.Record) error {
	key, err := encryption.NewToken()
	if err != nil {
		return err
	}
	rec["api_key_hash"] = HashKey(key)
	rec[TransientKeyField] = key
	return nil
}

// HashKey returns the hex SHA-256 digest stored for an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// errNoWrite aborts a RecordToUpdate scope without persisting anything.
var errNoWrite = errors.New("tenant: no write")

// configFields are the columns settable through add and update.
var configFields = []string{
	"name", "client_auth", "client_base_url", "client_sync_path",
	"client_attachment_path", "rate_limits", "large_file_config",
}

// Manager wraps the tenants table with its domain operations.
type Manager struct {
	tbl *db.Table
}

// Wrap returns a Manager over a registered tenants table.
func Wrap(tbl *db.Table) *Manager { return &Manager{tbl: tbl} }

// Get fetches one tenant, or nil when it does not exist.
func (m *Manager) Get(ctx context.Context, tenantID string) (db.Record, error) {
	rec, err := m.tbl.Record(ctx, db.RecordOpts{PKey: tenantID, IgnoreMissing: true})
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return rec, nil
}

// Require fetches one tenant, failing with a not-found error when absent.
func (m *Manager) Require(ctx context.Context, tenantID string) (db.Record, error) {
	rec, err := m.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, proxyerr.NewNotFoundError(fmt.Sprintf("tenant '%s' not found", tenantID), nil)
	}
	return rec, nil
}

// List returns tenant rows ordered by id, optionally only active ones.
func (m *Manager) List(ctx context.Context, activeOnly bool) ([]db.Record, error) {
	opts := db.SelectOpts{OrderBy: "id"}
	if activeOnly {
		opts.Where = map[string]any{"active": 1}
	}
	return m.tbl.Select(ctx, opts)
}

// Add inserts or updates a tenant. add is declarative: every config
// field is written from data, so omitted fields clear their columns.
// The returned key is non-empty only when the call created the tenant.
func (m *Manager) Add(ctx context.Context, data db.Record) (string, error) {
	id := data.GetString("id")
	var written db.Record
	err := m.tbl.RecordToUpdate(ctx, id, db.UpdaterOpts{InsertMissing: true}, func(rec db.Record) error {
		for _, f := range configFields {
			rec[f] = data[f]
		}
		if data.Has("active") {
			rec["active"] = boolInt(data.GetBool("active"))
		}
		written = rec
		return nil
	})
	if err != nil {
		return "", err
	}
	return written.GetString(TransientKeyField), nil
}

// Update sets only the provided non-nil fields on an existing tenant.
// Returns false when the tenant does not exist.
func (m *Manager) Update(ctx context.Context, tenantID string, fields db.Record) (bool, error) {
	found := false
	err := m.tbl.RecordToUpdate(ctx, tenantID, db.UpdaterOpts{}, func(rec db.Record) error {
		if len(rec) == 0 {
			return errNoWrite
		}
		found = true
		for _, f := range configFields {
			if v, ok := fields[f]; ok && v != nil {
				rec[f] = v
			}
		}
		if v, ok := fields["active"]; ok && v != nil {
			rec["active"] = boolInt(fields.GetBool("active"))
		}
		return nil
	})
	if errors.Is(err, errNoWrite) {
		err = nil
	}
	return found, err
}

// Remove deletes a tenant row.
func (m *Manager) Remove(ctx context.Context, tenantID string) (bool, error) {
	n, err := m.tbl.Delete(ctx, map[string]any{"id": tenantID})
	return n > 0, err
}

// EnsureDefault creates the implicit tenant used in single-tenant mode.
// Idempotent; an existing row is left untouched.
func (m *Manager) EnsureDefault(ctx context.Context) error {
	return m.tbl.RecordToUpdate(ctx, DefaultID, db.UpdaterOpts{InsertMissing: true}, func(rec db.Record) error {
		if rec.GetString("name") == "" {
			rec["name"] = "Default Tenant"
			rec["active"] = 1
		}
		return nil
	})
}

// SuspendBatch suspends one batch, or everything when batchCode is
// empty. Returns false when the tenant does not exist.
func (m *Manager) SuspendBatch(ctx context.Context, tenantID, batchCode string) (bool, error) {
	found := false
	err := m.tbl.RecordToUpdate(ctx, tenantID, db.UpdaterOpts{}, func(rec db.Record) error {
		if len(rec) == 0 {
			return errNoWrite
		}
		found = true
		if batchCode == "" {
			rec["suspended_batches"] = SuspendAll
			return nil
		}
		current := rec.GetString("suspended_batches")
		if current == SuspendAll {
			// Already fully suspended, nothing to add.
			return errNoWrite
		}
		set := batchSet(current)
		set[batchCode] = true
		rec["suspended_batches"] = joinSorted(set)
		return nil
	})
	if errors.Is(err, errNoWrite) {
		err = nil
	}
	return found, err
}

// ActivateBatch lifts one batch suspension, or all of them when
// batchCode is empty. Returns false when the tenant is missing or when
// a single batch cannot be removed from a full "*" suspension.
func (m *Manager) ActivateBatch(ctx context.Context, tenantID, batchCode string) (bool, error) {
	ok := false
	err := m.tbl.RecordToUpdate(ctx, tenantID, db.UpdaterOpts{}, func(rec db.Record) error {
		if len(rec) == 0 {
			return errNoWrite
		}
		if batchCode == "" {
			ok = true
			rec["suspended_batches"] = nil
			return nil
		}
		current := rec.GetString("suspended_batches")
		if current == SuspendAll {
			return errNoWrite
		}
		ok = true
		set := batchSet(current)
		delete(set, batchCode)
		if len(set) == 0 {
			rec["suspended_batches"] = nil
		} else {
			rec["suspended_batches"] = joinSorted(set)
		}
		return nil
	})
	if errors.Is(err, errNoWrite) {
		err = nil
	}
	return ok, err
}

// SuspendedBatches returns the sorted batch codes currently suspended
// for a tenant. A full suspension reports as ["*"]; a missing tenant
// reports as empty.
func (m *Manager) SuspendedBatches(ctx context.Context, tenantID string) ([]string, error) {
	rec, err := m.Get(ctx, tenantID)
	if err != nil || rec == nil {
		return []string{}, err
	}
	suspended := rec.GetString("suspended_batches")
	switch suspended {
	case "":
		return []string{}, nil
	case SuspendAll:
		return []string{SuspendAll}, nil
	}
	return sortedBatches(batchSet(suspended)), nil
}

// IsBatchSuspended reports whether the stored suspension marker blocks
// a batch. "*" blocks everything; unbatched work is blocked only by
// "*"; otherwise codes must match exactly.
func IsBatchSuspended(suspended, batchCode string) bool {
	if suspended == "" {
		return false
	}
	if suspended == SuspendAll {
		return true
	}
	if batchCode == "" {
		return false
	}
	return batchSet(suspended)[batchCode]
}

// CreateAPIKey mints and stores a fresh API key for the tenant,
// invalidating the previous one. A zero expiresAt never expires.
func (m *Manager) CreateAPIKey(ctx context.Context, tenantID string, expiresAt int64) (string, error) {
	key, err := encryption.NewToken()
	if err != nil {
		return "", err
	}
	err = m.tbl.RecordToUpdate(ctx, tenantID, db.UpdaterOpts{}, func(rec db.Record) error {
		if len(rec) == 0 {
			return errNoWrite
		}
		rec["api_key_hash"] = HashKey(key)
		if expiresAt > 0 {
			rec["api_key_expires_at"] = expiresAt
		} else {
			rec["api_key_expires_at"] = nil
		}
		return nil
	})
	if errors.Is(err, errNoWrite) {
		return "", proxyerr.NewNotFoundError(fmt.Sprintf("tenant '%s' not found", tenantID), nil)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// GetByToken finds the tenant owning an API key. Unknown or expired
// keys return nil without error.
func (m *Manager) GetByToken(ctx context.Context, token string) (db.Record, error) {
	rec, err := m.tbl.Record(ctx, db.RecordOpts{
		Where:         map[string]any{"api_key_hash": HashKey(token)},
		IgnoreMissing: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	if exp := rec.GetInt("api_key_expires_at"); exp > 0 && exp < time.Now().Unix() {
		return nil, nil
	}
	return rec, nil
}

// Resolver adapts the table into the token-to-tenant lookup used by the
// invocation pipeline and the admin gate.
func (m *Manager) Resolver() endpoint.TenantResolver {
	return func(ctx context.Context, token string) (string, error) {
		rec, err := m.GetByToken(ctx, token)
		if err != nil || rec == nil {
			return "", err
		}
		return rec.GetString("id"), nil
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func batchSet(current string) map[string]bool {
	set := make(map[string]bool)
	for _, b := range strings.Split(current, ",") {
		if b != "" {
			set[b] = true
		}
	}
	return set
}

func sortedBatches(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func joinSorted(set map[string]bool) string {
	return strings.Join(sortedBatches(set), ",")
}
