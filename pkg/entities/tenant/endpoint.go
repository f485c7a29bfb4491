// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Default client callback paths appended to client_base_url.
const (
	DefaultSyncPath       = "/proxy/sync"
	DefaultAttachmentPath = "/proxy/attachments"
)

// SyncURL builds the sync callback URL for a tenant row, or "" when no
// base URL is configured.
func SyncURL(rec db.Record) string {
	return clientURL(rec, "client_sync_path", DefaultSyncPath)
}

// AttachmentURL builds the attachment fetch URL for a tenant row.
func AttachmentURL(rec db.Record) string {
	return clientURL(rec, "client_attachment_path", DefaultAttachmentPath)
}

func clientURL(rec db.Record, pathField, fallback string) string {
	base := rec.GetString("client_base_url")
	if base == "" {
		return ""
	}
	path := rec.GetString(pathField)
	if path == "" {
		path = fallback
	}
	return strings.TrimRight(base, "/") + path
}

// Register adds the tenants entity to a registry.
func Register(r *endpoint.Registry) {
	r.Register(Name, endpoint.Entry{
		NewTable:    NewTableDef,
		NewEndpoint: NewEndpoint,
	})
}

// NewEndpoint exposes tenant management. The whole endpoint is admin
// only, so tenant_id parameters always name the target tenant rather
// than the caller's scope.
func NewEndpoint(table *db.Table) *endpoint.Base {
	m := Wrap(table)
	ep := endpoint.New(Name, table, endpoint.WithoutCRUD())

	ep.AddMethod(endpoint.Method{
		Name: "add",
		Doc:  "Add or update a tenant configuration.",
		Params: []endpoint.Param{
			{Name: "id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString},
			{Name: "client_auth", Type: endpoint.TypeObject},
			{Name: "client_base_url", Type: endpoint.TypeString},
			{Name: "client_sync_path", Type: endpoint.TypeString},
			{Name: "client_attachment_path", Type: endpoint.TypeString},
			{Name: "rate_limits", Type: endpoint.TypeObject},
			{Name: "large_file_config", Type: endpoint.TypeObject},
			{Name: "active", Type: endpoint.TypeBool, Default: true},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			key, err := m.Add(ctx, params)
			if err != nil {
				return nil, err
			}
			rec, err := m.Require(ctx, params.GetString("id"))
			if err != nil {
				return nil, err
			}
			if key != "" {
				// Shown once, on creation only.
				rec["api_key"] = key
			}
			return rec, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get",
		Doc:  "Retrieve a single tenant configuration.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.Require(ctx, params.GetString("tenant_id"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "list",
		Doc:  "List all tenants.",
		Params: []endpoint.Param{
			{Name: "active_only", Type: endpoint.TypeBool, Default: false},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.List(ctx, params.GetBool("active_only"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "update",
		Doc:  "Update tenant configuration fields. Omitted fields keep their values.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString},
			{Name: "client_auth", Type: endpoint.TypeObject},
			{Name: "client_base_url", Type: endpoint.TypeString},
			{Name: "client_sync_path", Type: endpoint.TypeString},
			{Name: "client_attachment_path", Type: endpoint.TypeString},
			{Name: "rate_limits", Type: endpoint.TypeObject},
			{Name: "large_file_config", Type: endpoint.TypeObject},
			{Name: "active", Type: endpoint.TypeBool},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("tenant_id")
			found, err := m.Update(ctx, id, params)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, notFound(id)
			}
			return m.Require(ctx, id)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "delete",
		Doc:  "Delete a tenant and all associated data.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.Remove(ctx, params.GetString("tenant_id"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "suspend_batch",
		Doc:  "Suspend processing for a tenant, either one batch or everything.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "batch_code", Type: endpoint.TypeString},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("tenant_id")
			found, err := m.SuspendBatch(ctx, id, params.GetString("batch_code"))
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, notFound(id)
			}
			return suspensionState(ctx, m, id)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "activate_batch",
		Doc:  "Resume processing for a tenant, either one batch or everything.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "batch_code", Type: endpoint.TypeString},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("tenant_id")
			ok, err := m.ActivateBatch(ctx, id, params.GetString("batch_code"))
			if err != nil {
				return nil, err
			}
			if !ok {
				if _, err := m.Require(ctx, id); err != nil {
					return nil, err
				}
				return nil, proxyerr.NewNotFoundError(
					"cannot remove a single batch while all are suspended; activate without a batch code first", nil)
			}
			return suspensionState(ctx, m, id)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get_suspended_batches",
		Doc:  "Get the suspended batches for a tenant.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("tenant_id")
			if _, err := m.Require(ctx, id); err != nil {
				return nil, err
			}
			return suspensionState(ctx, m, id)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "create_api_key",
		Doc:  "Generate a new API key for a tenant. The key is returned once.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "expires_at", Type: endpoint.TypeInt},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("tenant_id")
			key, err := m.CreateAPIKey(ctx, id, params.GetInt("expires_at"))
			if err != nil {
				return nil, err
			}
			return db.Record{"ok": true, "tenant_id": id, "api_key": key}, nil
		},
	})

	return ep
}

func suspensionState(ctx context.Context, m *Manager, tenantID string) (db.Record, error) {
	batches, err := m.SuspendedBatches(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return db.Record{"ok": true, "tenant_id": tenantID, "suspended_batches": batches}, nil
}

func notFound(tenantID string) error {
	return proxyerr.NewNotFoundError(fmt.Sprintf("tenant '%s' not found", tenantID), nil)
}
