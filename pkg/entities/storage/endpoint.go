// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
)

// Register adds the storages entity to a registry.
func Register(r *endpoint.Registry) {
	r.Register(Name, endpoint.Entry{
		NewTable:    NewTableDef,
		NewEndpoint: NewEndpoint,
	})
}

// NewEndpoint exposes storage mount management and local browsing.
func NewEndpoint(table *db.Table) *endpoint.Base {
	m := Wrap(table)
	ep := endpoint.New(Name, table, endpoint.WithoutCRUD())

	ep.AddMethod(endpoint.Method{
		Name: "add",
		Doc:  "Add or update a storage mount for a tenant.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString, Required: true},
			{Name: "protocol", Type: endpoint.TypeString, Required: true},
			{Name: "config", Type: endpoint.TypeObject},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			tenantID := params.GetString("tenant_id")
			name := params.GetString("name")
			config, _ := params["config"].(map[string]any)
			if err := m.Add(ctx, tenantID, name, params.GetString("protocol"), config); err != nil {
				return nil, err
			}
			return m.Get(ctx, tenantID, name)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get",
		Doc:  "Retrieve a single storage mount.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.Get(ctx, params.GetString("tenant_id"), params.GetString("name"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "list",
		Doc:  "List all storage mounts of a tenant.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.List(ctx, params.GetString("tenant_id"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "delete",
		Doc:  "Delete a storage mount.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString, Required: true},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			tenantID := params.GetString("tenant_id")
			name := params.GetString("name")
			ok, err := m.Remove(ctx, tenantID, name)
			if err != nil {
				return nil, err
			}
			return db.Record{"ok": ok, "tenant_id": tenantID, "name": name}, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "list_files",
		Doc:  "List files and directories under a storage path.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "storage_name", Type: endpoint.TypeString, Required: true},
			{Name: "path", Type: endpoint.TypeString, Default: "/"},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.ListFiles(ctx, params.GetString("tenant_id"),
				params.GetString("storage_name"), params.GetString("path"))
		},
	})

	return ep
}
