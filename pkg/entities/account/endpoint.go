// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
)

// Register adds the accounts entity to a registry.
func Register(r *endpoint.Registry) {
	r.Register(Name, endpoint.Entry{
		NewTable:    NewTableDef,
		NewEndpoint: NewEndpoint,
	})
}

// NewEndpoint exposes generic account management. Tenant callers reach
// it with their own scope injected; admins address any tenant via the
// tenant_id parameter.
func NewEndpoint(table *db.Table) *endpoint.Base {
	m := Wrap(table)
	ep := endpoint.New(Name, table, endpoint.WithoutCRUD())

	ep.AddMethod(endpoint.Method{
		Name: "add",
		Doc:  "Add or update an account configuration.",
		Params: []endpoint.Param{
			{Name: "id", Type: endpoint.TypeString, Required: true},
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
			{Name: "name", Type: endpoint.TypeString},
			{Name: "config", Type: endpoint.TypeObject},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			tenantID := params.GetString("tenant_id")
			id := params.GetString("id")
			key := db.Record{"tenant_id": tenantID, "id": id}
			err := table.RecordToUpdate(ctx, key, db.UpdaterOpts{InsertMissing: true}, func(rec db.Record) error {
				name := params.GetString("name")
				if name == "" {
					name = id
				}
				rec["name"] = name
				rec["config"] = params["config"]
				return nil
			})
			if err != nil {
				return nil, err
			}
			return m.Get(ctx, tenantID, id)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get",
		Doc:  "Retrieve a single account by tenant and id.",
		Params: []endpoint.Param{
			{Name: "account_id", Type: endpoint.TypeString, Required: true},
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.Get(ctx, params.GetString("tenant_id"), params.GetString("account_id"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "list",
		Doc:  "List all accounts for a tenant.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.List(ctx, params.GetString("tenant_id"))
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "delete",
		Doc:  "Delete an account.",
		Params: []endpoint.Param{
			{Name: "account_id", Type: endpoint.TypeString, Required: true},
			{Name: "tenant_id", Type: endpoint.TypeString, Required: true},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.Remove(ctx, params.GetString("tenant_id"), params.GetString("account_id"))
		},
	})

	return ep
}
