// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package commandlog

import (
	"context"
	"fmt"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Register adds the command_log entity to a registry.
func Register(r *endpoint.Registry) {
	r.Register(Name, endpoint.Entry{
		NewTable:    NewTableDef,
		NewEndpoint: NewEndpoint,
	})
}

// NewEndpoint exposes the audit trail: listing, single lookup, replay
// export and purging. The router keeps the whole entity admin-only.
func NewEndpoint(table *db.Table) *endpoint.Base {
	m := Wrap(table)
	ep := endpoint.New(Name, table, endpoint.WithoutCRUD())

	ep.AddMethod(endpoint.Method{
		Name: "list",
		Doc:  "List logged commands with optional filters.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString},
			{Name: "since_ts", Type: endpoint.TypeInt},
			{Name: "until_ts", Type: endpoint.TypeInt},
			{Name: "endpoint_filter", Type: endpoint.TypeString},
			{Name: "limit", Type: endpoint.TypeInt, Default: DefaultLimit},
			{Name: "offset", Type: endpoint.TypeInt, Default: 0},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.ListCommands(ctx, Filter{
				TenantID:       params.GetString("tenant_id"),
				SinceTS:        params.GetInt("since_ts"),
				UntilTS:        params.GetInt("until_ts"),
				EndpointFilter: params.GetString("endpoint_filter"),
				Limit:          int(params.GetInt("limit")),
				Offset:         int(params.GetInt("offset")),
			})
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get",
		Doc:  "Retrieve a single command log entry.",
		Params: []endpoint.Param{
			{Name: "command_id", Type: endpoint.TypeInt, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetInt("command_id")
			rec, err := m.GetCommand(ctx, id)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, proxyerr.NewNotFoundError(fmt.Sprintf("command '%d' not found", id), nil)
			}
			return rec, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "export",
		Doc:  "Export commands in replay-friendly form.",
		Params: []endpoint.Param{
			{Name: "tenant_id", Type: endpoint.TypeString},
			{Name: "since_ts", Type: endpoint.TypeInt},
			{Name: "until_ts", Type: endpoint.TypeInt},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			return m.ExportCommands(ctx, Filter{
				TenantID: params.GetString("tenant_id"),
				SinceTS:  params.GetInt("since_ts"),
				UntilTS:  params.GetInt("until_ts"),
			})
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "purge",
		Doc:  "Delete command logs older than a threshold.",
		Params: []endpoint.Param{
			{Name: "threshold_ts", Type: endpoint.TypeInt, Required: true},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			deleted, err := m.PurgeBefore(ctx, params.GetInt("threshold_ts"))
			if err != nil {
				return nil, err
			}
			return db.Record{"ok": true, "deleted": deleted}, nil
		},
	})

	return ep
}
