// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"context"
	"fmt"
	"sort"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// TenantResolver maps an API token to a tenant id. Implemented by the
// tenants entity and injected at proxy wiring time.
type TenantResolver func(ctx context.Context, token string) (string, error)

// Base is an endpoint: a named set of methods over an optional table.
// Table-less endpoints (such as the process supervisor) run their methods
// without a database connection context.
type Base struct {
	name     string
	table    *db.Table
	database *db.DB
	defaults Defaults
	methods  map[string]*Method

	resolveTenant TenantResolver
}

// Option configures a Base during construction.
type Option func(*baseOptions)

type baseOptions struct {
	defaults Defaults
	noCRUD   bool
}

// WithDefaults replaces the endpoint-level channel axes.
func WithDefaults(d Defaults) Option {
	return func(o *baseOptions) { o.defaults = d }
}

// WithoutCRUD skips the generated list/get/add/delete methods.
func WithoutCRUD() Option {
	return func(o *baseOptions) { o.noCRUD = true }
}

// New builds an endpoint over table (which may be nil). Table-backed
// endpoints start with generated list, get, add and delete methods;
// AddMethod with the same name replaces them.
func New(name string, table *db.Table, opts ...Option) *Base {
	o := baseOptions{defaults: DefaultChannels()}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Base{
		name:     name,
		table:    table,
		defaults: o.defaults,
		methods:  make(map[string]*Method),
	}
	if table != nil {
		b.database = table.DB()
		if !o.noCRUD {
			b.addCRUDMethods()
		}
	}
	return b
}

// Name returns the endpoint name used as URL prefix and CLI group.
func (b *Base) Name() string { return b.name }

// Table returns the backing table, or nil for table-less endpoints.
func (b *Base) Table() *db.Table { return b.table }

// Channel defaults for this endpoint.
func (b *Base) Defaults() Defaults { return b.defaults }

// SetTenantResolver installs the token-to-tenant lookup used by Invoke.
func (b *Base) SetTenantResolver(r TenantResolver) { b.resolveTenant = r }

// AddMethod registers m, replacing any method with the same name.
func (b *Base) AddMethod(m Method) *Base {
	b.methods[m.Name] = &m
	return b
}

// Method returns the named method.
func (b *Base) Method(name string) (*Method, bool) {
	m, ok := b.methods[name]
	return m, ok
}

// Methods returns all methods sorted by name.
func (b *Base) Methods() []*Method {
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Method, 0, len(names))
	for _, name := range names {
		out = append(out, b.methods[name])
	}
	return out
}

// HTTPMethod resolves the verb for a method: the per-method post override
// when set, the endpoint default otherwise.
func (b *Base) HTTPMethod(name string) string {
	post := b.defaults.Post
	if m, ok := b.methods[name]; ok && m.Post != nil {
		post = *m.Post
	}
	if post {
		return "POST"
	}
	return "GET"
}

// IsAvailable reports whether the method is exposed on the given channel.
func (b *Base) IsAvailable(name, channel string) bool {
	m, ok := b.methods[name]
	if !ok {
		return false
	}

	var override *bool
	var fallback bool
	switch channel {
	case ChannelAPI:
		override, fallback = m.API, b.defaults.API
	case ChannelCLI:
		override, fallback = m.CLI, b.defaults.CLI
	case ChannelREPL:
		override, fallback = m.REPL, b.defaults.REPL
	default:
		return true
	}
	if override != nil {
		return *override
	}
	return fallback
}

// IsSimpleParams reports whether every parameter fits in a query string.
// False when any parameter is an object or a list.
func (b *Base) IsSimpleParams(name string) bool {
	m, ok := b.methods[name]
	if !ok {
		return true
	}
	for _, p := range m.Params {
		if p.Type.Complex() {
			return false
		}
	}
	return true
}

// CountParams returns the number of declared parameters.
func (b *Base) CountParams(name string) int {
	if m, ok := b.methods[name]; ok {
		return len(m.Params)
	}
	return 0
}

// pkeyColumn returns the primary key column name, defaulting to "id".
func (b *Base) pkeyColumn() string {
	if b.table != nil && b.table.PKey() != "" {
		return b.table.PKey()
	}
	return "id"
}

// addCRUDMethods seeds the minimum useful surface of a table-backed
// endpoint. Entities override individual methods as needed.
func (b *Base) addCRUDMethods() {
	b.AddMethod(Method{
		Name: "list",
		Doc:  "List all records.",
		Handler: func(ctx context.Context, _ db.Record) (any, error) {
			return b.table.Select(ctx, db.SelectOpts{})
		},
	})

	b.AddMethod(Method{
		Name: "get",
		Doc:  "Get a single record by primary key.",
		Params: []Param{
			{Name: "id", Type: TypeString, Required: true},
		},
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			id := params.GetString("id")
			rec, err := b.table.Record(ctx, db.RecordOpts{PKey: id})
			if proxyerr.IsNotFound(err) {
				return nil, proxyerr.NewNotFoundError(
					fmt.Sprintf("%s '%s' not found", b.name, id), err)
			}
			return rec, err
		},
	})

	b.AddMethod(Method{
		Name: "add",
		Doc:  "Add a new record.",
		Params: []Param{
			{Name: "id", Type: TypeString, Required: true},
			{Name: "data", Type: TypeObject},
		},
		Post: Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			rec := db.Record{b.pkeyColumn(): params.GetString("id")}
			if data, ok := params["data"].(map[string]any); ok {
				for k, v := range data {
					rec[k] = v
				}
			}
			if err := b.table.Insert(ctx, rec); err != nil {
				return nil, err
			}
			return rec, nil
		},
	})

	b.AddMethod(Method{
		Name: "delete",
		Doc:  "Delete a record by primary key.",
		Params: []Param{
			{Name: "id", Type: TypeString, Required: true},
		},
		Post: Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			where := map[string]any{b.pkeyColumn(): params.GetString("id")}
			if _, err := b.table.Delete(ctx, where); err != nil {
				return nil, err
			}
			return true, nil
		},
	})
}
