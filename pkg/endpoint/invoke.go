// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"context"
	"fmt"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Identity describes the caller as established by the transport layer.
// A non-admin token is resolved to a tenant inside Invoke, where a
// database connection is available.
type Identity struct {
	Token   string
	IsAdmin bool
}

// Admin returns the identity of an admin caller.
func Admin() Identity { return Identity{IsAdmin: true} }

// Invoke is the single entry point used by every channel.
//
// Pipeline: resolve the method, open the transactional connection context
// (a no-op for table-less endpoints), resolve tenant_id from a non-admin
// token unless the parameters already carry one, JSON-decode string values
// bound for complex parameters, validate and coerce against the method's
// descriptors, then run the handler. The connection commits on normal
// return and rolls back on error.
func (b *Base) Invoke(ctx context.Context, methodName string, params db.Record, ident Identity) (any, error) {
	m, ok := b.methods[methodName]
	if !ok {
		return nil, proxyerr.NewNotFoundError(
			fmt.Sprintf("method '%s' not found on %s", methodName, b.name), nil)
	}

	var result any
	err := b.withConnection(ctx, func(ctx context.Context) error {
		input := params.Clone()

		if ident.Token != "" && !ident.IsAdmin && !input.Has("tenant_id") {
			tenantID, err := b.lookupTenant(ctx, ident.Token)
			if err != nil {
				return err
			}
			input["tenant_id"] = tenantID
		}

		CoerceJSONParams(m, input)

		validated, err := ValidateParams(m, input)
		if err != nil {
			return err
		}

		result, err = m.Handler(ctx, validated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withConnection wraps fn in the table's connection context. Table-less
// endpoints run fn directly.
func (b *Base) withConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.database == nil {
		return fn(ctx)
	}
	return b.database.WithConnection(ctx, fn)
}

// lookupTenant resolves a tenant id from an API token. An unknown or
// expired token is an invalid-token failure.
func (b *Base) lookupTenant(ctx context.Context, token string) (string, error) {
	if b.resolveTenant == nil {
		return "", proxyerr.NewInvalidTokenError("invalid API token")
	}
	id, err := b.resolveTenant(ctx, token)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", proxyerr.NewInvalidTokenError("invalid API token")
	}
	return id, nil
}
