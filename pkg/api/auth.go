// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// TokenHeader carries the caller's API token.
const TokenHeader = "X-API-Token"

type identityKey struct{}

// IdentityFrom returns the caller identity established by the auth
// middleware. Absent middleware yields an anonymous identity.
func IdentityFrom(ctx context.Context) endpoint.Identity {
	if ident, ok := ctx.Value(identityKey{}).(endpoint.Identity); ok {
		return ident
	}
	return endpoint.Identity{}
}

// authMiddleware is the regular token gate. The admin token is checked
// here with a constant-time compare; any other token passes through for
// tenant resolution inside invoke, where a connection is available.
// With no admin token configured, access is open.
func authMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			ident := endpoint.Identity{Token: token}

			if token == "" {
				if adminToken != "" {
					writeError(w, proxyerr.NewInvalidTokenError("missing API token"))
					return
				}
			} else if adminToken != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
				ident.IsAdmin = true
			}

			ctx := context.WithValue(r.Context(), identityKey{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin gates admin-only entities. A valid tenant token is
// rejected with 403 rather than 401; tenant liveness is checked in a
// dedicated connection since no transactional context exists yet.
func requireAdmin(database *db.DB, resolve endpoint.TenantResolver, adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := IdentityFrom(r.Context())

			if ident.IsAdmin || (adminToken == "" && ident.Token == "") {
				next.ServeHTTP(w, r)
				return
			}
			if ident.Token == "" {
				writeError(w, proxyerr.NewInvalidTokenError("admin token required"))
				return
			}

			var tenantID string
			if database != nil && resolve != nil {
				err := database.WithConnection(r.Context(), func(ctx context.Context) error {
					id, err := resolve(ctx, ident.Token)
					tenantID = id
					return err
				})
				if err != nil {
					writeError(w, err)
					return
				}
			}

			if tenantID != "" {
				writeError(w, proxyerr.NewForbiddenError(
					"admin token required, tenant tokens not allowed"))
				return
			}
			writeError(w, proxyerr.NewInvalidTokenError("invalid API token"))
		})
	}
}
