// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genropy/gproxy/pkg/endpoint"
)

func TestIdentityFrom(t *testing.T) {
	t.Parallel()
	ident := IdentityFrom(context.Background())
	assert.Empty(t, ident.Token)
	assert.False(t, ident.IsAdmin)
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("open instance accepts anonymous calls", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)
		rec := do(t, router, http.MethodGet, "/api/widgets/list", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("token required once admin token is set", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(cfg *RouterConfig) {
			cfg.AdminToken = "s3cret"
		})
		rec := do(t, router, http.MethodGet, "/api/widgets/list", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing API token", decode(t, rec)["error"])
	})

	t.Run("admin token passes without tenant resolution", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(cfg *RouterConfig) {
			cfg.AdminToken = "s3cret"
		})
		rec := do(t, router, http.MethodGet, "/api/widgets/whoami", "s3cret", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		// no tenant_id injected for the admin
		assert.Nil(t, decode(t, rec)["data"])
	})

	t.Run("tenant token resolves inside invoke", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(cfg *RouterConfig) {
			cfg.AdminToken = "s3cret"
		})
		rec := do(t, router, http.MethodGet, "/api/widgets/whoami", "tok-acme", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", decode(t, rec)["data"])
	})

	t.Run("unknown token is unauthorized", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(cfg *RouterConfig) {
			cfg.AdminToken = "s3cret"
		})
		rec := do(t, router, http.MethodGet, "/api/widgets/list", "wrong", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid API token", decode(t, rec)["error"])
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	gated := func(t *testing.T, adminToken string) http.Handler {
		t.Helper()
		return newTestRouter(t, func(cfg *RouterConfig) {
			cfg.AdminToken = adminToken
			cfg.AdminEntities = []string{"widgets"}
		})
	}

	t.Run("admin token allowed", func(t *testing.T) {
		t.Parallel()
		rec := do(t, gated(t, "s3cret"), http.MethodGet, "/api/widgets/list", "s3cret", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("open instance allows anonymous", func(t *testing.T) {
		t.Parallel()
		rec := do(t, gated(t, ""), http.MethodGet, "/api/widgets/list", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		// the outer gate answers first when a token is mandatory
		rec := do(t, gated(t, "s3cret"), http.MethodGet, "/api/widgets/list", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing API token", decode(t, rec)["error"])
	})

	t.Run("tenant token is forbidden, not unauthorized", func(t *testing.T) {
		t.Parallel()
		rec := do(t, gated(t, "s3cret"), http.MethodGet, "/api/widgets/list", "tok-acme", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "admin token required, tenant tokens not allowed", decode(t, rec)["error"])
	})

	t.Run("unknown token is unauthorized", func(t *testing.T) {
		t.Parallel()
		rec := do(t, gated(t, "s3cret"), http.MethodGet, "/api/widgets/list", "bogus", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid API token", decode(t, rec)["error"])
	})

	t.Run("anonymous with token-bearing tenants still blocked", func(t *testing.T) {
		t.Parallel()
		// no admin token, but the caller presents a tenant token anyway
		rec := do(t, gated(t, ""), http.MethodGet, "/api/widgets/list", "tok-acme", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRequireAdmin_NoResolver(t *testing.T) {
	t.Parallel()
	// without a resolver every non-admin token is simply invalid
	router := newTestRouter(t, func(cfg *RouterConfig) {
		cfg.AdminToken = "s3cret"
		cfg.AdminEntities = []string{"widgets"}
		cfg.DB = nil
		cfg.ResolveTenant = nil
	})
	rec := do(t, router, http.MethodGet, "/api/widgets/list", "tok-acme", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid API token", decode(t, rec)["error"])
}

func TestAuthMiddleware_IdentityPropagation(t *testing.T) {
	t.Parallel()
	var seen endpoint.Identity
	probe := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = IdentityFrom(r.Context())
			next.ServeHTTP(w, r)
		})
	}

	handler := authMiddleware("s3cret")(probe(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })))

	rec := do(t, handler, http.MethodGet, "/anything", "s3cret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.IsAdmin)
	assert.Equal(t, "s3cret", seen.Token)
}
