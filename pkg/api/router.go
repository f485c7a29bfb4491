// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package api exposes endpoint methods as REST routes. Every method an
// endpoint makes available on the api channel becomes one route under
// /api/<entity>/<method-with-dashes>; parameter intake, validation and
// execution go through the endpoint's invoke pipeline.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
)

const (
	middlewareTimeout = 60 * time.Second

	// maxRequestBodySize caps request bodies at 1MB.
	maxRequestBodySize = 1 << 20
)

// RouterConfig carries everything the route factory needs. The zero value
// of optional fields disables the matching feature (no audit, no UI, open
// access).
type RouterConfig struct {
	Endpoints  []*endpoint.Base
	AdminToken string

	// DB and ResolveTenant serve the admin gate's tenant liveness check.
	DB            *db.DB
	ResolveTenant endpoint.TenantResolver

	// AdminEntities names the endpoints that only accept the admin token.
	AdminEntities []string

	// Audit, when set, records every POST under /api.
	Audit AuditFunc

	// UIDir is served at /ui when the directory exists.
	UIDir string
}

// NewRouter builds the chi router for one proxy instance.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
	)

	r.Get("/health", getHealth)

	adminOnly := make(map[string]bool, len(cfg.AdminEntities))
	for _, name := range cfg.AdminEntities {
		adminOnly[name] = true
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(
			requestBodySizeLimitMiddleware(maxRequestBodySize),
			authMiddleware(cfg.AdminToken),
			auditMiddleware(cfg.Audit),
		)
		for _, ep := range cfg.Endpoints {
			sub := chi.NewRouter()
			if adminOnly[ep.Name()] {
				sub.Use(requireAdmin(cfg.DB, cfg.ResolveTenant, cfg.AdminToken))
			}
			registerEndpoint(sub, ep)
			api.Mount("/"+ep.Name(), sub)
		}
	})

	if dir := cfg.UIDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			mountUI(r, dir)
		}
	}

	return r
}

func getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// registerEndpoint adds one route per api-channel method. Method names
// use dashes in paths; entity names are used verbatim.
func registerEndpoint(r chi.Router, ep *endpoint.Base) {
	for _, m := range ep.Methods() {
		if !ep.IsAvailable(m.Name, endpoint.ChannelAPI) {
			continue
		}
		path := "/" + strings.ReplaceAll(m.Name, "_", "-")
		handler := methodHandler(ep, m.Name)
		if ep.HTTPMethod(m.Name) == "POST" {
			r.Post(path, handler)
		} else {
			r.Get(path, handler)
		}
	}
}

// methodHandler adapts one endpoint method to HTTP. GET reads the query
// string into a flat string map; POST parses the JSON body, treating an
// empty or malformed body as no parameters.
func methodHandler(ep *endpoint.Base, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := db.Record{}

		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSON(w, http.StatusRequestEntityTooLarge,
						map[string]any{"error": "request body too large"})
					return
				}
				body = nil
			}
			if len(bytes.TrimSpace(body)) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil && parsed != nil {
					params = db.Record(parsed)
				}
			}
		} else {
			query := r.URL.Query()
			for key := range query {
				params[key] = query.Get(key)
			}
		}

		result, err := ep.Invoke(r.Context(), name, params, IdentityFrom(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, result)
	}
}

// requestBodySizeLimitMiddleware rejects oversized bodies: declared
// oversizes immediately, undeclared ones when the handler's read trips
// MaxBytesReader.
func requestBodySizeLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeJSON(w, http.StatusRequestEntityTooLarge,
					map[string]any{"error": "request body too large"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// mountUI serves the built UI with index.html as the default document.
func mountUI(r chi.Router, dir string) {
	index := filepath.Join(dir, "index.html")
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	})
	r.Get("/ui/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	})
	fileServer := http.StripPrefix("/ui/", http.FileServer(http.Dir(dir)))
	r.Get("/ui/*", fileServer.ServeHTTP)
}
