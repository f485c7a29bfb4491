// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/genropy/gproxy/pkg/proxyerr"
)

// AuditEntry is the audit middleware's view of one state-modifying call.
type AuditEntry struct {
	// Endpoint is "<VERB /path>", e.g. "POST /api/tenants/add".
	Endpoint string
	Token    string
	IsAdmin  bool
	Payload  string
	Status   int
	Body     string
}

// AuditFunc appends one audit record. Implementations open their own
// connection and swallow failures; a broken audit trail must never fail
// the request it describes.
type AuditFunc func(ctx context.Context, entry AuditEntry)

// captureWriter records the status and body written by the handler so
// the audit record can include the response.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

// auditMiddleware records every POST under /api. The request body is
// buffered up front so the handler still sees it.
func auditMiddleware(record AuditFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if record == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSON(w, http.StatusRequestEntityTooLarge,
						map[string]any{"error": "request body too large"})
					return
				}
				writeError(w, proxyerr.NewInternalError("failed to read request body", err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			ident := IdentityFrom(r.Context())
			record(r.Context(), AuditEntry{
				Endpoint: r.Method + " " + r.URL.Path,
				Token:    ident.Token,
				IsAdmin:  ident.IsAdmin,
				Payload:  string(payload),
				Status:   capture.status,
				Body:     capture.buf.String(),
			})
		})
	}
}
