// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"

	"github.com/genropy/gproxy/pkg/logger"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// statusFor maps tagged error kinds onto HTTP status codes. Anything
// untagged is an unhandled failure.
func statusFor(err error) int {
	switch {
	case proxyerr.IsValidation(err):
		return http.StatusUnprocessableEntity
	case proxyerr.IsNotFound(err):
		return http.StatusNotFound
	case proxyerr.IsInvalidToken(err):
		return http.StatusUnauthorized
	case proxyerr.IsForbidden(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

// writeData wraps a successful result in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

// writeError translates err into the error envelope. Validation errors
// expose their field list; 5xx errors are logged and return a generic
// message so no internals leak to the client.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		logger.Errorf("internal error: %v", err)
		writeJSON(w, status, map[string]any{"error": "internal server error"})
		return
	}

	if fields := proxyerr.FieldsOf(err); len(fields) > 0 {
		writeJSON(w, status, map[string]any{"error": fields})
		return
	}
	writeJSON(w, status, map[string]any{"error": proxyerr.MessageOf(err)})
}
