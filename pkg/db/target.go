// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/genropy/gproxy/pkg/proxyerr"
)

// TargetKind identifies the backend family selected by a connection string.
type TargetKind string

// Backend families.
const (
	TargetSQLite   TargetKind = "sqlite"
	TargetPostgres TargetKind = "postgres"
)

// Target is a parsed connection string.
type Target struct {
	Kind TargetKind
	// DSN is the backend-specific connection info: a file path or
	// ":memory:" for SQLite, a URL for PostgreSQL.
	DSN string
}

// ParseTarget classifies a connection string.
//
// SQLite: an absolute path, a ./relative path, ":memory:", or an explicit
// "sqlite:" prefix. PostgreSQL: a postgresql:// or postgres:// URL.
// Anything else is a configuration error.
func ParseTarget(s string) (Target, error) {
	switch {
	case s == ":memory:":
		return Target{Kind: TargetSQLite, DSN: ":memory:"}, nil
	case strings.HasPrefix(s, "sqlite:"):
		return Target{Kind: TargetSQLite, DSN: strings.TrimPrefix(s, "sqlite:")}, nil
	case strings.HasPrefix(s, "postgresql://"), strings.HasPrefix(s, "postgres://"):
		return Target{Kind: TargetPostgres, DSN: s}, nil
	case filepath.IsAbs(s), strings.HasPrefix(s, "./"):
		return Target{Kind: TargetSQLite, DSN: s}, nil
	}
	return Target{}, proxyerr.NewConfigurationError(
		"unrecognized database target: use a sqlite path or a postgresql:// URL", nil)
}

// OpenAdapter builds the adapter for a connection string.
func OpenAdapter(connString string) (Adapter, error) {
	target, err := ParseTarget(connString)
	if err != nil {
		return nil, err
	}
	switch target.Kind {
	case TargetPostgres:
		return NewPostgresAdapter(target.DSN, 10)
	default:
		return NewSQLiteAdapter(target.DSN)
	}
}

// sortedKeys returns the map's keys in deterministic order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
