// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"time"
)

// Record is a single database row keyed by column name. Values are the
// adapter's normalized types: int64, float64, string, bool, time.Time,
// []byte or nil, plus decoded JSON values for json-encoded columns.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// GetString returns the named value as a string, or "" when absent or nil.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// GetInt returns the named value as an int64, accepting the integer widths
// drivers hand back. Returns 0 when absent or not numeric.
func (r Record) GetInt(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return 0
}

// GetBool returns the named value as a bool. Integer 0/1 counts.
func (r Record) GetBool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// GetTime returns the named value as a time.Time, zero when absent.
func (r Record) GetTime(key string) time.Time {
	if v, ok := r[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Has reports whether the key is present, even with a nil value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}
