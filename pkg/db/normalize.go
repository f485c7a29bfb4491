// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"strings"
	"time"
)

// Column name patterns that should be converted from 0/1 to false/true.
var boolPrefixes = []string{"is_", "use_", "has_"}

var boolNames = map[string]bool{
	"active":  true,
	"enabled": true,
	"ssl":     true,
	"tls":     true,
}

// Column name patterns for timestamp columns.
var timestampSuffixes = []string{"_at", "_date", "_time"}

var timestampNames = map[string]bool{
	"created":   true,
	"updated":   true,
	"timestamp": true,
	"expires":   true,
}

func isBoolColumn(name string) bool {
	for _, p := range boolPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return boolNames[name]
}

func isTimestampColumn(name string) bool {
	for _, s := range timestampSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return timestampNames[name]
}

// normalizeRow reconciles driver values so both backends behave alike:
// 0/1 integers become booleans for boolean-looking column names, and
// ISO-8601 or SQLite datetime strings become time.Time for
// timestamp-looking column names. Values that don't fit pass through.
func normalizeRow(row Record) Record {
	for key, value := range row {
		if value == nil {
			continue
		}

		switch v := value.(type) {
		case string:
			if isTimestampColumn(key) {
				if ts, ok := parseTimestamp(v); ok {
					row[key] = ts
				}
			}
		case int64:
			if (v == 0 || v == 1) && isBoolColumn(key) {
				row[key] = v == 1
			}
		}
	}
	return row
}

// timestampLayouts are tried in order when parsing stored datetime text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
