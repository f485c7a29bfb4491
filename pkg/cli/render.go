// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/genropy/gproxy/pkg/db"
)

// PrintResult renders an endpoint result for terminal consumption: record
// lists become tables, single records become key/value lines, scalar
// lists become bullets and anything else prints as-is.
func PrintResult(w io.Writer, result any) error {
	switch v := result.(type) {
	case nil:
		return nil
	case []db.Record:
		rows := make([]map[string]any, len(v))
		for i, rec := range v {
			rows[i] = rec
		}
		return printTable(w, rows)
	case []map[string]any:
		return printTable(w, v)
	case db.Record:
		printRecord(w, v)
		return nil
	case map[string]any:
		printRecord(w, v)
		return nil
	case []any:
		if rows, ok := recordRows(v); ok {
			return printTable(w, rows)
		}
		for _, item := range v {
			fmt.Fprintf(w, "  • %v\n", item)
		}
		return nil
	case []string:
		for _, item := range v {
			fmt.Fprintf(w, "  • %s\n", item)
		}
		return nil
	default:
		fmt.Fprintln(w, cellValue(v))
		return nil
	}
}

// recordRows converts a []any whose elements are all maps into rows.
func recordRows(items []any) ([]map[string]any, bool) {
	if len(items) == 0 {
		return nil, false
	}
	rows := make([]map[string]any, len(items))
	for i, item := range items {
		switch m := item.(type) {
		case map[string]any:
			rows[i] = m
		case db.Record:
			rows[i] = m
		default:
			return nil, false
		}
	}
	return rows, true
}

func printRecord(w io.Writer, rec map[string]any) {
	for _, key := range columnOrder([]map[string]any{rec}) {
		fmt.Fprintf(w, "%s: %s\n", key, cellValue(rec[key]))
	}
}

func printTable(w io.Writer, rows []map[string]any) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	headers := columnOrder(rows)
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, key := range headers {
			cells[i] = cellValue(row[key])
		}
		if err := table.Append(cells); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// columnOrder returns the union of row keys, id first, rest sorted.
func columnOrder(rows []map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	for i, key := range keys {
		if key == "id" && i > 0 {
			copy(keys[1:i+1], keys[:i])
			keys[0] = "id"
			break
		}
	}
	return keys
}

// cellValue formats one value for display. Structured values render as
// compact JSON so they stay on one line.
func cellValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, db.Record, []any, []string:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}
