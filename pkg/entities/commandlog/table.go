// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package commandlog bundles the command_log entity: an append-only
// audit trail of state-changing API commands. Every row carries the
// endpoint, the tenant context, the request payload and the response
// outcome, so past activity can be traced, replayed and purged.
package commandlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/genropy/gproxy/pkg/db"
)

// Name is the entity name used for the table, routes and CLI group.
const Name = "command_log"

const (
	// DefaultLimit caps a list page when the caller does not set one.
	DefaultLimit = 100
	// ExportLimit caps a replay export.
	ExportLimit = 100000
)

// NewTableDef declares the command_log table.
func NewTableDef() db.TableDef {
	return db.TableDef{
		Name:   Name,
		PKey:   "id",
		AutoPK: true,
		Configure: func(c *db.Columns) {
			c.Add("id", db.Int)
			c.Add("command_ts", db.Int, db.NotNull())
			c.Add("endpoint", db.String, db.NotNull())
			c.Add("tenant_id", db.String)
			c.Add("payload", db.String, db.NotNull())
			c.Add("response_status", db.Int)
			c.Add("response_body", db.String)
		},
	}
}

// Entry is one command to record.
type Entry struct {
	Endpoint       string
	TenantID       string
	Payload        map[string]any
	ResponseStatus int
	ResponseBody   map[string]any
	CommandTS      int64
}

// Filter narrows a listing. Zero values leave that dimension open.
type Filter struct {
	TenantID       string
	SinceTS        int64
	UntilTS        int64
	EndpointFilter string
	Limit          int
	Offset         int
}

// Manager wraps the command_log table with its domain operations.
type Manager struct {
	tbl *db.Table
}

// Wrap returns a Manager over a registered command_log table.
func Wrap(tbl *db.Table) *Manager { return &Manager{tbl: tbl} }

// LogCommand appends one audit row and returns its id. The timestamp
// defaults to now; payload and response body are stored as JSON text.
func (m *Manager) LogCommand(ctx context.Context, e Entry) (int64, error) {
	ts := e.CommandTS
	if ts == 0 {
		ts = time.Now().Unix()
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	rec := db.Record{
		"command_ts": ts,
		"endpoint":   e.Endpoint,
		"payload":    string(encoded),
	}
	if e.TenantID != "" {
		rec["tenant_id"] = e.TenantID
	}
	if e.ResponseStatus != 0 {
		rec["response_status"] = int64(e.ResponseStatus)
	}
	if e.ResponseBody != nil {
		body, err := json.Marshal(e.ResponseBody)
		if err != nil {
			return 0, err
		}
		rec["response_body"] = string(body)
	}

	if err := m.tbl.Insert(ctx, rec); err != nil {
		return 0, err
	}
	return rec.GetInt("id"), nil
}

// ListCommands returns audit rows matching the filter, oldest first.
// JSON columns are decoded when they parse; malformed text comes back
// as-is.
func (m *Manager) ListCommands(ctx context.Context, f Filter) ([]db.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := m.tbl.Query().OrderBy("command_ts ASC, id ASC").Limit(limit).Offset(offset)

	var conds []string
	if f.TenantID != "" {
		q.Pred("tenant", "tenant_id", "=", f.TenantID)
		conds = append(conds, "$tenant")
	}
	if f.SinceTS > 0 {
		q.Pred("since", "command_ts", ">=", f.SinceTS)
		conds = append(conds, "$since")
	}
	if f.UntilTS > 0 {
		q.Pred("until", "command_ts", "<=", f.UntilTS)
		conds = append(conds, "$until")
	}
	if f.EndpointFilter != "" {
		q.Pred("endpoint", "endpoint", "LIKE", "%"+f.EndpointFilter+"%")
		conds = append(conds, "$endpoint")
	}
	if len(conds) > 0 {
		q.WhereExpr(strings.Join(conds, " AND "))
	}

	rows, err := q.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		decodeJSONField(row, "payload")
		decodeJSONField(row, "response_body")
	}
	return rows, nil
}

// GetCommand returns one audit row by id, or nil when absent.
func (m *Manager) GetCommand(ctx context.Context, commandID int64) (db.Record, error) {
	row, err := m.tbl.Query().Where(map[string]any{"id": commandID}).FetchOne(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	decodeJSONField(row, "payload")
	decodeJSONField(row, "response_body")
	return row, nil
}

// ExportCommands returns commands in replay form: endpoint, tenant_id,
// payload and command_ts only, oldest first.
func (m *Manager) ExportCommands(ctx context.Context, f Filter) ([]db.Record, error) {
	f.EndpointFilter = ""
	f.Limit = ExportLimit
	f.Offset = 0
	rows, err := m.ListCommands(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]db.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, db.Record{
			"endpoint":   row["endpoint"],
			"tenant_id":  row["tenant_id"],
			"payload":    row["payload"],
			"command_ts": row["command_ts"],
		})
	}
	return out, nil
}

// PurgeBefore deletes rows with command_ts older than thresholdTS and
// returns how many went away.
func (m *Manager) PurgeBefore(ctx context.Context, thresholdTS int64) (int64, error) {
	return m.tbl.Query().
		Pred("old", "command_ts", "<", thresholdTS).
		WhereExpr("$old").
		DeleteRaw(ctx)
}

// decodeJSONField replaces a JSON text column with its decoded value,
// leaving unparseable text untouched.
func decodeJSONField(rec db.Record, key string) {
	s, ok := rec[key].(string)
	if !ok || s == "" {
		return
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		rec[key] = v
	}
}
