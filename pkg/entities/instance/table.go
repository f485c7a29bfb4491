// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package instance bundles the instance entity: service-wide
// configuration held in a single row (id 1), plus the service-level
// operations over the local instance directories.
//
// Configuration follows a dual pattern: name, api_token and edition
// live in typed columns, everything else in a JSON config catchall.
package instance

import (
	"context"
	"fmt"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Name is the entity name used for the table, routes and CLI group.
const Name = "instance"

// DefaultName is the display name of an unconfigured instance.
const DefaultName = "proxy"

// Editions. Community serves the local feature set; enterprise gates
// tenant API keys and cloud storage protocols.
const (
	EditionCE = "ce"
	EditionEE = "ee"
)

// singletonID is the one and only row key.
const singletonID = int64(1)

// NewTableDef declares the instance table.
func NewTableDef() db.TableDef {
	return db.TableDef{
		Name:    Name,
		PKey:    "id",
		NewPKey: func() any { return singletonID },
		Configure: func(c *db.Columns) {
			c.Add("id", db.Int)
			c.Add("name", db.String, db.Default(DefaultName))
			c.Add("api_token", db.String)
			c.Add("edition", db.String, db.Default(EditionCE))
			c.Add("config", db.String, db.JSONEncoded())
			c.Add("created_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
			c.Add("updated_at", db.Timestamp, db.ServerDefault("CURRENT_TIMESTAMP"))
		},
	}
}

// typedKeys are the config keys stored in their own columns.
var typedKeys = map[string]bool{"name": true, "api_token": true, "edition": true}

// Manager wraps the instance table with its domain operations.
type Manager struct {
	tbl *db.Table
}

// Wrap returns a Manager over a registered instance table.
func Wrap(tbl *db.Table) *Manager { return &Manager{tbl: tbl} }

// Get returns the singleton row, or nil before first use.
func (m *Manager) Get(ctx context.Context) (db.Record, error) {
	rec, err := m.tbl.Record(ctx, db.RecordOpts{PKey: singletonID, IgnoreMissing: true})
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return rec, nil
}

// Ensure returns the singleton row, inserting it on first use.
func (m *Manager) Ensure(ctx context.Context) (db.Record, error) {
	rec, err := m.Get(ctx)
	if err != nil || rec != nil {
		return rec, err
	}
	if err := m.tbl.Insert(ctx, db.Record{"id": singletonID}); err != nil {
		return nil, err
	}
	return m.Get(ctx)
}

// Update writes fields into the singleton row, creating it first when
// needed.
func (m *Manager) Update(ctx context.Context, fields db.Record) error {
	if _, err := m.Ensure(ctx); err != nil {
		return err
	}
	return m.tbl.RecordToUpdate(ctx, singletonID, db.UpdaterOpts{}, func(rec db.Record) error {
		for k, v := range fields {
			rec[k] = v
		}
		return nil
	})
}

// Name returns the instance display name.
func (m *Manager) Name(ctx context.Context) (string, error) {
	rec, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	if s := rec.GetString("name"); s != "" {
		return s, nil
	}
	return DefaultName, nil
}

// SetName sets the instance display name.
func (m *Manager) SetName(ctx context.Context, name string) error {
	return m.Update(ctx, db.Record{"name": name})
}

// APIToken returns the master API token, empty when unset.
func (m *Manager) APIToken(ctx context.Context) (string, error) {
	rec, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return rec.GetString("api_token"), nil
}

// SetAPIToken sets the master API token.
func (m *Manager) SetAPIToken(ctx context.Context, token string) error {
	return m.Update(ctx, db.Record{"api_token": token})
}

// Edition returns the current edition.
func (m *Manager) Edition(ctx context.Context) (string, error) {
	rec, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	if s := rec.GetString("edition"); s != "" {
		return s, nil
	}
	return EditionCE, nil
}

// SetEdition switches the edition. Only "ce" and "ee" are accepted.
func (m *Manager) SetEdition(ctx context.Context, edition string) error {
	if edition != EditionCE && edition != EditionEE {
		return proxyerr.NewValidationError(
			fmt.Sprintf("invalid edition '%s'", edition),
			[]proxyerr.FieldError{{Field: "edition", Message: "must be 'ce' or 'ee'"}})
	}
	return m.Update(ctx, db.Record{"edition": edition})
}

// IsEnterprise reports whether the instance runs the enterprise edition.
func (m *Manager) IsEnterprise(ctx context.Context) (bool, error) {
	edition, err := m.Edition(ctx)
	return edition == EditionEE, err
}

// ConfigValue reads one configuration value, from the typed column when
// the key has one, from the JSON catchall otherwise. Missing values
// yield the fallback.
func (m *Manager) ConfigValue(ctx context.Context, key, fallback string) (string, error) {
	rec, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	var v any
	if typedKeys[key] {
		v = rec[key]
	} else {
		config, _ := rec["config"].(map[string]any)
		v = config[key]
	}
	if v == nil {
		return fallback, nil
	}
	return fmt.Sprint(v), nil
}

// SetConfigValue writes one configuration value, routed the same way as
// ConfigValue.
func (m *Manager) SetConfigValue(ctx context.Context, key, value string) error {
	if typedKeys[key] {
		return m.Update(ctx, db.Record{key: value})
	}
	rec, err := m.Ensure(ctx)
	if err != nil {
		return err
	}
	config, _ := rec["config"].(map[string]any)
	if config == nil {
		config = map[string]any{}
	}
	config[key] = value
	return m.Update(ctx, db.Record{"config": config})
}

// AllConfig merges the typed columns with the JSON catchall.
func (m *Manager) AllConfig(ctx context.Context) (map[string]any, error) {
	rec, err := m.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for key := range typedKeys {
		if rec[key] != nil {
			out[key] = rec[key]
		}
	}
	if config, ok := rec["config"].(map[string]any); ok {
		for k, v := range config {
			out[k] = v
		}
	}
	return out, nil
}
