// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/genropy/gproxy/pkg/logger"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// TableDef declares a table: schema, primary-key policy, trigger hooks
// and schema-generation hooks. Entity packages build these and register
// them with the manager.
type TableDef struct {
	Name string
	// PKey names the primary key column; empty means no primary key.
	PKey string
	// AutoPK marks the key as server-generated (autoincrement integer).
	// Otherwise a missing key is filled by NewPKey, defaulting to a UUID.
	AutoPK  bool
	NewPKey func() any

	// Configure populates the column set. Called once at registration.
	Configure func(c *Columns)

	// Trigger hooks. The before hooks may mutate the record; returning an
	// error aborts the operation.
	OnInserting func(ctx context.Context, t *Table, rec Record) error
	OnInserted  func(ctx context.Context, t *Table, rec Record) error
	OnUpdating  func(ctx context.Context, t *Table, rec, old Record) error
	OnUpdated   func(ctx context.Context, t *Table, rec, old Record) error
	OnDeleting  func(ctx context.Context, t *Table, rec Record) error
	OnDeleted   func(ctx context.Context, t *Table, rec Record) error

	// CreateSQL post-edits the generated CREATE TABLE statement, e.g. to
	// splice a composite UNIQUE constraint before the closing paren.
	CreateSQL func(sql string) string
	// PostSync runs after column sync, e.g. to ensure indexes.
	PostSync func(ctx context.Context, t *Table)
}

// Table is a registered table manager. All query methods run on the
// connection bound to the context by the owning manager.
type Table struct {
	db      *DB
	def     TableDef
	columns *Columns
}

func newTable(d *DB, def TableDef) (*Table, error) {
	t := &Table{db: d, def: def, columns: NewColumns()}
	if def.Configure != nil {
		def.Configure(t.columns)
	}
	if def.PKey != "" && t.columns.Get(def.PKey) == nil {
		return nil, fmt.Errorf("table %s: primary key column %q not declared", def.Name, def.PKey)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.def.Name }

// PKey returns the primary key column name, empty when keyless.
func (t *Table) PKey() string { return t.def.PKey }

// Columns returns the declared column set.
func (t *Table) Columns() *Columns { return t.columns }

// DB returns the owning manager, for cross-table work inside hooks.
func (t *Table) DB() *DB { return t.db }

// NewPKeyValue generates a client-side primary key, or nil for
// server-generated keys.
func (t *Table) NewPKeyValue() any {
	if t.def.AutoPK {
		return nil
	}
	if t.def.NewPKey != nil {
		return t.def.NewPKey()
	}
	return uuid.NewString()
}

// ----------------------------------------------------------------------
// Schema
// ----------------------------------------------------------------------

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement:
// columns in declaration order, the backend's pk idiom for autoincrement
// keys, foreign keys appended after the columns.
func (t *Table) CreateTableSQL() string {
	defs := make([]string, 0, t.columns.Len()+2)
	for _, col := range t.columns.All() {
		switch {
		case col.Name == t.def.PKey && t.def.AutoPK && col.Type == Int:
			defs = append(defs, t.db.adapter.PKColumn(col.Name))
		case col.Name == t.def.PKey:
			defs = append(defs, col.DefSQL(true))
		default:
			defs = append(defs, col.DefSQL(false))
		}
	}
	for _, col := range t.columns.All() {
		if col.RelationSQL && col.RelatedTable != "" {
			defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
				quoteIdent(col.Name), col.RelatedTable, quoteIdent(col.RelatedPK)))
		}
	}

	sql := "CREATE TABLE IF NOT EXISTS " + t.def.Name + " (\n    " + strings.Join(defs, ",\n    ") + "\n)"
	if t.def.CreateSQL != nil {
		sql = t.def.CreateSQL(sql)
	}
	return sql
}

// CreateSchema creates the table if it does not exist.
func (t *Table) CreateSchema(ctx context.Context) error {
	_, err := t.db.Exec(ctx, t.CreateTableSQL(), nil)
	return err
}

// SyncSchema adds declared non-key columns missing from the live table.
// Add-column failures are logged and swallowed so startup survives
// backends without idempotent ADD COLUMN.
func (t *Table) SyncSchema(ctx context.Context) {
	for _, col := range t.columns.All() {
		if col.Name == t.def.PKey {
			continue
		}
		sql := t.db.adapter.AddColumnIfNotExistsSQL(t.def.Name, col.DefSQL(false))
		if _, err := t.db.Exec(ctx, sql, nil); err != nil {
			logger.Debugf("sync %s.%s: %v", t.def.Name, col.Name, err)
		}
	}
	if t.def.PostSync != nil {
		t.def.PostSync(ctx, t)
	}
}

// Exec runs a raw statement on the context's connection. Convenience for
// hooks and entity code.
func (t *Table) Exec(ctx context.Context, query string, params map[string]any) (int64, error) {
	return t.db.Exec(ctx, query, params)
}

// ----------------------------------------------------------------------
// JSON and encrypted column codecs
// ----------------------------------------------------------------------

func (t *Table) encodeJSONFields(data Record) (Record, error) {
	out := data.Clone()
	for _, col := range t.columns.All() {
		if !col.JSONEncoded {
			continue
		}
		v, ok := out[col.Name]
		if !ok || v == nil {
			continue
		}
		if _, isString := v.(string); isString {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s.%s: %w", t.def.Name, col.Name, err)
		}
		out[col.Name] = string(encoded)
	}
	return out, nil
}

func (t *Table) decodeJSONFields(row Record) (Record, error) {
	out := row.Clone()
	for _, col := range t.columns.All() {
		if !col.JSONEncoded {
			continue
		}
		v, ok := out[col.Name]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("decoding %s.%s: %w", t.def.Name, col.Name, err)
		}
		out[col.Name] = decoded
	}
	return out, nil
}

func (t *Table) encryptFields(data Record) (Record, error) {
	crypto := t.db.crypto
	if crypto == nil || !crypto.Configured() {
		return data, nil
	}
	out := data.Clone()
	for _, col := range t.columns.All() {
		if !col.Encrypted {
			continue
		}
		s, isString := out[col.Name].(string)
		if !isString || strings.HasPrefix(s, encPrefix) {
			continue
		}
		encrypted, err := crypto.EncryptString(s)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s.%s: %w", t.def.Name, col.Name, err)
		}
		out[col.Name] = encrypted
	}
	return out, nil
}

// decryptFields reverses encryptFields. Values that fail to decrypt are
// handed back still encrypted.
func (t *Table) decryptFields(row Record) Record {
	crypto := t.db.crypto
	if crypto == nil || !crypto.Configured() {
		return row
	}
	out := row.Clone()
	for _, col := range t.columns.All() {
		if !col.Encrypted {
			continue
		}
		s, isString := out[col.Name].(string)
		if !isString || !strings.HasPrefix(s, encPrefix) {
			continue
		}
		if plain, err := crypto.DecryptString(s); err == nil {
			out[col.Name] = plain
		}
	}
	return out
}

const encPrefix = "ENC:"

func (t *Table) decodeRow(row Record) (Record, error) {
	if row == nil {
		return nil, nil
	}
	decoded, err := t.decodeJSONFields(t.decryptFields(row))
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func (t *Table) decodeRows(rows []Record) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		decoded, err := t.decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func (t *Table) encodeRecord(rec Record) (Record, error) {
	encoded, err := t.encodeJSONFields(rec)
	if err != nil {
		return nil, err
	}
	encoded, err = t.encryptFields(encoded)
	if err != nil {
		return nil, err
	}
	return t.stripUndeclared(encoded), nil
}

// stripUndeclared drops keys with no declared column, so triggers can
// stash transient values in a record without them reaching the SQL.
// Tables declared without columns keep everything.
func (t *Table) stripUndeclared(rec Record) Record {
	if t.columns.Len() == 0 {
		return rec
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		if t.columns.Get(k) != nil {
			out[k] = v
		}
	}
	return out
}

// ----------------------------------------------------------------------
// Triggers
// ----------------------------------------------------------------------

func (t *Table) applyInserting(ctx context.Context, rec Record) error {
	if t.def.PKey != "" && !rec.Has(t.def.PKey) {
		if pk := t.NewPKeyValue(); pk != nil {
			rec[t.def.PKey] = pk
		}
	}
	if t.def.OnInserting != nil {
		return t.def.OnInserting(ctx, t, rec)
	}
	return nil
}

func (t *Table) applyInserted(ctx context.Context, rec Record) error {
	if t.def.OnInserted != nil {
		return t.def.OnInserted(ctx, t, rec)
	}
	return nil
}

func (t *Table) applyUpdating(ctx context.Context, rec, old Record) error {
	if t.def.OnUpdating != nil {
		return t.def.OnUpdating(ctx, t, rec, old)
	}
	return nil
}

func (t *Table) applyUpdated(ctx context.Context, rec, old Record) error {
	if t.def.OnUpdated != nil {
		return t.def.OnUpdated(ctx, t, rec, old)
	}
	return nil
}

func (t *Table) applyDeleting(ctx context.Context, rec Record) error {
	if t.def.OnDeleting != nil {
		return t.def.OnDeleting(ctx, t, rec)
	}
	return nil
}

func (t *Table) applyDeleted(ctx context.Context, rec Record) error {
	if t.def.OnDeleted != nil {
		return t.def.OnDeleted(ctx, t, rec)
	}
	return nil
}

// ----------------------------------------------------------------------
// CRUD
// ----------------------------------------------------------------------

// Insert adds one row with the full trigger chain. data is mutated: a
// generated primary key (UUID or server-side) is written back into it.
func (t *Table) Insert(ctx context.Context, data Record) error {
	if err := t.applyInserting(ctx, data); err != nil {
		return err
	}
	encoded, err := t.encodeRecord(data)
	if err != nil {
		return err
	}

	if t.def.PKey != "" && !data.Has(t.def.PKey) {
		id, err := t.db.InsertReturningID(ctx, t.def.Name, encoded, t.def.PKey)
		if err != nil {
			return err
		}
		data[t.def.PKey] = id
	} else {
		if _, err := t.db.Insert(ctx, t.def.Name, encoded); err != nil {
			return err
		}
	}
	return t.applyInserted(ctx, data)
}

// InsertRaw adds one row bypassing triggers, encoding and encryption.
func (t *Table) InsertRaw(ctx context.Context, data Record) error {
	_, err := t.db.Insert(ctx, t.def.Name, data)
	return err
}

// Select returns decoded rows matching an equality where-map.
func (t *Table) Select(ctx context.Context, opts SelectOpts) ([]Record, error) {
	rows, err := t.db.Select(ctx, t.def.Name, opts)
	if err != nil {
		return nil, err
	}
	return t.decodeRows(rows)
}

// SelectRaw returns rows without JSON decoding or decryption.
func (t *Table) SelectRaw(ctx context.Context, opts SelectOpts) ([]Record, error) {
	return t.db.Select(ctx, t.def.Name, opts)
}

// RecordOpts controls a single-record fetch.
type RecordOpts struct {
	// PKey selects by primary key; Where by equality map. One is required.
	PKey  any
	Where map[string]any

	// IgnoreMissing returns an empty record instead of a not-found error.
	IgnoreMissing bool
	// IgnoreDuplicate returns the first row instead of a duplicate error.
	IgnoreDuplicate bool
	// ForUpdate locks the row on backends that support it.
	ForUpdate bool

	Columns []string
	Raw     bool
}

// Record fetches exactly one row. Missing rows surface a not-found
// error, several matches a duplicate error, unless the corresponding
// opt relaxes the check.
func (t *Table) Record(ctx context.Context, opts RecordOpts) (Record, error) {
	where, err := t.recordWhere(opts)
	if err != nil {
		return nil, err
	}

	var rows []Record
	if opts.ForUpdate {
		row, err := t.selectForUpdate(ctx, where, opts.Columns)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = []Record{row}
		}
	} else {
		// Limit 2 so duplicates are detectable without a full scan.
		rows, err = t.db.Select(ctx, t.def.Name, SelectOpts{Columns: opts.Columns, Where: where, Limit: 2})
		if err != nil {
			return nil, err
		}
		if !opts.Raw {
			if rows, err = t.decodeRows(rows); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case len(rows) == 0:
		if opts.IgnoreMissing {
			return Record{}, nil
		}
		return nil, proxyerr.NewNotFoundError(t.notFoundMessage(opts), nil)
	case len(rows) > 1 && !opts.IgnoreDuplicate:
		count, _ := t.db.Count(ctx, t.def.Name, where)
		return nil, proxyerr.NewDuplicateError(
			fmt.Sprintf("expected 1 record in '%s', found %d", t.def.Name, count), nil)
	default:
		return rows[0], nil
	}
}

func (t *Table) recordWhere(opts RecordOpts) (map[string]any, error) {
	if opts.PKey != nil {
		if t.def.PKey == "" {
			return nil, fmt.Errorf("table %s has no primary key defined", t.def.Name)
		}
		return map[string]any{t.def.PKey: opts.PKey}, nil
	}
	if len(opts.Where) > 0 {
		return opts.Where, nil
	}
	return nil, fmt.Errorf("record fetch requires a key or a where-map")
}

func (t *Table) notFoundMessage(opts RecordOpts) string {
	if opts.PKey != nil {
		return fmt.Sprintf("record not found in '%s' with %s=%v", t.def.Name, t.def.PKey, opts.PKey)
	}
	return fmt.Sprintf("record not found in '%s'", t.def.Name)
}

// selectForUpdate fetches one decoded row holding the backend's row lock.
func (t *Table) selectForUpdate(ctx context.Context, where map[string]any, columns []string) (Record, error) {
	colsSQL := "*"
	if len(columns) > 0 {
		colsSQL = strings.Join(columns, ", ")
	}
	conds := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		conds = append(conds, k+" = "+t.db.adapter.Placeholder(k))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s",
		colsSQL, t.def.Name, strings.Join(conds, " AND "), t.db.adapter.ForUpdateClause())

	row, err := t.db.FetchOne(ctx, query, where)
	if err != nil {
		return nil, err
	}
	return t.decodeRow(row)
}

// UpdaterOpts controls a RecordToUpdate scope.
type UpdaterOpts struct {
	// InsertMissing turns a missing record into an insert (upsert).
	InsertMissing bool
	// NoLock skips the row lock; the default locks.
	NoLock bool
	// Raw writes without triggers, encoding or encryption.
	Raw bool
	// Initial seeds the record before fn runs. Nil values are skipped.
	Initial Record
}

// RecordToUpdate fetches the record named by key (a primary key value or
// a composite where-map), hands it to fn for editing, then persists it
// with the full trigger chain. A missing record becomes an insert when
// InsertMissing is set and a silent no-op otherwise. fn returning an
// error abandons the write.
func (t *Table) RecordToUpdate(ctx context.Context, key any, opts UpdaterOpts, fn func(rec Record) error) error {
	where, err := t.updaterWhere(key)
	if err != nil {
		return err
	}

	old, err := t.Record(ctx, RecordOpts{Where: where, IgnoreMissing: true, ForUpdate: !opts.NoLock})
	if err != nil {
		return err
	}

	var rec Record
	isInsert := false
	if len(old) == 0 {
		old = nil
		rec = Record{}
		if opts.InsertMissing {
			for k, v := range where {
				rec[k] = v
			}
			isInsert = true
		}
	} else {
		rec = old.Clone()
	}
	for k, v := range opts.Initial {
		if v != nil {
			rec[k] = v
		}
	}

	if err := fn(rec); err != nil {
		return err
	}
	if len(rec) == 0 {
		return nil
	}

	switch {
	case isInsert && opts.Raw:
		return t.InsertRaw(ctx, rec)
	case isInsert:
		return t.Insert(ctx, rec)
	case old != nil && opts.Raw:
		_, err := t.UpdateRaw(ctx, rec, where)
		return err
	case old != nil:
		_, err := t.Update(ctx, rec, where)
		return err
	}
	return nil
}

func (t *Table) updaterWhere(key any) (map[string]any, error) {
	switch k := key.(type) {
	case Record:
		return k, nil
	case map[string]any:
		return k, nil
	default:
		if t.def.PKey == "" {
			return nil, fmt.Errorf("table %s has no primary key defined", t.def.Name)
		}
		return map[string]any{t.def.PKey: key}, nil
	}
}

// Update rewrites matching rows with the trigger chain: the current row
// is fetched under lock, on-updating may mutate the values, encoding and
// encryption apply, and on-updated fires when a row actually changed.
func (t *Table) Update(ctx context.Context, values Record, where map[string]any) (int64, error) {
	old, err := t.selectForUpdate(ctx, where, nil)
	if err != nil {
		return 0, err
	}
	if old == nil {
		old = Record{}
	}
	if err := t.applyUpdating(ctx, values, old); err != nil {
		return 0, err
	}
	encoded, err := t.encodeRecord(values)
	if err != nil {
		return 0, err
	}
	affected, err := t.db.Update(ctx, t.def.Name, encoded, where)
	if err != nil {
		return 0, err
	}
	if affected > 0 && len(old) > 0 {
		if err := t.applyUpdated(ctx, values, old); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// UpdateRaw rewrites matching rows without triggers or encoding.
func (t *Table) UpdateRaw(ctx context.Context, values Record, where map[string]any) (int64, error) {
	return t.db.Update(ctx, t.def.Name, values, where)
}

// Delete removes matching rows, firing delete triggers around the
// statement when a record matched.
func (t *Table) Delete(ctx context.Context, where map[string]any) (int64, error) {
	rec, err := t.Record(ctx, RecordOpts{Where: where, IgnoreMissing: true, IgnoreDuplicate: true})
	if err != nil {
		return 0, err
	}
	if len(rec) > 0 {
		if err := t.applyDeleting(ctx, rec); err != nil {
			return 0, err
		}
	}
	affected, err := t.db.Delete(ctx, t.def.Name, where)
	if err != nil {
		return 0, err
	}
	if affected > 0 && len(rec) > 0 {
		if err := t.applyDeleted(ctx, rec); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// DeleteRaw removes matching rows without triggers.
func (t *Table) DeleteRaw(ctx context.Context, where map[string]any) (int64, error) {
	return t.db.Delete(ctx, t.def.Name, where)
}

// Exists reports whether any row matches.
func (t *Table) Exists(ctx context.Context, where map[string]any) (bool, error) {
	return t.db.Exists(ctx, t.def.Name, where)
}

// Count returns the number of matching rows.
func (t *Table) Count(ctx context.Context, where map[string]any) (int64, error) {
	return t.db.Count(ctx, t.def.Name, where)
}

// ----------------------------------------------------------------------
// Batch update
// ----------------------------------------------------------------------

// BatchUpdate applies values to the named keys one row at a time with
// the full trigger chain.
func (t *Table) BatchUpdate(ctx context.Context, pkeys []any, values Record) (int64, error) {
	return t.batchUpdate(ctx, pkeys, func(rec Record) bool {
		for k, v := range values {
			rec[k] = v
		}
		return true
	})
}

// BatchUpdateFunc edits each keyed row through fn, which may mutate the
// record in place and return false to skip that row.
func (t *Table) BatchUpdateFunc(ctx context.Context, pkeys []any, fn func(rec Record) bool) (int64, error) {
	return t.batchUpdate(ctx, pkeys, fn)
}

// BatchUpdateRaw applies values to the named keys in a single UPDATE
// without triggers, encoding or encryption.
func (t *Table) BatchUpdateRaw(ctx context.Context, pkeys []any, values Record) (int64, error) {
	if len(pkeys) == 0 {
		return 0, nil
	}
	if t.def.PKey == "" {
		return 0, fmt.Errorf("table %s has no primary key defined", t.def.Name)
	}

	setParts := make([]string, 0, len(values))
	params := make(map[string]any, len(values)+len(pkeys))
	for _, k := range sortedKeys(values) {
		setParts = append(setParts, k+" = "+t.db.adapter.Placeholder(k))
		params[k] = values[k]
	}
	placeholders := make([]string, 0, len(pkeys))
	for i, pk := range pkeys {
		name := "pk_" + strconv.Itoa(i)
		placeholders = append(placeholders, t.db.adapter.Placeholder(name))
		params[name] = pk
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		t.def.Name, strings.Join(setParts, ", "), t.def.PKey, strings.Join(placeholders, ", "))
	return t.db.Exec(ctx, query, params)
}

func (t *Table) batchUpdate(ctx context.Context, pkeys []any, fn func(rec Record) bool) (int64, error) {
	if len(pkeys) == 0 {
		return 0, nil
	}
	if t.def.PKey == "" {
		return 0, fmt.Errorf("table %s has no primary key defined", t.def.Name)
	}

	params := make(map[string]any, len(pkeys))
	placeholders := make([]string, 0, len(pkeys))
	for i, pk := range pkeys {
		name := "pk_" + strconv.Itoa(i)
		placeholders = append(placeholders, t.db.adapter.Placeholder(name))
		params[name] = pk
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
		t.def.Name, t.def.PKey, strings.Join(placeholders, ", "))
	rows, err := t.db.FetchAll(ctx, query, params)
	if err != nil {
		return 0, err
	}

	byPK := make(map[any]Record, len(rows))
	for _, row := range rows {
		byPK[row[t.def.PKey]] = row
	}

	var updated int64
	for _, pk := range pkeys {
		old, ok := byPK[pk]
		if !ok {
			continue
		}
		rec := old.Clone()
		if !fn(rec) {
			continue
		}
		if err := t.applyUpdating(ctx, rec, old); err != nil {
			return updated, err
		}
		encoded, err := t.encodeRecord(rec)
		if err != nil {
			return updated, err
		}
		affected, err := t.db.Update(ctx, t.def.Name, encoded, map[string]any{t.def.PKey: pk})
		if err != nil {
			return updated, err
		}
		if affected > 0 {
			if err := t.applyUpdated(ctx, rec, old); err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}
