// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/logger"
)

// Entry describes how one entity is built: its table definition and the
// endpoint constructor bound to it. Table-less entities leave NewTable
// nil; their endpoint receives a nil table.
type Entry struct {
	NewTable    func() db.TableDef
	NewEndpoint func(table *db.Table) *Base

	// Override marks this registration as more derived than any earlier
	// one with the same name, replacing it in place. Without it, the
	// first registration wins.
	Override bool
}

// TableWrapper decorates an entity's table definition at build time.
type TableWrapper func(db.TableDef) db.TableDef

// EndpointWrapper decorates an entity's endpoint at build time. Wrappers
// typically add or replace methods on the built endpoint.
type EndpointWrapper func(*Base) *Base

// Registry maps entity names to their constructors. A concrete proxy
// registers its entities in a deterministic order; extension packages
// either re-register with Override or install wrappers.
type Registry struct {
	entries       map[string]Entry
	order         []string
	tableWraps    map[string][]TableWrapper
	endpointWraps map[string][]EndpointWrapper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:       make(map[string]Entry),
		tableWraps:    make(map[string][]TableWrapper),
		endpointWraps: make(map[string][]EndpointWrapper),
	}
}

// Register adds an entity. A duplicate name keeps the first registration
// unless the new entry carries Override, which replaces the old entry
// while keeping its position.
func (r *Registry) Register(name string, e Entry) {
	if _, exists := r.entries[name]; exists {
		if !e.Override {
			logger.Debugf("registry: keeping first registration for entity %s", name)
			return
		}
	} else {
		r.order = append(r.order, name)
	}
	r.entries[name] = e
}

// WrapTable installs a table decorator for the named entity. Wrappers run
// at build time in installation order.
func (r *Registry) WrapTable(name string, w TableWrapper) {
	r.tableWraps[name] = append(r.tableWraps[name], w)
}

// WrapEndpoint installs an endpoint decorator for the named entity.
func (r *Registry) WrapEndpoint(name string, w EndpointWrapper) {
	r.endpointWraps[name] = append(r.endpointWraps[name], w)
}

// Has reports whether an entity is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns entity names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Build registers every entity's table into database and constructs its
// endpoint, applying wrappers. Endpoints come back in registration order.
func (r *Registry) Build(database *db.DB) ([]*Base, error) {
	endpoints := make([]*Base, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]

		var table *db.Table
		if e.NewTable != nil {
			def := e.NewTable()
			for _, w := range r.tableWraps[name] {
				def = w(def)
			}
			t, err := database.AddTable(def)
			if err != nil {
				return nil, err
			}
			table = t
		}

		if e.NewEndpoint == nil {
			continue
		}
		ep := e.NewEndpoint(table)
		for _, w := range r.endpointWraps[name] {
			ep = w(ep)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}
