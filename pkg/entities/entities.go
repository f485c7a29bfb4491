// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package entities registers every built-in entity of the proxy server.
package entities

import (
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/entities/account"
	"github.com/genropy/gproxy/pkg/entities/commandlog"
	"github.com/genropy/gproxy/pkg/entities/instance"
	"github.com/genropy/gproxy/pkg/entities/storage"
	"github.com/genropy/gproxy/pkg/entities/tenant"
)

// RegisterAll adds the built-in entities to a registry. The order
// matters for schema creation: referenced tables come first.
func RegisterAll(r *endpoint.Registry, opts instance.Options) {
	tenant.Register(r)
	account.Register(r)
	storage.Register(r)
	commandlog.Register(r)
	instance.Register(r, opts)
}

// AdminOnly lists the entities whose API routes require the admin
// token rather than a tenant API key.
func AdminOnly() []string {
	return []string{tenant.Name, commandlog.Name, instance.Name}
}
