// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package endpoint provides the uniform invocation layer shared by the HTTP
// and CLI surfaces. An endpoint declares named methods with typed parameter
// descriptors; the same declaration drives route generation, command
// generation, request validation and transactional execution.
package endpoint

import (
	"context"

	"github.com/genropy/gproxy/pkg/db"
)

// Channels a method can be exposed on.
const (
	ChannelAPI  = "api"
	ChannelCLI  = "cli"
	ChannelREPL = "repl"
)

// ParamType is the declared type of a method parameter. Validation coerces
// raw inputs (query strings, CLI arguments, JSON bodies) to the Go value
// the handler expects.
type ParamType string

// Parameter types.
const (
	TypeString    ParamType = "string"
	TypeInt       ParamType = "int"
	TypeFloat     ParamType = "float"
	TypeBool      ParamType = "bool"
	TypeTimestamp ParamType = "timestamp"
	TypeObject    ParamType = "object"
	TypeList      ParamType = "list"
	TypeAny       ParamType = "any"
)

// Complex reports whether the type carries structured data that cannot
// travel in a query string. Methods with complex parameters are routed as
// POST regardless of their declared verb.
func (t ParamType) Complex() bool {
	return t == TypeObject || t == TypeList
}

// Param describes one method parameter.
type Param struct {
	Name     string
	Type     ParamType
	Required bool
	// Default is applied when an optional parameter is absent. A nil
	// default still materializes the key so handlers see every declared
	// parameter.
	Default any
}

// Handler executes a method with validated parameters. The context carries
// the transactional connection opened by Invoke.
type Handler func(ctx context.Context, params db.Record) (any, error)

// Method is one exposed operation of an endpoint.
//
// The API, CLI, REPL and Post fields override the owning endpoint's channel
// defaults when non-nil.
type Method struct {
	Name    string
	Doc     string
	Params  []Param
	Handler Handler

	API  *bool
	CLI  *bool
	REPL *bool
	Post *bool
}

// Flag returns a pointer to b, for per-method channel overrides.
func Flag(b bool) *bool { return &b }

// Defaults holds the endpoint-level channel axes applied to methods that
// do not override them.
type Defaults struct {
	API  bool
	CLI  bool
	REPL bool
	Post bool
}

// DefaultChannels exposes methods on every channel via GET.
func DefaultChannels() Defaults {
	return Defaults{API: true, CLI: true, REPL: true, Post: false}
}
