// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
)

// GroupOptions configures a generated endpoint command group.
type GroupOptions struct {
	// Context resolves the tenant when a tenant_id positional is omitted.
	Context *Context

	// Out receives rendered results. Defaults to the command's stdout.
	Out io.Writer

	// Prepare runs before the endpoint call, typically connecting the
	// database. It must be idempotent: every subcommand calls it.
	Prepare func(ctx context.Context) error
}

// EndpointGroup builds one command group for an endpoint: a subcommand
// per cli-channel method, with underscores dashed.
//
// Parameter mapping: a required tenant_id becomes an optional trailing
// positional with context fallback; other required parameters become
// positionals in declaration order; booleans become --flag / --no-flag
// pairs; everything else becomes a flag with its default shown.
func EndpointGroup(ep *endpoint.Base, opts GroupOptions) *cobra.Command {
	group := &cobra.Command{
		Use:   ep.Name(),
		Short: "Manage " + ep.Name() + ".",
	}
	for _, m := range ep.Methods() {
		if ep.IsAvailable(m.Name, endpoint.ChannelCLI) {
			group.AddCommand(methodCommand(ep, m, opts))
		}
	}
	return group
}

func methodCommand(ep *endpoint.Base, m *endpoint.Method, opts GroupOptions) *cobra.Command {
	var positionals, flagParams []endpoint.Param
	hasTenant := false
	for _, p := range m.Params {
		switch {
		case p.Name == "tenant_id" && p.Required:
			hasTenant = true
		case p.Type == endpoint.TypeBool:
			flagParams = append(flagParams, p)
		case p.Required:
			positionals = append(positionals, p)
		default:
			flagParams = append(flagParams, p)
		}
	}

	use := strings.ReplaceAll(m.Name, "_", "-")
	for _, p := range positionals {
		use += " <" + flagName(p.Name) + ">"
	}
	if hasTenant {
		use += " [tenant-id]"
	}

	short := m.Doc
	if i := strings.Index(short, "\n"); i >= 0 {
		short = short[:i]
	}
	if short == "" {
		short = m.Name + " operation"
	}

	argsCheck := cobra.ExactArgs(len(positionals))
	if hasTenant {
		argsCheck = cobra.RangeArgs(len(positionals), len(positionals)+1)
	}

	methodName := m.Name
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argsCheck,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := db.Record{}
			for i, p := range positionals {
				params[p.Name] = args[i]
			}
			collectFlags(cmd.Flags(), flagParams, params)

			if hasTenant {
				tenant := ""
				if len(args) > len(positionals) {
					tenant = args[len(positionals)]
				}
				if tenant == "" {
					if opts.Context == nil {
						return fmt.Errorf("tenant required for this command")
					}
					_, resolved, err := opts.Context.Require("", "", true)
					if err != nil {
						return err
					}
					tenant = resolved
				}
				params["tenant_id"] = tenant
			}

			if opts.Prepare != nil {
				if err := opts.Prepare(cmd.Context()); err != nil {
					return err
				}
			}
			result, err := ep.Invoke(cmd.Context(), methodName, params, endpoint.Identity{})
			if err != nil {
				return err
			}

			out := opts.Out
			if out == nil {
				out = cmd.OutOrStdout()
			}
			return PrintResult(out, result)
		},
	}
	registerFlags(cmd.Flags(), flagParams)
	return cmd
}

func registerFlags(flags *pflag.FlagSet, params []endpoint.Param) {
	for _, p := range params {
		name := flagName(p.Name)
		switch p.Type {
		case endpoint.TypeBool:
			flags.Bool(name, asBool(p.Default), "Enable "+p.Name)
			flags.Bool("no-"+name, false, "Disable "+p.Name)
		case endpoint.TypeInt:
			flags.Int64(name, asInt64(p.Default), p.Name+" parameter")
		case endpoint.TypeFloat:
			flags.Float64(name, asFloat64(p.Default), p.Name+" parameter")
		default:
			flags.String(name, stringDefault(p.Default), p.Name+" parameter")
		}
	}
}

// collectFlags moves changed flag values into params. Unchanged flags
// stay absent so validation materializes the declared defaults.
func collectFlags(flags *pflag.FlagSet, params []endpoint.Param, out db.Record) {
	for _, p := range params {
		name := flagName(p.Name)
		if p.Type == endpoint.TypeBool {
			switch {
			case flags.Changed("no-" + name):
				out[p.Name] = false
			case flags.Changed(name):
				v, _ := flags.GetBool(name)
				out[p.Name] = v
			}
			continue
		}
		if !flags.Changed(name) {
			continue
		}
		switch p.Type {
		case endpoint.TypeInt:
			v, _ := flags.GetInt64(name)
			out[p.Name] = v
		case endpoint.TypeFloat:
			v, _ := flags.GetFloat64(name)
			out[p.Name] = v
		default:
			v, _ := flags.GetString(name)
			out[p.Name] = v
		}
	}
}

func flagName(param string) string {
	return strings.ReplaceAll(param, "_", "-")
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func stringDefault(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
