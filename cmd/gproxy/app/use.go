// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genropy/gproxy/pkg/cli"
)

func newUseCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "use [instance[/tenant]]",
		Short: "Select the instance and tenant for later commands",
		Long: `Record which instance, and optionally which tenant, later commands
operate on. Forms: 'prod' selects an instance, 'prod/acme' an instance
and tenant, '/acme' a tenant on the current instance. Without arguments
the current selection is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				instance, tenant := state.cliCtx.Current()
				if instance == "" && tenant == "" {
					fmt.Fprintln(out, "No selection recorded.")
				} else {
					fmt.Fprintf(out, "Current: %s\n", formatSelection(instance, tenant))
				}
				if names := state.cliCtx.ListInstances(); len(names) > 0 {
					sort.Strings(names)
					fmt.Fprintf(out, "Configured instances: %s\n", strings.Join(names, ", "))
				}
				return nil
			}

			instance, tenant := cli.ParseSelection(args[0])
			if instance == "" {
				instance, _ = state.cliCtx.Current()
				if instance == "" {
					return fmt.Errorf("no instance selected yet, use '%s use <instance>/%s'",
						state.cliCtx.CLIName, tenant)
				}
			}

			names := state.cliCtx.ListInstances()
			if !slices.Contains(names, instance) {
				if len(names) == 0 {
					return fmt.Errorf("no instances configured\nUse '%s serve <name>' to create one.",
						state.cliCtx.CLIName)
				}
				sort.Strings(names)
				return fmt.Errorf("unknown instance '%s' (configured: %s)",
					instance, strings.Join(names, ", "))
			}

			if err := state.cliCtx.SetCurrent(instance, tenant); err != nil {
				return err
			}
			fmt.Fprintf(out, "Using %s\n", formatSelection(instance, tenant))
			return nil
		},
	}
}

func formatSelection(instance, tenant string) string {
	if tenant == "" {
		return fmt.Sprintf("instance '%s'", instance)
	}
	return fmt.Sprintf("instance '%s', tenant '%s'", instance, tenant)
}
