// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the gproxy command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/genropy/gproxy/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "gproxy",
	DisableAutoGenTag: true,
	Short:             "gproxy is a multi-tenant proxy service for Genropy deployments",
	Long: `gproxy runs multi-tenant proxy instances backed by SQLite or PostgreSQL.

Each local instance lives under ~/.gproxy/<name>/ with its own
configuration, database and server process. The entity commands operate
on the selected instance; pick one with 'gproxy use', the GPROXY_INSTANCE
environment variable, or by having exactly one instance configured.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the gproxy CLI.
func NewRootCmd() *cobra.Command {
	state := newAppState()

	rootCmd.AddCommand(newServeCmd(state))
	rootCmd.AddCommand(newListCmd(state))
	rootCmd.AddCommand(newStopCmd(state))
	rootCmd.AddCommand(newRestartCmd(state))
	rootCmd.AddCommand(newUseCmd(state))
	rootCmd.AddCommand(newVersionCmd())

	for _, group := range state.endpointGroups() {
		rootCmd.AddCommand(group)
	}

	return rootCmd
}
