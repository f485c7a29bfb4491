// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genropy/gproxy/pkg/config"
	"github.com/genropy/gproxy/pkg/process"
	"github.com/genropy/gproxy/pkg/proxy"
)

func newServeCmd(state *appState) *cobra.Command {
	var (
		host       string
		port       int
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve [name]",
		Short: "Run a proxy instance",
		Long: `Run a proxy instance in the foreground, or detached with --background.

The instance directory and config.ini are created on first use. With
GENRO_PROXY_DB set and no name given, the server runs directly from the
environment configuration without touching any instance directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			if name == "" && os.Getenv(config.EnvPrefix+"_DB") != "" {
				return runFromEnv(cmd, host, port)
			}
			if name == "" {
				name = "default"
			}

			if st := state.supervisor.Status(name); st.Running {
				fmt.Fprintf(cmd.OutOrStdout(),
					"Instance '%s' is already running (PID %d, port %d)\n",
					name, st.PID, st.Port)
				return nil
			}

			ic, err := state.supervisor.ReadConfig(name)
			if err != nil {
				if host == "" {
					host = process.DefaultHost
				}
				if port == 0 {
					port = process.DefaultPort
				}
				ic, err = state.supervisor.EnsureConfig(cmd.Context(), name, host, port)
				if err != nil {
					return err
				}
			} else {
				if host == "" {
					host = ic.Host
				}
				if port == 0 {
					port = ic.Port
				}
			}

			if background {
				info, err := state.supervisor.SpawnDetached(name, host, port)
				if err != nil {
					return err
				}
				if info == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Instance '%s' starting in background...\n", name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Instance '%s' started (PID %d) on http://localhost:%d\n",
					name, info.PID, info.Port)
				return nil
			}

			cfg := config.Default()
			cfg.DB = ic.DBPath
			cfg.APIToken = ic.APIToken
			cfg.InstanceName = name
			cfg.Host = host
			cfg.Port = port
			return runProxy(cmd, cfg, proxy.Options{SupervisorDir: state.cliCtx.BaseDir})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Bind port (default from config)")
	cmd.Flags().BoolVar(&background, "background", false, "Start detached and return")
	return cmd
}

func runFromEnv(cmd *cobra.Command, host string, port int) error {
	cfg := config.FromEnv()
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	return runProxy(cmd, cfg, proxy.Options{})
}

func runProxy(cmd *cobra.Command, cfg *config.Config, opts proxy.Options) error {
	p, err := proxy.New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = p.Shutdown() }()

	if err := p.Init(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving '%s' on http://%s\n",
		cfg.InstanceName, p.Address())
	return p.Run(cmd.Context())
}
