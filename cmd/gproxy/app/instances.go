// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/genropy/gproxy/pkg/process"
)

func newListCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List proxy instances with their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			instances := state.supervisor.List()
			if len(instances) == 0 {
				fmt.Fprintf(out, "No instances found in %s/\n", state.supervisor.BaseDir)
				return nil
			}
			return printInstances(out, instances)
		},
	}
}

func printInstances(out io.Writer, instances []process.Instance) error {
	headers := []string{"NAME", "STATUS", "PORT", "PID", "URL", "NOTE"}
	table := tablewriter.NewWriter(out)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)

	for _, inst := range instances {
		status, pid, url := "stopped", "-", "-"
		if inst.Running {
			status = "running"
			pid = strconv.Itoa(inst.PID)
			url = inst.URL
		}
		note := ""
		if inst.Legacy {
			note = "legacy"
		}
		row := []string{inst.Name, status, strconv.Itoa(inst.Port), pid, url, note}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func newStopCmd(state *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop [name]",
		Short: "Stop running proxy instances",
		Long:  "Stop one running proxy instance, or every running instance with '*' (the default).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "*"
			if len(args) > 0 {
				name = args[0]
			}
			stopInstances(cmd.OutOrStdout(), state.supervisor, name, force)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Kill immediately instead of a graceful shutdown")
	return cmd
}

func stopInstances(out io.Writer, s *process.Supervisor, name string, force bool) []string {
	signalName := "SIGTERM"
	if force {
		signalName = "SIGKILL"
	}

	if name == "*" {
		instances := s.List()
		if len(instances) == 0 {
			fmt.Fprintln(out, "No instances configured.")
			return nil
		}
		var stopped []string
		for _, inst := range instances {
			if !inst.Running {
				continue
			}
			fmt.Fprintf(out, "Stopping %s (PID %d)... ", inst.Name, inst.PID)
			if s.Stop(inst.Name, force) {
				fmt.Fprintln(out, "stopped")
				stopped = append(stopped, inst.Name)
			} else {
				fmt.Fprintf(out, "sent %s\n", signalName)
			}
		}
		if len(stopped) == 0 {
			fmt.Fprintln(out, "No running instances found.")
		} else {
			fmt.Fprintf(out, "\nStopped %d instance(s)\n", len(stopped))
		}
		return stopped
	}

	st := s.Status(name)
	if !st.Running {
		fmt.Fprintf(out, "Instance '%s' is not running.\n", name)
		return nil
	}
	fmt.Fprintf(out, "Stopping %s (PID %d)... ", name, st.PID)
	if s.Stop(name, force) {
		fmt.Fprintln(out, "stopped")
		return []string{name}
	}
	fmt.Fprintf(out, "sent %s, may still be shutting down\n", signalName)
	return nil
}

func newRestartCmd(state *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restart [name]",
		Short: "Restart running proxy instances",
		Long:  "Stop and start again one running instance, or every running instance with '*' (the default).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "*"
			if len(args) > 0 {
				name = args[0]
			}
			out := cmd.OutOrStdout()

			stopped := stopInstances(out, state.supervisor, name, force)
			if len(stopped) == 0 {
				return nil
			}

			// Give the kernel a moment to release the ports.
			time.Sleep(500 * time.Millisecond)

			for _, instanceName := range stopped {
				fmt.Fprintf(out, "Starting %s... ", instanceName)
				info, err := state.supervisor.SpawnDetached(instanceName, "", 0)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				if info == nil {
					fmt.Fprintln(out, "starting in background...")
				} else {
					fmt.Fprintf(out, "started (PID %d, port %d)\n", info.PID, info.Port)
				}
			}
			fmt.Fprintf(out, "\nRestarted %d instance(s)\n", len(stopped))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Kill immediately before restarting")
	return cmd
}
