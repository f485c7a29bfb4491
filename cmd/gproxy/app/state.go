// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/genropy/gproxy/pkg/cli"
	"github.com/genropy/gproxy/pkg/config"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/process"
	"github.com/genropy/gproxy/pkg/proxy"
)

// appState carries the lazily-initialized proxy shared by the entity
// command groups. The command tree is always built; instance selection
// problems surface when a command actually needs the database.
type appState struct {
	cliCtx     *cli.Context
	supervisor *process.Supervisor
	proxy      *proxy.Proxy

	selectErr error
	initOnce  sync.Once
	initErr   error
}

func newAppState() *appState {
	s := &appState{cliCtx: cli.DefaultContext()}
	s.supervisor = process.New(s.cliCtx.BaseDir)

	cfg, err := s.resolveConfig()
	if err != nil {
		// Keep building the tree over a throwaway target so help and
		// completion work; prepare reports the selection problem.
		s.selectErr = err
		cfg = config.Default()
		cfg.DB = ":memory:"
	}

	p, err := proxy.New(cfg, proxy.Options{SupervisorDir: s.cliCtx.BaseDir})
	if err != nil {
		s.selectErr = err
		cfg = config.Default()
		cfg.DB = ":memory:"
		p, _ = proxy.New(cfg, proxy.Options{SupervisorDir: s.cliCtx.BaseDir})
	}
	s.proxy = p
	return s
}

// resolveConfig picks the database the entity commands operate on:
// GENRO_PROXY_* environment first (container mode), then the selected
// local instance's config.ini, then a bare data.db for legacy
// directories.
func (s *appState) resolveConfig() (*config.Config, error) {
	if os.Getenv(config.EnvPrefix+"_DB") != "" {
		return config.FromEnv(), nil
	}

	name, _, err := s.cliCtx.Require("", "", false)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.InstanceName = name
	ic, err := s.supervisor.ReadConfig(name)
	if err != nil {
		dbPath := filepath.Join(s.supervisor.InstanceDir(name), process.DBFileName)
		if _, statErr := os.Stat(dbPath); statErr != nil {
			return nil, fmt.Errorf("instance '%s' has no config or database", name)
		}
		cfg.DB = dbPath
		return cfg, nil
	}
	cfg.DB = ic.DBPath
	cfg.APIToken = ic.APIToken
	cfg.Host = ic.Host
	cfg.Port = ic.Port
	return cfg, nil
}

// prepare connects and initializes the database once. Every entity
// subcommand calls it before invoking.
func (s *appState) prepare(ctx context.Context) error {
	if s.selectErr != nil {
		return s.selectErr
	}
	s.initOnce.Do(func() { s.initErr = s.proxy.Init(ctx) })
	return s.initErr
}

// endpointGroups builds one command group per entity.
func (s *appState) endpointGroups() []*cobra.Command {
	opts := cli.GroupOptions{Context: s.cliCtx, Prepare: s.prepare}
	var groups []*cobra.Command
	for _, ep := range s.proxy.Endpoints() {
		if hasCLIMethods(ep) {
			groups = append(groups, cli.EndpointGroup(ep, opts))
		}
	}
	return groups
}

func hasCLIMethods(ep *endpoint.Base) bool {
	for _, m := range ep.Methods() {
		if ep.IsAvailable(m.Name, endpoint.ChannelCLI) {
			return true
		}
	}
	return false
}
