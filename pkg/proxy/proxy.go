// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package proxy composes a complete proxy service: configuration,
// encryption, database, the bundled entities and the HTTP surface.
// Domain proxies start from New, register extra entities through the
// registry and run the result.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/adrg/xdg"
	"golang.org/x/sync/errgroup"

	"github.com/genropy/gproxy/pkg/api"
	"github.com/genropy/gproxy/pkg/config"
	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/encryption"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/entities"
	"github.com/genropy/gproxy/pkg/entities/commandlog"
	"github.com/genropy/gproxy/pkg/entities/instance"
	"github.com/genropy/gproxy/pkg/entities/tenant"
	"github.com/genropy/gproxy/pkg/logger"
	"github.com/genropy/gproxy/pkg/process"
)

// Options tunes the composition beyond what Config carries.
type Options struct {
	// Registry lets a domain proxy pre-register its own entities. The
	// bundled entities are added afterwards, so a same-name registration
	// made here wins. Nil means bundled entities only.
	Registry *endpoint.Registry

	// SupervisorDir overrides the local instances base directory,
	// default ~/.gproxy.
	SupervisorDir string

	// UIDir is served at /ui when the directory exists.
	UIDir string
}

// Proxy is one configured service instance.
type Proxy struct {
	Config     *config.Config
	Crypto     *encryption.Manager
	DB         *db.DB
	Registry   *endpoint.Registry
	Supervisor *process.Supervisor

	endpoints []*endpoint.Base
	tenants   *tenant.Manager
	commands  *commandlog.Manager
	uiDir     string
	active    atomic.Bool
}

// New builds a proxy from configuration: encryption manager, database
// with the adapter picked from the storage target, entity tables and
// endpoints from the registry. Nothing touches the database yet; Init
// does that.
func New(cfg *config.Config, opts Options) (*Proxy, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Proxy{Config: cfg, uiDir: opts.UIDir}
	p.active.Store(cfg.StartActive)
	p.Crypto = encryption.NewManager()

	d, err := db.New(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", cfg.DB, err)
	}
	d.SetCrypto(p.Crypto)
	p.DB = d

	baseDir := opts.SupervisorDir
	if baseDir == "" {
		baseDir = filepath.Join(xdg.Home, ".gproxy")
	}
	p.Supervisor = process.New(baseDir)

	r := opts.Registry
	if r == nil {
		r = endpoint.NewRegistry()
	}
	entities.RegisterAll(r, instance.Options{
		Supervisor: p.Supervisor,
		Active:     p.Active,
	})
	p.Registry = r

	eps, err := r.Build(d)
	if err != nil {
		_ = d.Shutdown()
		return nil, err
	}
	p.endpoints = eps

	if tbl, err := d.Table(tenant.Name); err == nil {
		p.tenants = tenant.Wrap(tbl)
		resolver := p.tenants.Resolver()
		for _, ep := range eps {
			ep.SetTenantResolver(resolver)
		}
	}
	if tbl, err := d.Table(commandlog.Name); err == nil {
		p.commands = commandlog.Wrap(tbl)
	}

	return p, nil
}

// Endpoint returns a built endpoint by entity name.
func (p *Proxy) Endpoint(name string) (*endpoint.Base, bool) {
	for _, ep := range p.endpoints {
		if ep.Name() == name {
			return ep, true
		}
	}
	return nil, false
}

// Endpoints returns the built endpoints in registration order.
func (p *Proxy) Endpoints() []*endpoint.Base { return p.endpoints }

// Active reports whether background processing is on. The base proxy
// has no processing loops; domain proxies flip this around theirs.
func (p *Proxy) Active() bool { return p.active.Load() }

// SetActive flips the processing flag.
func (p *Proxy) SetActive(on bool) { p.active.Store(on) }

// Init connects to the database, creates missing tables, syncs schema
// additions and seeds the default tenant when the tenants table is
// empty.
func (p *Proxy) Init(ctx context.Context) error {
	return p.DB.WithConnection(ctx, func(ctx context.Context) error {
		if err := p.DB.CheckStructure(ctx); err != nil {
			return err
		}
		p.DB.SyncSchema(ctx)

		if p.tenants == nil {
			return nil
		}
		rows, err := p.tenants.List(ctx, false)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			if err := p.tenants.EnsureDefault(ctx); err != nil {
				return err
			}
			logger.Infof("seeded default tenant '%s'", tenant.DefaultID)
		}
		return nil
	})
}

// Router builds the HTTP handler for this proxy.
func (p *Proxy) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Endpoints:     p.endpoints,
		AdminToken:    p.Config.APIToken,
		DB:            p.DB,
		ResolveTenant: p.resolveTenant,
		AdminEntities: entities.AdminOnly(),
		Audit:         p.recordCommand,
		UIDir:         p.uiDir,
	})
}

// Address is the HTTP bind address from configuration.
func (p *Proxy) Address() string {
	return fmt.Sprintf("%s:%d", p.Config.Host, p.Config.Port)
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives,
// maintaining the instance PID file when the instance has a local
// directory under the supervisor's base.
func (p *Proxy) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := p.Config.InstanceName
	if name != "" && dirExists(p.Supervisor.InstanceDir(name)) {
		info := process.NewPIDInfo(p.Config.Port, p.Config.Host)
		if err := p.Supervisor.WritePIDFile(name, info); err != nil {
			logger.Warnf("could not write PID file for %s: %v", name, err)
		} else {
			defer p.Supervisor.RemovePIDFile(name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(ctx, p.Address(), p.Router())
	})
	return g.Wait()
}

// Shutdown releases the database. Call after Run returns.
func (p *Proxy) Shutdown() error {
	return p.DB.Shutdown()
}

func (p *Proxy) resolveTenant(ctx context.Context, token string) (string, error) {
	if p.tenants == nil {
		return "", nil
	}
	return p.tenants.Resolver()(ctx, token)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
