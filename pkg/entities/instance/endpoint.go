// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/endpoint"
	"github.com/genropy/gproxy/pkg/entities/tenant"
	"github.com/genropy/gproxy/pkg/process"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Options carries the runtime collaborators of the instance endpoint.
// Supervisor may be nil when the server runs without local instance
// management, in which case the serve/stop/restart/list_all methods
// report a configuration error.
type Options struct {
	Supervisor *process.Supervisor

	// Active reports whether the server loop is processing work.
	// Nil means always active.
	Active func() bool
}

func (o Options) supervisor() (*process.Supervisor, error) {
	if o.Supervisor == nil {
		return nil, proxyerr.NewConfigurationError("instance supervision is not configured", nil)
	}
	return o.Supervisor, nil
}

// Register adds the instance entity to a registry.
func Register(r *endpoint.Registry, opts Options) {
	r.Register(Name, endpoint.Entry{
		NewTable: NewTableDef,
		NewEndpoint: func(tbl *db.Table) *endpoint.Base {
			return NewEndpoint(tbl, opts)
		},
	})
}

// NewEndpoint exposes instance settings and local process control.
func NewEndpoint(table *db.Table, opts Options) *endpoint.Base {
	m := Wrap(table)
	ep := endpoint.New(Name, table, endpoint.WithoutCRUD())

	ep.AddMethod(endpoint.Method{
		Name: "health",
		Doc:  "Liveness probe.",
		Handler: func(_ context.Context, _ db.Record) (any, error) {
			return db.Record{"status": "ok"}, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "status",
		Doc:  "Report whether the server is active.",
		Handler: func(_ context.Context, _ db.Record) (any, error) {
			active := true
			if opts.Active != nil {
				active = opts.Active()
			}
			return db.Record{"ok": true, "active": active}, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "get",
		Doc:  "Return the instance settings row.",
		Handler: func(ctx context.Context, _ db.Record) (any, error) {
			rec, err := m.Get(ctx)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return db.Record{
					"ok":      true,
					"id":      singletonID,
					"name":    DefaultName,
					"edition": EditionCE,
				}, nil
			}
			out := db.Record{"ok": true}
			for k, v := range rec {
				out[k] = v
			}
			return out, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "update",
		Doc:  "Update instance settings.",
		Params: []endpoint.Param{
			{Name: "name", Type: endpoint.TypeString},
			{Name: "api_token", Type: endpoint.TypeString},
			{Name: "edition", Type: endpoint.TypeString},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			updates := db.Record{}
			for _, key := range []string{"name", "api_token", "edition"} {
				if v, ok := params[key]; ok && v != nil {
					updates[key] = v
				}
			}
			if len(updates) > 0 {
				if err := m.Update(ctx, updates); err != nil {
					return nil, err
				}
			}
			return db.Record{"ok": true}, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "upgrade_to_ee",
		Doc:  "Switch the instance to the Enterprise Edition.",
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, _ db.Record) (any, error) {
			return upgradeToEE(ctx, m, table)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "serve",
		Doc:  "Prepare or start a named local instance.",
		Params: []endpoint.Param{
			{Name: "name", Type: endpoint.TypeString, Default: "default"},
			{Name: "host", Type: endpoint.TypeString},
			{Name: "port", Type: endpoint.TypeInt},
			{Name: "background", Type: endpoint.TypeBool, Default: false},
		},
		Post: endpoint.Flag(true),
		Handler: func(ctx context.Context, params db.Record) (any, error) {
			s, err := opts.supervisor()
			if err != nil {
				return nil, err
			}
			return serveInstance(ctx, s, params)
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "list_all",
		Doc:  "List all local instances with their status.",
		Handler: func(_ context.Context, _ db.Record) (any, error) {
			s, err := opts.supervisor()
			if err != nil {
				return nil, err
			}
			rows := []db.Record{}
			for _, inst := range s.List() {
				row := db.Record{
					"name":    inst.Name,
					"host":    inst.Host,
					"port":    inst.Port,
					"running": inst.Running,
					"legacy":  inst.Legacy,
				}
				if inst.Running {
					row["pid"] = inst.PID
					row["url"] = inst.URL
				}
				rows = append(rows, row)
			}
			return db.Record{"ok": true, "instances": rows}, nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "stop",
		Doc:  "Stop one local instance, or all with '*'.",
		Params: []endpoint.Param{
			{Name: "name", Type: endpoint.TypeString, Default: "*"},
			{Name: "force", Type: endpoint.TypeBool, Default: false},
		},
		Post: endpoint.Flag(true),
		Handler: func(_ context.Context, params db.Record) (any, error) {
			s, err := opts.supervisor()
			if err != nil {
				return nil, err
			}
			return stopInstances(s, params.GetString("name"), params.GetBool("force")), nil
		},
	})

	ep.AddMethod(endpoint.Method{
		Name: "restart",
		Doc:  "Stop instances and report the commands to start them again.",
		Params: []endpoint.Param{
			{Name: "name", Type: endpoint.TypeString, Default: "*"},
			{Name: "force", Type: endpoint.TypeBool, Default: false},
		},
		Post: endpoint.Flag(true),
		Handler: func(_ context.Context, params db.Record) (any, error) {
			s, err := opts.supervisor()
			if err != nil {
				return nil, err
			}
			result := stopInstances(s, params.GetString("name"), params.GetBool("force"))
			if !result.GetBool("ok") {
				return result, nil
			}
			stopped, _ := result["stopped"].([]string)
			commands := make([]string, 0, len(stopped))
			for _, n := range stopped {
				commands = append(commands, s.StartCommand(n))
			}
			return db.Record{
				"ok":             true,
				"stopped":        stopped,
				"message":        "Instances stopped. Start them with the commands below.",
				"start_commands": commands,
			}, nil
		},
	})

	return ep
}

// upgradeToEE flips the edition and, for databases whose default tenant
// predates API keys, mints the missing key so the tenant can
// authenticate. The token is only returned here, it cannot be read back
// later.
func upgradeToEE(ctx context.Context, m *Manager, table *db.Table) (any, error) {
	ee, err := m.IsEnterprise(ctx)
	if err != nil {
		return nil, err
	}
	if ee {
		return db.Record{
			"ok":      true,
			"edition": EditionEE,
			"message": "Already in Enterprise Edition",
		}, nil
	}
	if err := m.SetEdition(ctx, EditionEE); err != nil {
		return nil, err
	}

	if tenantsTbl, err := table.DB().Table(tenant.Name); err == nil {
		tm := tenant.Wrap(tenantsTbl)
		rec, err := tm.Get(ctx, tenant.DefaultID)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.GetString("api_key_hash") == "" {
			token, err := tm.CreateAPIKey(ctx, tenant.DefaultID, 0)
			if err != nil {
				return nil, err
			}
			return db.Record{
				"ok":                   true,
				"edition":              EditionEE,
				"default_tenant_token": token,
				"message":              "Upgraded to Enterprise Edition. Save the default tenant token - it will not be shown again.",
			}, nil
		}
	}

	return db.Record{
		"ok":      true,
		"edition": EditionEE,
		"message": "Upgraded to Enterprise Edition",
	}, nil
}

func serveInstance(ctx context.Context, s *process.Supervisor, params db.Record) (any, error) {
	name := params.GetString("name")
	host := params.GetString("host")
	port := int(params.GetInt("port"))
	background := params.GetBool("background")

	if st := s.Status(name); st.Running {
		return db.Record{
			"ok":              true,
			"already_running": true,
			"name":            name,
			"pid":             st.PID,
			"port":            st.Port,
			"url":             fmt.Sprintf("http://localhost:%d", st.Port),
		}, nil
	}

	cfg, err := s.ReadConfig(name)
	if err != nil {
		if host == "" {
			host = process.DefaultHost
		}
		if port == 0 {
			port = process.DefaultPort
		}
		if cfg, err = s.EnsureConfig(ctx, name, host, port); err != nil {
			return nil, err
		}
	} else {
		if host == "" {
			host = cfg.Host
		}
		if port == 0 {
			port = cfg.Port
		}
	}

	if background {
		info, err := s.SpawnDetached(name, host, port)
		if err != nil {
			return nil, err
		}
		var pid any
		if info != nil {
			pid = info.PID
		}
		return db.Record{
			"ok":         true,
			"background": true,
			"name":       name,
			"host":       host,
			"port":       port,
			"url":        fmt.Sprintf("http://localhost:%d", port),
			"started":    info != nil,
			"pid":        pid,
		}, nil
	}

	return db.Record{
		"ok":          true,
		"name":        name,
		"host":        host,
		"port":        port,
		"db_path":     cfg.DBPath,
		"config_file": cfg.ConfigFile,
		"env": map[string]string{
			"GENRO_PROXY_DB":       cfg.DBPath,
			"GENRO_PROXY_CONFIG":   cfg.ConfigFile,
			"GENRO_PROXY_INSTANCE": name,
			"GENRO_PROXY_HOST":     host,
			"GENRO_PROXY_PORT":     strconv.Itoa(port),
		},
	}, nil
}

func stopInstances(s *process.Supervisor, name string, force bool) db.Record {
	if name == "*" {
		stopped := s.StopAll(force)
		if stopped == nil {
			stopped = []string{}
		}
		return db.Record{"ok": true, "stopped": stopped, "count": len(stopped)}
	}
	if st := s.Status(name); !st.Running {
		return db.Record{
			"ok":    false,
			"error": fmt.Sprintf("instance '%s' is not running", name),
		}
	}
	stopped := []string{}
	if s.Stop(name, force) {
		stopped = append(stopped, name)
	}
	return db.Record{"ok": true, "stopped": stopped, "count": len(stopped)}
}
