// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package cli turns endpoint descriptors into cobra commands and resolves
// which instance and tenant a command targets.
//
// Resolution order for the instance: explicit argument, then the instance
// environment variable, then the .current file under the base directory,
// then auto-select when exactly one instance exists. Tenants resolve the
// same way minus auto-select.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"
)

// Context resolves instance and tenant selection for CLI commands. The
// zero value is not usable; call DefaultContext or fill every field.
type Context struct {
	// BaseDir holds one subdirectory per instance.
	BaseDir string

	// EnvInstance and EnvTenant name the selection environment variables.
	EnvInstance string
	EnvTenant   string

	// DBName is the database filename that marks a directory as an
	// instance even without a config file.
	DBName string

	// CLIName appears in selection guidance messages.
	CLIName string
}

// DefaultContext returns the stock gproxy context rooted at ~/.gproxy.
func DefaultContext() *Context {
	return &Context{
		BaseDir:     filepath.Join(xdg.Home, ".gproxy"),
		EnvInstance: "GPROXY_INSTANCE",
		EnvTenant:   "GPROXY_TENANT",
		DBName:      "data.db",
		CLIName:     "gproxy",
	}
}

// CurrentFile is the path of the file recording the active selection.
func (c *Context) CurrentFile() string {
	return filepath.Join(c.BaseDir, ".current")
}

// InstanceDir returns the directory of a named instance.
func (c *Context) InstanceDir(name string) string {
	return filepath.Join(c.BaseDir, name)
}

// ListInstances returns the names of all configured instances: base dir
// subdirectories holding a config.ini or a database file.
func (c *Context) ListInstances() []string {
	items, err := os.ReadDir(c.BaseDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		dir := c.InstanceDir(item.Name())
		if fileExists(filepath.Join(dir, "config.ini")) || fileExists(filepath.Join(dir, c.DBName)) {
			names = append(names, item.Name())
		}
	}
	return names
}

// ParseSelection splits a selection string into instance and tenant.
//
//	"prod"        -> ("prod", "")
//	"prod/acme"   -> ("prod", "acme")
//	"/acme"       -> ("", "acme")
//	"prod/"       -> ("prod", "")
func ParseSelection(value string) (instance, tenant string) {
	if i := strings.Index(value, "/"); i >= 0 {
		return value[:i], value[i+1:]
	}
	return value, ""
}

// Current reads the active selection from the .current file. Both values
// are empty when no selection is recorded.
func (c *Context) Current() (instance, tenant string) {
	raw, err := os.ReadFile(c.CurrentFile())
	if err != nil {
		return "", ""
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", ""
	}
	return ParseSelection(content)
}

// SetCurrent records the active selection. An empty instance is a no-op;
// an empty tenant clears the tenant part.
func (c *Context) SetCurrent(instance, tenant string) error {
	if instance == "" {
		return nil
	}
	if err := os.MkdirAll(c.BaseDir, 0o755); err != nil {
		return fmt.Errorf("creating base directory: %w", err)
	}
	content := instance
	if tenant != "" {
		content = instance + "/" + tenant
	}
	return os.WriteFile(c.CurrentFile(), []byte(content), 0o600)
}

// Resolve returns the active instance and tenant, either of which may be
// empty when nothing selects it.
func (c *Context) Resolve(explicitInstance, explicitTenant string) (instance, tenant string) {
	instance = explicitInstance
	if instance == "" {
		instance = os.Getenv(c.EnvInstance)
	}
	if instance == "" {
		instance, _ = c.Current()
	}
	if instance == "" {
		if names := c.ListInstances(); len(names) == 1 {
			instance = names[0]
		}
	}

	tenant = explicitTenant
	if tenant == "" {
		tenant = os.Getenv(c.EnvTenant)
	}
	if tenant == "" {
		_, tenant = c.Current()
	}
	return instance, tenant
}

// Require resolves the selection or fails with guidance on how to choose.
// The returned error carries the full multi-line message for the user.
func (c *Context) Require(explicitInstance, explicitTenant string, requireTenant bool) (string, string, error) {
	instance, tenant := c.Resolve(explicitInstance, explicitTenant)

	if instance == "" {
		names := c.ListInstances()
		if len(names) == 0 {
			return "", "", fmt.Errorf(
				"no instances configured\nUse '%s serve <name>' to create one.", c.CLIName)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("multiple instances found, specify which one:\n\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
		b.WriteString("\nOptions:\n")
		fmt.Fprintf(&b, "  - Use '%s use <instance>' to set a default\n", c.CLIName)
		fmt.Fprintf(&b, "  - Set the %s environment variable", c.EnvInstance)
		return "", "", fmt.Errorf("%s", b.String())
	}

	if requireTenant && tenant == "" {
		var b strings.Builder
		b.WriteString("tenant required for this command\n\nOptions:\n")
		fmt.Fprintf(&b, "  - Use '%s use %s/<tenant>'\n", c.CLIName, instance)
		fmt.Fprintf(&b, "  - Set the %s environment variable", c.EnvTenant)
		return "", "", fmt.Errorf("%s", b.String())
	}

	return instance, tenant, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
