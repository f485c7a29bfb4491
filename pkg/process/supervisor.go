// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package process supervises proxy instances on the local machine. Each
// instance lives in its own directory under a common base, holding its
// config.ini, database file and, while running, a server.pid file.
package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/viper"

	"github.com/genropy/gproxy/pkg/encryption"
)

const (
	// DefaultHost and DefaultPort apply to new instances and legacy
	// directories without a config file.
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000

	// DBFileName is the per-instance sqlite database filename.
	DBFileName = "data.db"

	lockTimeout = 1 * time.Second
)

// Supervisor manages the instance directories under BaseDir.
type Supervisor struct {
	BaseDir string

	// CLIName is the executable name echoed in restart hints.
	CLIName string
}

// New returns a supervisor rooted at baseDir.
func New(baseDir string) *Supervisor {
	return &Supervisor{BaseDir: baseDir, CLIName: "gproxy"}
}

// InstanceDir returns the directory of a named instance.
func (s *Supervisor) InstanceDir(name string) string {
	return filepath.Join(s.BaseDir, name)
}

// ConfigPath returns the config.ini path for an instance.
func (s *Supervisor) ConfigPath(name string) string {
	return filepath.Join(s.InstanceDir(name), "config.ini")
}

// InstanceConfig is the parsed per-instance configuration.
type InstanceConfig struct {
	Name       string
	Host       string
	Port       int
	DBPath     string
	APIToken   string
	ConfigFile string
}

// EnsureConfig creates the instance directory and config file when
// missing, generating a fresh admin token, and returns the parsed
// configuration. Creation runs under a file lock so concurrent callers
// cannot race on the token.
func (s *Supervisor) EnsureConfig(ctx context.Context, name, host string, port int) (*InstanceConfig, error) {
	dir := s.InstanceDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating instance directory: %w", err)
	}

	configPath := s.ConfigPath(name)
	fileLock := flock.New(configPath + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer fileLock.Unlock()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		token, err := encryption.NewToken()
		if err != nil {
			return nil, err
		}
		content := fmt.Sprintf(`# gproxy configuration
# Generated automatically - edit as needed

[server]
name = %s
host = %s
port = %d

[database]
path = %s

[auth]
api_token = %s
`, name, host, port, filepath.Join(dir, DBFileName), token)
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("writing config: %w", err)
		}
	}

	return s.ReadConfig(name)
}

// ReadConfig parses an instance's config.ini. Missing keys fall back to
// the instance defaults.
func (s *Supervisor) ReadConfig(name string) (*InstanceConfig, error) {
	configPath := s.ConfigPath(name)
	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &InstanceConfig{
		Name:       v.GetString("server.name"),
		Host:       v.GetString("server.host"),
		Port:       v.GetInt("server.port"),
		DBPath:     v.GetString("database.path"),
		APIToken:   v.GetString("auth.api_token"),
		ConfigFile: configPath,
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(s.InstanceDir(name), DBFileName)
	}
	return cfg, nil
}

// Status reports whether an instance's recorded server process is alive.
type Status struct {
	Name    string
	Running bool
	PID     int
	Port    int
}

// Status checks the PID file and process liveness for one instance.
func (s *Supervisor) Status(name string) Status {
	st := Status{Name: name}
	info, err := s.ReadPIDFile(name)
	if err != nil || info.PID == 0 {
		if info != nil {
			st.Port = info.Port
		}
		return st
	}
	st.Port = info.Port
	if Alive(info.PID) {
		st.Running = true
		st.PID = info.PID
	}
	return st
}

// Instance is one row of List: configuration plus runtime status.
type Instance struct {
	Name    string
	Host    string
	Port    int
	Running bool
	PID     int
	URL     string

	// Legacy marks directories holding only a database, no config.
	Legacy bool
}

// List scans the base directory for instances. Directories without a
// config file or database are skipped; database-only directories are
// reported as legacy.
func (s *Supervisor) List() []Instance {
	items, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil
	}

	var instances []Instance
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		name := item.Name()
		hasConfig := fileExists(s.ConfigPath(name))
		hasDB := fileExists(filepath.Join(s.InstanceDir(name), DBFileName))
		if !hasConfig && !hasDB {
			continue
		}

		inst := Instance{
			Name:   name,
			Host:   DefaultHost,
			Port:   DefaultPort,
			Legacy: !hasConfig,
		}
		if hasConfig {
			if cfg, err := s.ReadConfig(name); err == nil {
				inst.Host = cfg.Host
				inst.Port = cfg.Port
			}
		}

		st := s.Status(name)
		if st.Running {
			inst.Running = true
			inst.PID = st.PID
			if st.Port != 0 {
				inst.Port = st.Port
			}
			inst.URL = fmt.Sprintf("http://localhost:%d", inst.Port)
		}
		instances = append(instances, inst)
	}

	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
