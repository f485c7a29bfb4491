// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package config holds the runtime configuration for a gproxy instance.
//
// Configuration comes from GENRO_PROXY_* environment variables in
// containerized deployments, or from a per-instance config.ini written by
// the supervisor (see pkg/process). Environment always wins.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix shared by all configuration environment variables.
const EnvPrefix = "GENRO_PROXY"

// Config is the runtime configuration for a proxy service.
type Config struct {
	// DB is the storage target: a SQLite path or a PostgreSQL URL.
	DB string

	// APIToken is the admin API token. Empty means no admin token is
	// configured and unauthenticated non-admin access is allowed.
	APIToken string

	// InstanceName identifies this instance in logs and the CLI.
	InstanceName string

	// Host and Port are the HTTP bind address.
	Host string
	Port int

	// TestMode disables background processing loops.
	TestMode bool

	// StartActive starts processing immediately after Init.
	StartActive bool
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		DB:           "/data/service.db",
		InstanceName: "proxy",
		Host:         "0.0.0.0",
		Port:         8000,
	}
}

// FromEnv builds a Config from GENRO_PROXY_* environment variables,
// falling back to Default for anything unset.
//
// Recognized variables: GENRO_PROXY_DB, GENRO_PROXY_API_TOKEN,
// GENRO_PROXY_INSTANCE, GENRO_PROXY_HOST, GENRO_PROXY_PORT,
// GENRO_PROXY_TEST_MODE, GENRO_PROXY_START_ACTIVE.
func FromEnv() *Config {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Default()
	if s := v.GetString("db"); s != "" {
		cfg.DB = s
	}
	if s := v.GetString("api_token"); s != "" {
		cfg.APIToken = s
	}
	if s := v.GetString("instance"); s != "" {
		cfg.InstanceName = s
	}
	if s := v.GetString("host"); s != "" {
		cfg.Host = s
	}
	if p := v.GetInt("port"); p != 0 {
		cfg.Port = p
	}
	cfg.TestMode = Truthy(v.GetString("test_mode"))
	cfg.StartActive = Truthy(v.GetString("start_active"))
	return cfg
}

// Truthy reports whether a flag-style environment value means "on".
// Accepted: "1", "true", "yes" in any case. Everything else is false.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
