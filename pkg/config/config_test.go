// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) { //nolint:paralleltest // mutates env
	t.Setenv("GENRO_PROXY_DB", "")
	t.Setenv("GENRO_PROXY_API_TOKEN", "")
	t.Setenv("GENRO_PROXY_INSTANCE", "")
	t.Setenv("GENRO_PROXY_HOST", "")
	t.Setenv("GENRO_PROXY_PORT", "")
	t.Setenv("GENRO_PROXY_TEST_MODE", "")
	t.Setenv("GENRO_PROXY_START_ACTIVE", "")

	cfg := FromEnv()
	assert.Equal(t, "/data/service.db", cfg.DB)
	assert.Equal(t, "proxy", cfg.InstanceName)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Empty(t, cfg.APIToken)
	assert.False(t, cfg.TestMode)
	assert.False(t, cfg.StartActive)
}

func TestFromEnv_Overrides(t *testing.T) { //nolint:paralleltest // mutates env
	t.Setenv("GENRO_PROXY_DB", "postgresql://proxy:secret@db/proxy")
	t.Setenv("GENRO_PROXY_API_TOKEN", "admin-token")
	t.Setenv("GENRO_PROXY_INSTANCE", "staging")
	t.Setenv("GENRO_PROXY_HOST", "127.0.0.1")
	t.Setenv("GENRO_PROXY_PORT", "9090")
	t.Setenv("GENRO_PROXY_TEST_MODE", "yes")
	t.Setenv("GENRO_PROXY_START_ACTIVE", "1")

	cfg := FromEnv()
	assert.Equal(t, "postgresql://proxy:secret@db/proxy", cfg.DB)
	assert.Equal(t, "admin-token", cfg.APIToken)
	assert.Equal(t, "staging", cfg.InstanceName)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.TestMode)
	assert.True(t, cfg.StartActive)
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	truthy := []string{"1", "true", "TRUE", "True", "yes", "YES", " yes "}
	for _, s := range truthy {
		assert.True(t, Truthy(s), "Truthy(%q)", s)
	}

	falsy := []string{"", "0", "false", "no", "on", "enabled", "2"}
	for _, s := range falsy {
		assert.False(t, Truthy(s), "Truthy(%q)", s)
	}
}
