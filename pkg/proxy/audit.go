// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/genropy/gproxy/pkg/api"
	"github.com/genropy/gproxy/pkg/entities/commandlog"
	"github.com/genropy/gproxy/pkg/logger"
)

// recordCommand appends one audit row to the command log. It runs on
// its own connection, detached from the request's cancellation, and
// never fails the request it describes.
func (p *Proxy) recordCommand(ctx context.Context, entry api.AuditEntry) {
	if p.commands == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	err := p.DB.WithConnection(ctx, func(ctx context.Context) error {
		e := commandlog.Entry{
			Endpoint:       entry.Endpoint,
			Payload:        decodeObject(entry.Payload),
			ResponseStatus: entry.Status,
			ResponseBody:   decodeObject(entry.Body),
		}
		if !entry.IsAdmin && entry.Token != "" && p.tenants != nil {
			if id, rerr := p.tenants.Resolver()(ctx, entry.Token); rerr == nil {
				e.TenantID = id
			}
		}
		_, err := p.commands.LogCommand(ctx, e)
		return err
	})
	if err != nil {
		logger.Warnf("command audit failed for %s: %v", entry.Endpoint, err)
	}
}

func decodeObject(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
