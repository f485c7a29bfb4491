// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gopsutil "github.com/shirou/gopsutil/v4/process"
)

// PIDInfo is the content of an instance's server.pid file.
type PIDInfo struct {
	PID       int    `json:"pid"`
	Port      int    `json:"port"`
	Host      string `json:"host"`
	StartedAt string `json:"started_at"`
}

// NewPIDInfo describes the current process, stamped now.
func NewPIDInfo(port int, host string) PIDInfo {
	return PIDInfo{
		PID:       os.Getpid(),
		Port:      port,
		Host:      host,
		StartedAt: time.Now().Format(time.RFC3339),
	}
}

// PIDPath returns the server.pid path for an instance.
func (s *Supervisor) PIDPath(name string) string {
	return filepath.Join(s.InstanceDir(name), "server.pid")
}

// WritePIDFile records the running server for an instance.
func (s *Supervisor) WritePIDFile(name string, info PIDInfo) error {
	if err := os.MkdirAll(s.InstanceDir(name), 0o755); err != nil {
		return fmt.Errorf("creating instance directory: %w", err)
	}
	content, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding PID file: %w", err)
	}
	if err := os.WriteFile(s.PIDPath(name), content, 0o600); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the recorded server info, or an error when the
// file is missing or unreadable.
func (s *Supervisor) ReadPIDFile(name string) (*PIDInfo, error) {
	raw, err := os.ReadFile(s.PIDPath(name))
	if err != nil {
		return nil, err
	}
	var info PIDInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parsing PID file: %w", err)
	}
	return &info, nil
}

// RemovePIDFile deletes the PID file if present.
func (s *Supervisor) RemovePIDFile(name string) {
	_ = os.Remove(s.PIDPath(name))
}

// Alive reports whether a process with the given PID exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := gopsutil.PidExists(int32(pid))
	return err == nil && exists
}
