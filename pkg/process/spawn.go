// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// SpawnDetached starts `<self> serve <name>` in a new session with
// discarded stdio, then polls briefly for the PID file. A nil PIDInfo
// with nil error means the server is still starting.
func (s *Supervisor) SpawnDetached(name, host string, port int) (*PIDInfo, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	args := []string{"serve", name}
	if host != "" {
		args = append(args, "--host", host)
	}
	if port != 0 {
		args = append(args, "--port", strconv.Itoa(port))
	}

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = detachAttrs()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting server process: %w", err)
	}
	_ = cmd.Process.Release()

	// up to 2 seconds for the server to write its PID file
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if info, err := s.ReadPIDFile(name); err == nil && Alive(info.PID) {
			return info, nil
		}
	}
	return nil, nil
}

// StartCommand is the shell command that starts an instance, echoed in
// restart hints.
func (s *Supervisor) StartCommand(name string) string {
	return fmt.Sprintf("%s serve %s", s.CLIName, name)
}
