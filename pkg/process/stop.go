// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"time"
)

const (
	stopPollInterval = 100 * time.Millisecond
	stopTimeout      = 5 * time.Second
)

// Stop terminates an instance's server process. The default signal is
// SIGTERM with a SIGKILL escalation after the timeout; force starts with
// SIGKILL. The PID file is dropped once the process is gone. Returns
// true when the process terminated.
func (s *Supervisor) Stop(name string, force bool) bool {
	st := s.Status(name)
	if !st.Running {
		return false
	}
	pid := st.PID

	if err := sendStopSignal(pid, force); err != nil {
		// already gone or out of reach
		s.RemovePIDFile(name)
		return false
	}

	iterations := int(stopTimeout / stopPollInterval)
	for i := 0; i < iterations; i++ {
		time.Sleep(stopPollInterval)
		if !Alive(pid) {
			s.RemovePIDFile(name)
			return true
		}
	}

	if !force {
		if err := sendStopSignal(pid, true); err != nil {
			s.RemovePIDFile(name)
			return false
		}
		time.Sleep(500 * time.Millisecond)
		if !Alive(pid) {
			s.RemovePIDFile(name)
			return true
		}
	}
	return false
}

// StopAll stops every running instance and returns the stopped names.
func (s *Supervisor) StopAll(force bool) []string {
	var stopped []string
	for _, inst := range s.List() {
		if inst.Running && s.Stop(inst.Name, force) {
			stopped = append(stopped, inst.Name)
		}
	}
	return stopped
}
