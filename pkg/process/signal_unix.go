// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package process

import "syscall"

// sendStopSignal delivers SIGTERM, or SIGKILL when force is set.
func sendStopSignal(pid int, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	return syscall.Kill(pid, sig)
}

// detachAttrs detaches spawned servers into their own session so they
// survive the CLI process.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
