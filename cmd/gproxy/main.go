// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the gproxy command line.
package main

import (
	"os"

	"github.com/genropy/gproxy/cmd/gproxy/app"
	"github.com/genropy/gproxy/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
