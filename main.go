// bizartvisor - stream conversations with a bizartvisor backend from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/bizartvisor-cli/internal/cli"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	version := fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
	if err := cli.Execute(context.Background(), version); err != nil {
		fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
		os.Exit(cli.ExitCode(err))
	}
}
