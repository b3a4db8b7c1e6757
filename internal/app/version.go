// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package app

import (
	"fmt"
	"runtime"
)

// Build information, set via -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// PrintVersion prints build information.
func PrintVersion() {
	fmt.Printf("broccoli-console %s (commit: %s, built: %s, %s)\n", Version, Commit, BuildTime, runtime.Version())
}
