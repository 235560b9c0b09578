// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/patrickjcash/sump-pump-logger/app"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows, which has no
// SIGUSR1/SIGUSR2 equivalents.
func setupDebugSignalHandlers(_ *app.App) {
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
