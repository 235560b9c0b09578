// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/patrickjcash/sump-pump-logger/app"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
)

// setupDebugSignalHandlers installs SIGUSR1/SIGUSR2 handlers for runtime
// debugging. SIGUSR1 dumps application state, SIGUSR2 dumps goroutine
// stack traces.
func setupDebugSignalHandlers(application *app.App) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGUSR1:
				logger.Info().Msg("Received SIGUSR1, dumping application state")
				application.DumpApplicationState()
			case syscall.SIGUSR2:
				logger.Info().Msg("Received SIGUSR2, dumping goroutine stack traces")
				app.DumpGoroutineStackTraces()
			}
		}
	}()
}
