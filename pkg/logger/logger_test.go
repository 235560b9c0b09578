// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"warning alias", "warning", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"fatal", "fatal", zerolog.FatalLevel},
		{"panic", "panic", zerolog.PanicLevel},
		{"invalid defaults to info", "invalid", zerolog.InfoLevel},
		{"empty defaults to info", "", zerolog.InfoLevel},
		{"uppercase", "DEBUG", zerolog.DebugLevel},
		{"mixed case", "WaRn", zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if err != nil {
				t.Fatalf("parseLogLevel(%q) returned error: %v", tt.level, err)
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, level, tt.expected)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		t.Run(level, func(t *testing.T) {
			Initialize(level)
			if Get() == nil {
				t.Fatal("Get() returned nil logger after Initialize()")
			}
		})
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	Initialize("debug")
	SetOutput(&buf)

	tests := []struct {
		name    string
		logFunc func() *zerolog.Event
		message string
	}{
		{"debug", Debug, "debug message"},
		{"info", Info, "info message"},
		{"warn", Warn, "warn message"},
		{"error", Error, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			event := tt.logFunc()
			if event == nil {
				t.Fatalf("%s() returned nil event", tt.name)
			}

			event.Msg(tt.message)

			if !strings.Contains(buf.String(), tt.message) {
				t.Errorf("%s() output should contain %q, got %q", tt.name, tt.message, buf.String())
			}
		})
	}
}

func TestWith(t *testing.T) {
	Initialize("info")

	child := With().Str("device_id", "basin-1").Logger()

	var buf bytes.Buffer
	child = child.Output(&buf)
	child.Info().Msg("child logger message")

	output := buf.String()
	if !strings.Contains(output, "child logger message") {
		t.Error("child logger should be functional")
	}
	if !strings.Contains(output, "basin-1") {
		t.Errorf("child logger output should carry the bound field, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name        string
		configLevel string
		log         func(string)
		shouldLog   bool
	}{
		{"info logs at info level", "info", func(m string) { Info().Msg(m) }, true},
		{"debug filtered at info level", "info", func(m string) { Debug().Msg(m) }, false},
		{"warn logs at info level", "info", func(m string) { Warn().Msg(m) }, true},
		{"debug logs at debug level", "debug", func(m string) { Debug().Msg(m) }, true},
		{"info filtered at error level", "error", func(m string) { Info().Msg(m) }, false},
		{"error logs at error level", "error", func(m string) { Error().Msg(m) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Initialize(tt.configLevel)
			SetOutput(&buf)

			const message = "filtering probe"
			tt.log(message)

			logged := strings.Contains(buf.String(), message)
			if logged != tt.shouldLog {
				t.Errorf("logged = %v, want %v (output: %q)", logged, tt.shouldLog, buf.String())
			}
		})
	}
}
