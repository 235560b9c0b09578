// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package storage

import (
	"strings"
	"testing"
)

// FuzzSanitizeFluxString tests Flux query sanitization with random inputs.
// Device IDs come from an external API, so everything interpolated into a
// Flux query has to survive hostile input.
func FuzzSanitizeFluxString(f *testing.F) {
	// Seed corpus with known attack patterns and edge cases
	f.Add("simple-device-123")
	f.Add("")
	f.Add("device\"with\"quotes")
	f.Add("device\\with\\backslashes")
	f.Add("\") |> drop() //")
	f.Add("device\nwith\nnewlines")
	f.Add("device\rwith\rcarriage\rreturns")
	f.Add("device\x00with\x00nulls")
	f.Add(") |> drop() |> from(bucket: \"malicious")
	f.Add("from(bucket: \"other\")")
	f.Add(strings.Repeat("A", 2000))
	f.Add(strings.Repeat("\"", 100))
	f.Add(strings.Repeat("\\", 100))

	f.Fuzz(func(t *testing.T, input string) {
		// Call should never panic
		result := sanitizeFluxString(input)

		// Each retained byte can expand to at most two bytes
		if len(result) > 2*maxFluxStringLength {
			t.Errorf("sanitizeFluxString() result too long: %d bytes", len(result))
		}

		// Every double quote in the output must be escaped
		for i := 0; i < len(result); i++ {
			if result[i] != '"' {
				continue
			}
			// Count the backslashes immediately preceding the quote; an
			// odd count means the quote is escaped
			backslashes := 0
			for j := i - 1; j >= 0 && result[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				t.Errorf("sanitizeFluxString(%q) left unescaped quote at %d: %q", input, i, result)
				break
			}
		}

		// Control characters must never survive
		for i := 0; i < len(result); i++ {
			if result[i] < 0x20 || result[i] == 0x7f {
				t.Errorf("sanitizeFluxString(%q) kept control byte %#x", input, result[i])
				break
			}
		}
	})
}
