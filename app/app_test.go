// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/patrickjcash/sump-pump-logger/pkg/interfaces"
)

// stubStorage satisfies TimeSeriesStorage with a controllable health result.
type stubStorage struct {
	healthErr error
}

func (s *stubStorage) WritePoint(_ context.Context, _ *interfaces.BasinPoint) error { return nil }

func (s *stubStorage) Flush() {}

func (s *stubStorage) Close() {}

func (s *stubStorage) Health(_ context.Context) error { return s.healthErr }

func TestHealthCheckHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthCheckHandler(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthCheckHandler() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if w.Body.String() != "OK" {
		t.Errorf("healthCheckHandler() body = %s, want OK", w.Body.String())
	}
}

func TestReadinessCheckHandler_Healthy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	readinessCheckHandler(w, req, &stubStorage{})

	if w.Code != http.StatusOK {
		t.Errorf("readinessCheckHandler() status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "READY" {
		t.Errorf("readinessCheckHandler() body = %s, want READY", w.Body.String())
	}
}

func TestReadinessCheckHandler_Unhealthy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	readinessCheckHandler(w, req, &stubStorage{healthErr: fmt.Errorf("connection refused")})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readinessCheckHandler() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// Two requests allowed, then deny
	limiter := rate.NewLimiter(rate.Limit(0), 2)
	handler := rateLimitMiddleware(limiter, healthCheckHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("rate-limited request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}
