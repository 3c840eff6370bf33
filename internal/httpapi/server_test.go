package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestServer_Healthz_OKWhenCheckPasses(t *testing.T) {
	s := New("0", func(ctx context.Context) error { return nil }, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_Healthz_DegradedWhenCheckFails(t *testing.T) {
	s := New("0", func(ctx context.Context) error { return errors.New("unreachable") }, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestServer_Metrics_ServesPrometheusText(t *testing.T) {
	s := New("0", func(ctx context.Context) error { return nil }, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_Serve_ShutsDownOnContextCancel(t *testing.T) {
	s := New("0", func(ctx context.Context) error { return nil }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
}
