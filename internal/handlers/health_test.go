package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandlerWithoutChecks(t *testing.T) {
	handler := HealthHandler{}

	rec := httptest.NewRecorder()
	handler.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type got %s", got)
	}

	rec = httptest.NewRecorder()
	handler.Handle(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed got %d", rec.Code)
	}
}

func TestHealthHandlerReportsFailingCheck(t *testing.T) {
	handler := HealthHandler{Checks: map[string]HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
		"objects":  func(context.Context) error { return nil },
	}}

	rec := httptest.NewRecorder()
	handler.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "unavailable" {
		t.Fatalf("expected unavailable status got %q", body.Status)
	}
	if body.Checks["database"] != "connection refused" {
		t.Fatalf("expected database failure to be reported got %q", body.Checks["database"])
	}
	if body.Checks["objects"] != "ok" {
		t.Fatalf("expected objects check ok got %q", body.Checks["objects"])
	}
}

func TestHealthHandlerChecksHaveDeadline(t *testing.T) {
	var hadDeadline bool
	handler := HealthHandler{Checks: map[string]HealthCheck{
		"database": func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		},
	}}

	rec := httptest.NewRecorder()
	handler.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !hadDeadline {
		t.Fatal("expected checks to run with a deadline")
	}
}
