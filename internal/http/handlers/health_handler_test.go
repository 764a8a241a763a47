package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/tbourn/go-user-service/internal/repo"
)

func TestHealth_ReportsEachDependency(t *testing.T) {
	e := newEnv(t)
	e.h.checks = []HealthCheck{
		{Name: "database", Ping: func(ctx context.Context) error { return repo.Ping(ctx, e.db) }},
		{Name: "cache", Ping: func(context.Context) error { return errors.New("connection refused") }},
	}

	w := do(t, e.r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Status != "healthy" || body.Service != "user-service" || body.Timestamp.IsZero() {
		t.Fatalf("body = %+v", body)
	}
	if got := body.Dependencies["database"]; got != "healthy" {
		t.Fatalf("database = %q", got)
	}
	if got := body.Dependencies["cache"]; got != "unhealthy: connection refused" {
		t.Fatalf("cache = %q", got)
	}
}

func TestHealth_ChecksSeeDeadline(t *testing.T) {
	e := newEnv(t)
	var hasDeadline bool
	e.h.checks = []HealthCheck{{Name: "database", Ping: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}}

	do(t, e.r, http.MethodGet, "/health", nil)
	if !hasDeadline {
		t.Fatalf("health check ran without a deadline")
	}
}
