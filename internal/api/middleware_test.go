package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"media-gateway/auth"
	"media-gateway/config"
	"media-gateway/jobs"
	"media-gateway/models"
	"media-gateway/observability"
	"media-gateway/ratelimit"
)

// captureLogs points the global logger at a buffer for the duration of
// a test and restores it afterwards
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	saved := observability.Logger
	var buf bytes.Buffer
	observability.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	t.Cleanup(func() { observability.Logger = saved })
	return &buf
}

func TestSecurityHeaders(t *testing.T) {
	t.Run("attached to successful responses", func(t *testing.T) {
		_, router := testStack(t)

		w := doRequest(router, http.MethodGet, "/api/health", "", nil)
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("expected nosniff, got %q", got)
		}
		if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("expected DENY, got %q", got)
		}
		if got := w.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("expected no-store, got %q", got)
		}
	})

	t.Run("attached to error responses", func(t *testing.T) {
		_, router := testStack(t)

		w := doRequest(router, http.MethodGet, "/api/jobs", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("headers missing on error response, got %q", got)
		}
	})
}

func TestCORS(t *testing.T) {
	t.Run("preflight short-circuits with 204", func(t *testing.T) {
		_, router := testStack(t)

		req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("preflight body should be empty, got %q", w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("expected reflected origin, got %q", got)
		}
	})

	t.Run("disallowed origin gets no CORS headers", func(t *testing.T) {
		_, router := testStack(t)

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header, got %q", got)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("over quota yields 429 with metadata", func(t *testing.T) {
		repo, router := testStack(t)
		key, cred := seedCredential(t, repo, models.TierDownload)
		quota := 2
		cred.CustomQuota = &quota
		repo.UpdateCredential(context.Background(), cred)

		for i := 0; i < 2; i++ {
			w := doRequest(router, http.MethodGet, "/api/limits", key, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
			}
		}

		w := doRequest(router, http.MethodGet, "/api/limits", key, nil)
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
			t.Errorf("expected remaining 0, got %q", got)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("expected limit 2, got %q", got)
		}
		if got := w.Header().Get("X-RateLimit-Reset"); got == "" {
			t.Error("expected reset header")
		}
	})

	t.Run("exempt paths are never throttled", func(t *testing.T) {
		repo, router := testStack(t)
		repo.windowErr = nil

		for i := 0; i < 30; i++ {
			w := doRequest(router, http.MethodGet, "/api/health", "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("health request %d throttled: %d", i+1, w.Code)
			}
			if got := w.Header().Get("X-RateLimit-Limit"); got != "" {
				t.Fatal("exempt path should carry no rate limit headers")
			}
		}
	})

	t.Run("successful responses carry window headers", func(t *testing.T) {
		repo, router := testStack(t)
		key, _ := seedCredential(t, repo, models.TierDownload)

		w := doRequest(router, http.MethodGet, "/api/limits", key, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "30" {
			t.Errorf("expected limit 30, got %q", got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != "29" {
			t.Errorf("expected remaining 29, got %q", got)
		}
	})

	t.Run("store outage fails open", func(t *testing.T) {
		repo, router := testStack(t)
		key, _ := seedCredential(t, repo, models.TierDownload)
		repo.windowErr = errors.New("connection refused")

		for i := 0; i < 40; i++ {
			w := doRequest(router, http.MethodGet, "/api/jobs", key, nil)
			if w.Code == http.StatusTooManyRequests {
				t.Fatalf("request %d throttled during store outage", i+1)
			}
		}
	})

	t.Run("anonymous callers are limited by IP", func(t *testing.T) {
		_, router := testStack(t)

		var last *httptest.ResponseRecorder
		for i := 0; i < 11; i++ {
			last = doRequest(router, http.MethodGet, "/api/limits", "", nil)
		}
		if last.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 after exhausting anonymous quota, got %d", last.Code)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Run("logs the resolved credential identity", func(t *testing.T) {
		repo, router := testStack(t)
		key, cred := seedCredential(t, repo, models.TierDownload)
		buf := captureLogs(t)

		w := doRequest(router, http.MethodGet, "/api/limits", key, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		out := buf.String()
		if !strings.Contains(out, "identity="+cred.ID.String()) {
			t.Errorf("request log missing credential identity: %s", out)
		}
		if strings.Contains(out, "identity=anonymous") {
			t.Error("authenticated request logged as anonymous")
		}
	})

	t.Run("logs anonymous for unauthenticated requests", func(t *testing.T) {
		_, router := testStack(t)
		buf := captureLogs(t)

		w := doRequest(router, http.MethodGet, "/api/limits", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(buf.String(), "identity=anonymous") {
			t.Errorf("expected anonymous identity in log: %s", buf.String())
		}
	})
}

func TestIdentityContext_StageFaultForwards(t *testing.T) {
	// A resolver with no backing store panics on lookup; both the rate
	// limit and identity stages must swallow the fault and forward the
	// request, leaving authorization to reject it.
	cfg := config.NewTestConfig()
	repo := newFakeRepo()
	resolver := auth.NewResolver(nil)
	limiter := ratelimit.NewLimiter(repo, cfg.RateLimit)
	gw := NewGateway(cfg, resolver, limiter)
	controller := jobs.NewController(repo, cfg.Jobs.DefaultMaxRetries)
	handler := NewHandler(cfg, repo, controller, limiter)
	router := NewRouter(handler, gw, cfg)

	key, _, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	w := doRequest(router, http.MethodGet, "/api/jobs", key, nil)
	if w.Code == http.StatusInternalServerError {
		t.Fatal("stage fault escaped to the recoverer")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unresolved identity, got %d", w.Code)
	}
}

func TestGetIdentity(t *testing.T) {
	t.Run("missing identity is nil", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if got := GetIdentity(req.Context()); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		id := &Identity{Identifier: "ip:127.0.0.1"}
		ctx := SetIdentity(req.Context(), id)
		if got := GetIdentity(ctx); got != id {
			t.Error("identity did not round trip through context")
		}
	})
}
