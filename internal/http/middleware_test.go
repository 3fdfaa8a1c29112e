package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"snaportho-caseprep/internal/contextutil"
)

func TestLoggerMiddleware(t *testing.T) {
	var got *slog.Logger
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = contextutil.LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/case-prep", nil)
	w := httptest.NewRecorder()
	LoggerMiddleware(inner).ServeHTTP(w, req)

	if got == nil {
		t.Fatal("handler did not run")
	}
	if got == slog.Default() {
		t.Error("expected a request-scoped logger, got the default")
	}
}

func TestCORSHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.snaportho.com")
	w := httptest.NewRecorder()
	CORS(inner).ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.snaportho.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("missing Allow-Methods header")
	}
}

func TestCORSWildcardWithoutOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	CORS(inner).ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/case-prep", nil)
	w := httptest.NewRecorder()
	CORS(inner).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if innerCalled {
		t.Error("preflight must not reach the inner handler")
	}
}
