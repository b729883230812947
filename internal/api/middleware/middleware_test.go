package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/observability/metrics"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Errorf("context id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if tt.incoming != "" && seen != tt.incoming {
				t.Errorf("id = %q, want %q", seen, tt.incoming)
			}
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"good-key": "nursing-portal"}

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantClient string
	}{
		{"x-api-key", "X-API-Key", "good-key", http.StatusOK, "nursing-portal"},
		{"bearer", "Authorization", "Bearer good-key", http.StatusOK, "nursing-portal"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"invalid", "X-API-Key", "bad-key", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var client string
			h := RequestID(APIKeyAuth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				client = GetClientID(r.Context())
			})))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/patient-education", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if client != tt.wantClient {
				t.Errorf("client = %q, want %q", client, tt.wantClient)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body ErrorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Error != "unauthorized" || body.RequestID == "" {
					t.Errorf("body = %+v", body)
				}
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := RequestID(Recover(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "internal_error" {
		t.Errorf("body = %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/clinical-summary", nil))

	if called {
		t.Error("preflight reached the handler")
	}
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("status %d, headers %v", rec.Code, rec.Header())
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/v1/drafts/{id}", ok)

	for _, path := range []string{"/api/v1/drafts/a", "/api/v1/drafts/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/drafts/{id}", "200")); n != 2 {
		t.Errorf("route count = %v, want 2", n)
	}
	if n := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); n != 1 {
		t.Errorf("unmatched count = %v, want 1", n)
	}
}
