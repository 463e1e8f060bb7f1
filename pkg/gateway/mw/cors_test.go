package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vibevote/pkg/gateway/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_DisabledByDefault_NoHeaders(t *testing.T) {
	h := CORS(config.Config{CORSAllowedOrigins: map[string]struct{}{}}, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got Access-Control-Allow-Origin=%q", got)
	}
}

func TestCORS_AllowlistedOrigin_AttachesHeaders(t *testing.T) {
	h := CORS(config.Config{CORSAllowedOrigins: map[string]struct{}{
		"http://localhost:3000": {},
	}}, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Access-Control-Allow-Credentials=%q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, SessionHeader) {
		t.Fatalf("exposed headers %q should include %s", got, SessionHeader)
	}
}

func TestCORS_Preflight(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{"https://app.example.com": {}}}
	tests := []struct {
		origin     string
		wantStatus int
	}{
		{"https://app.example.com", http.StatusNoContent},
		{"https://evil.example.com", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		h := CORS(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("next handler should not be called for preflight")
		}))
		req := httptest.NewRequest(http.MethodOptions, "/v1/votes", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != tt.wantStatus {
			t.Fatalf("origin %q: status=%d body=%q", tt.origin, rr.Code, rr.Body.String())
		}
		if tt.wantStatus == http.StatusNoContent {
			if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, SessionHeader) {
				t.Fatalf("allowed headers %q should include %s", got, SessionHeader)
			}
		}
	}
}
