package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/lifecycle"
)

type readyBody struct {
	OK               bool     `json:"ok"`
	Draining         bool     `json:"draining"`
	GeminiConfigured bool     `json:"gemini_configured"`
	Issues           []string `json:"issues"`
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_ListsIssuesButStaysReady(t *testing.T) {
	h := ReadyHandler{Config: config.Config{}, Lifecycle: &lifecycle.Lifecycle{}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decodeBody[readyBody](t, rr)
	if !body.OK || body.GeminiConfigured || len(body.Issues) != 1 {
		t.Fatalf("body=%+v", body)
	}
}

func TestReadyHandler_DrainingFails(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.Drain()
	h := ReadyHandler{Config: config.Config{GeminiAPIKey: "k"}, Lifecycle: lc}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decodeBody[readyBody](t, rr)
	if body.OK || !body.Draining || !body.GeminiConfigured || len(body.Issues) != 0 {
		t.Fatalf("body=%+v", body)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rr := doRequest(t, NotFoundHandler{}.ServeHTTP, http.MethodGet, "/nope", "", nil)
	expectError(t, rr, http.StatusNotFound, "not_found_error", "")
}
