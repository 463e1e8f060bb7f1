package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini/geminitest"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		MaxBodyBytes:       1 << 20,
		CORSAllowedOrigins: map[string]struct{}{},
		SessionTTL:         time.Hour,
		LiveMaxFrameBytes:  32 * 1024,
		LiveWSPingInterval: time.Hour,
		LiveWSWriteTimeout: time.Second,
		LiveOutboundQueue:  64,
	}
}

type testEnv struct {
	cfg      config.Config
	gw       *geminitest.Gateway
	sessions *sessions.Registry
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, gw *geminitest.Gateway) *testEnv {
	t.Helper()
	if gw == nil {
		gw = &geminitest.Gateway{}
	}
	m := metrics.New("test")
	reg := sessions.NewRegistry(sessions.Options{
		Gateway:           gw,
		Metrics:           m,
		Logger:            discardLogger(),
		LoginDelay:        -1,
		VideoPollInterval: time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return &testEnv{cfg: testConfig(), gw: gw, sessions: reg, metrics: m}
}

func (e *testEnv) app() AppHandler {
	return AppHandler{Config: e.cfg, Sessions: e.sessions, Metrics: e.metrics, Logger: discardLogger()}
}

// unlocked creates a session that has passed the login gate.
func (e *testEnv) unlocked(t *testing.T) *sessions.Session {
	t.Helper()
	sess := e.sessions.Create(appstate.LanguagePT)
	ok, err := sess.App.Login(context.Background(), "VIBE2026")
	if err != nil || !ok {
		t.Fatalf("Login() = %v, %v", ok, err)
	}
	return sess
}

func doRequest(t *testing.T, h http.HandlerFunc, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if sessionID != "" {
		req.Header.Set(mw.SessionHeader, sessionID)
	}
	req = req.WithContext(mw.WithRequestID(req.Context(), "req_test"))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		Param     string `json:"param"`
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, errType, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status=%d, want %d; body=%s", rr.Code, status, rr.Body.String())
	}
	body := decodeBody[errorBody](t, rr)
	if body.Error.Type != errType {
		t.Fatalf("error type=%q, want %q", body.Error.Type, errType)
	}
	if code != "" && body.Error.Code != code {
		t.Fatalf("error code=%q, want %q", body.Error.Code, code)
	}
	if body.Error.RequestID != "req_test" {
		t.Fatalf("request_id=%q, want req_test", body.Error.RequestID)
	}
}
