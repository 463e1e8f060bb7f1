package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports readiness. Configuration issues are listed but do not
// fail readiness: a missing credential only disables the AI panels. Draining
// does fail it so load balancers stop routing new sessions here.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                bool     `json:"ok"`
		Draining          bool     `json:"draining"`
		GeminiConfigured  bool     `json:"gemini_configured"`
		RateLimitsEnabled bool     `json:"rate_limits_enabled"`
		Issues            []string `json:"issues,omitempty"`
	}

	draining := h.Lifecycle.IsDraining()
	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                !draining,
		Draining:          draining,
		GeminiConfigured:  h.Config.GeminiAPIKey != "",
		RateLimitsEnabled: h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0,
		Issues:            h.Config.Issues(),
	})
}
