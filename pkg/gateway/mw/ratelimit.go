package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/ratelimit"
)

func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health and scrape endpoints must remain cheap and reliable.
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AcquireRequest(ClientKey(r, cfg.TrustProxyHeaders), time.Now())
		if !dec.Allowed {
			m.RecordRateLimitHit("requests")
			reqID, _ := RequestIDFrom(r.Context())
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			ce := core.NewRateLimitError("rate limit exceeded", dec.RetryAfter)
			ce.RequestID = reqID
			if dec.RetryAfter <= 0 {
				ce.RetryAfter = nil
			}
			writeJSONError(w, http.StatusTooManyRequests, ce)
			return
		}

		next.ServeHTTP(w, r)
	})
}
