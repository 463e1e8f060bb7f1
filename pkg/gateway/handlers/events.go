package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/lifecycle"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
	"github.com/vango-go/vibevote/pkg/gateway/sse"
)

// EventsHandler streams state snapshots for one session as server-sent
// events. Timer-driven changes (toast expiry, login completion) reach the
// client here without polling. Streams end with a "draining" event when the
// server starts shutting down.
type EventsHandler struct {
	Config    config.Config
	Sessions  *sessions.Registry
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

type expiredEvent struct {
	SessionID string `json:"session_id"`
}

type drainingEvent struct {
	Message string `json:"message"`
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	changes, stop := sess.Watch()
	defer stop()

	stream, err := sse.New(w)
	if err != nil {
		writeCoreErrorJSON(w, requestID(r), core.NewAPIError("streaming is not supported by this connection"), http.StatusInternalServerError)
		return
	}
	if err := stream.Send("state", sess.App.Snapshot()); err != nil {
		return
	}

	keepalive := h.Config.EventsKeepalive
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	draining := h.Lifecycle.Draining()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-draining:
			_ = stream.Send("draining", drainingEvent{Message: "server is shutting down; reconnect shortly"})
			return
		case _, open := <-changes:
			if !open {
				_ = stream.Send("expired", expiredEvent{SessionID: sess.ID})
				return
			}
			if err := stream.Send("state", sess.App.Snapshot()); err != nil {
				logger.Debug("events stream write failed", "session_id", sess.ID, "error", err)
				return
			}
		case <-ticker.C:
			// An open stream counts as activity.
			if _, ok := h.Sessions.Get(sess.ID); !ok {
				_ = stream.Send("expired", expiredEvent{SessionID: sess.ID})
				return
			}
			if err := stream.Comment("keepalive"); err != nil {
				return
			}
		}
	}
}
