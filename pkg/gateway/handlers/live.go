package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/live"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/gateway/apierror"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/lifecycle"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/ratelimit"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

const priorityQueueSize = 32

var errRelayBacklogged = errors.New("live relay control queue is full")

// LiveHandler relays a browser's microphone to a Gemini live session and the
// model's speech back, over one websocket per session.
//
// Client to server: binary frames of 16 kHz mono capture, PCM16 by default or
// float32 with ?encoding=f32; a text frame {"type":"stop"} ends the session.
// Server to client: JSON text frames of type status, audio, interrupted,
// warning and error.
type LiveHandler struct {
	Config    config.Config
	Sessions  *sessions.Registry
	Gateway   gemini.Gateway
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Tracker   *sessions.Tracker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"}, 529)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}

	// Browsers cannot set headers on a websocket handshake; accept the id
	// as a query parameter too.
	id := mw.SessionIDFrom(r)
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	sess, ok := resolveSessionID(h.Sessions, w, r, id)
	if !ok {
		return
	}
	if !sess.App.Authenticated() {
		writeError(w, r, errLocked)
		return
	}
	if sess.App.View() != appstate.ViewLive {
		writeError(w, r, core.NewConflictError("live voice is only available from the LIVE view", "view_not_live"))
		return
	}

	floatInput := false
	switch enc := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("encoding"))); enc {
	case "", "pcm16":
	case "f32":
		floatInput = true
	default:
		writeError(w, r, core.NewInvalidRequestErrorWithParam("encoding must be pcm16 or f32", "encoding"))
		return
	}

	if h.Limiter != nil {
		dec := h.Limiter.AcquireLive(mw.ClientKey(r, h.Config.TrustProxyHeaders), time.Now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit("live")
			w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			writeError(w, r, core.NewRateLimitError("too many live sessions for this client", dec.RetryAfter))
			return
		}
		defer dec.Permit.Release()
	}

	relayID := uuid.NewString()
	logger := h.Logger.With("session_id", sess.ID, "relay_id", relayID, "request_id", reqID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	relay := newLiveRelay(h.Config.LiveOutboundQueue, h.Metrics, logger)
	unregister, err := h.Tracker.Register(relayID, sessions.RelayHandle{Cancel: cancel, Warn: relay.warn})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unregister()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	ws.SetReadLimit(int64(h.Config.LiveMaxFrameBytes))

	detach := sess.AttachLive(cancel)
	defer detach()

	conn := live.NewConn(live.ConnConfig{
		OpenCapture: func(context.Context) (live.Capture, error) { return relayCapture{}, nil },
		OpenOutput: func(context.Context) (live.Output, error) {
			return relay.output, nil
		},
		Dial: func(ctx context.Context) (live.VendorSession, error) {
			return h.Gateway.ConnectLive(ctx, gemini.LiveOptions{
				Voice:             gemini.DefaultVoice,
				SystemInstruction: gemini.DefaultLiveInstruction,
				InputFormat:       live.InputAudioConfig(),
			})
		},
		FrameSamples:  live.CaptureFrameSamples,
		OnState:       relay.onState,
		OnInterrupted: relay.onInterrupted,
		Logger:        logger,
	})

	started := time.Now()
	h.Metrics.RecordLiveSessionStart()
	logger.Info("live relay opened")

	g, gctx := errgroup.WithContext(ctx)
	writer := &relayWriter{
		ws:           ws,
		ctx:          gctx,
		pingInterval: h.Config.LiveWSPingInterval,
		writeTimeout: h.Config.LiveWSWriteTimeout,
		priority:     relay.priority,
		normal:       relay.normal,
		claim:        relay.output.claim,
	}
	g.Go(func() error {
		defer cancel()
		return writer.Run()
	})
	g.Go(func() error {
		defer cancel()
		return relay.readLoop(ws, conn, floatInput)
	})
	g.Go(func() error {
		defer cancel()
		if err := conn.Start(gctx); err != nil {
			// Reported to the client through the errored status frame.
			return nil
		}
		return conn.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		conn.Teardown()
		return nil
	})
	runErr := g.Wait()

	status := "closed"
	if st, stErr := conn.State(); st == live.StateErrored {
		status = "errored"
		logger.Warn("live relay errored", "error", stErr)
	} else if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Debug("live relay ended with error", "error", runErr)
	}
	h.Metrics.RecordLiveSessionEnd(status, time.Since(started))
	logger.Info("live relay closed", "status", status, "duration_ms", time.Since(started).Milliseconds())
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// relayCapture stands in for the microphone, which lives in the browser.
type relayCapture struct{}

func (relayCapture) Close() error { return nil }

// liveRelay holds the outbound queues shared by the vendor loop, the
// scheduler output and the websocket writer.
type liveRelay struct {
	priority chan relayFrame
	normal   chan relayFrame
	output   *remoteOutput
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newLiveRelay(queue int, m *metrics.Metrics, logger *slog.Logger) *liveRelay {
	if queue <= 0 {
		queue = 256
	}
	normal := make(chan relayFrame, queue)
	return &liveRelay{
		priority: make(chan relayFrame, priorityQueueSize),
		normal:   normal,
		output:   newRemoteOutput(normal, m),
		metrics:  m,
		logger:   logger,
	}
}

type statusFrame struct {
	Type  string      `json:"type"`
	State live.State  `json:"state"`
	Error *core.Error `json:"error,omitempty"`
}

type interruptedFrame struct {
	Type    string   `json:"type"`
	Stopped []uint64 `json:"stopped"`
}

type warningFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type clientMessage struct {
	Type string `json:"type"`
}

func (l *liveRelay) sendPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case l.priority <- relayFrame{payload: payload}:
		return nil
	default:
		return errRelayBacklogged
	}
}

func (l *liveRelay) onState(state live.State, err error) {
	frame := statusFrame{Type: "status", State: state}
	if err != nil {
		frame.Error, _ = apierror.FromError(err, "")
	}
	if sendErr := l.sendPriority(frame); sendErr != nil {
		l.logger.Warn("live status frame dropped", "state", state, "error", sendErr)
	}
}

func (l *liveRelay) onInterrupted(stopped []uint64) {
	l.metrics.RecordLiveInterruption()
	if stopped == nil {
		stopped = []uint64{}
	}
	if err := l.sendPriority(interruptedFrame{Type: "interrupted", Stopped: stopped}); err != nil {
		l.logger.Warn("live interruption frame dropped", "error", err)
	}
}

// warn queues a warning for the client, e.g. an imminent shutdown.
func (l *liveRelay) warn(code, message string) error {
	return l.sendPriority(warningFrame{Type: "warning", Code: code, Message: message})
}

// readLoop feeds client audio into conn until the client leaves or asks to
// stop. A read error is the client going away, not a relay failure.
func (l *liveRelay) readLoop(ws *websocket.Conn, conn *live.Conn, floatInput bool) error {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}
		switch mt {
		case websocket.BinaryMessage:
			pcm := data
			if floatInput {
				samples, err := live.DecodeFloat32LE(data)
				if err != nil {
					_ = l.warn("bad_audio", err.Error())
					continue
				}
				pcm = live.Float32ToPCM16(samples)
			}
			l.metrics.RecordLiveAudio("in", len(pcm))
			conn.PushCapture(pcm)
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = l.warn("bad_message", "text frames must be JSON")
				continue
			}
			if msg.Type == "stop" {
				return nil
			}
			_ = l.warn("unknown_message", "unsupported message type "+strconv.Quote(msg.Type))
		}
	}
}
