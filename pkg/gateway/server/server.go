package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/catalog"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/handlers"
	"github.com/vango-go/vibevote/pkg/gateway/lifecycle"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/ratelimit"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

const janitorInterval = time.Minute

// Deps are the collaborators a Server is built around. Nil fields get
// production defaults; tests swap in fakes.
type Deps struct {
	Gateway    gemini.Gateway
	Catalog    *catalog.Catalog
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	Clock      appstate.Clock
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	gateway    gemini.Gateway
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	httpClient *http.Client
	lifecycle  *lifecycle.Lifecycle
	limiter    *ratelimit.Limiter
	sessions   *sessions.Registry
	tracker    *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Gateway == nil {
		// Without a key the client only reports configuration errors.
		client, _ := gemini.New(context.Background(), "", gemini.WithLogger(logger))
		deps.Gateway = client
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}

	// Config treats zero as "no delay"; the app treats zero as "default".
	loginDelay := cfg.LoginDelay
	if loginDelay == 0 {
		loginDelay = -1
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		gateway:    deps.Gateway,
		catalog:    deps.Catalog,
		metrics:    deps.Metrics,
		httpClient: deps.HTTPClient,
		lifecycle:  &lifecycle.Lifecycle{},
		limiter: ratelimit.New(ratelimit.Config{
			RPS:              cfg.LimitRPS,
			Burst:            cfg.LimitBurst,
			MaxLivePerClient: 1,
		}),
		tracker: sessions.NewTracker(cfg.LiveMaxSessions),
	}
	s.sessions = sessions.NewRegistry(sessions.Options{
		Gateway:            deps.Gateway,
		Catalog:            deps.Catalog,
		Metrics:            deps.Metrics,
		Logger:             logger,
		TTL:                cfg.SessionTTL,
		MaxSessions:        cfg.MaxSessions,
		LoginDelay:         loginDelay,
		LoginErrorDuration: cfg.LoginErrorDuration,
		ToastDuration:      cfg.ToastDuration,
		VideoPollInterval:  cfg.VideoPollInterval,
		VideoPollTimeout:   cfg.VideoPollTimeout,
		Clock:              deps.Clock,
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	timed := func(h http.HandlerFunc) http.Handler {
		return withTimeout(s.cfg.HandlerTimeout, h)
	}

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	app := handlers.AppHandler{Config: s.cfg, Sessions: s.sessions, Metrics: s.metrics, Logger: s.logger}
	s.mux.Handle("POST /v1/sessions", timed(app.CreateSession))
	s.mux.Handle("GET /v1/state", timed(app.State))
	s.mux.Handle("POST /v1/login", timed(app.Login))
	s.mux.Handle("POST /v1/logout", timed(app.Logout))
	s.mux.Handle("POST /v1/navigate", timed(app.Navigate))
	s.mux.Handle("POST /v1/votes", timed(app.Vote))
	s.mux.Handle("POST /v1/toast/dismiss", timed(app.DismissToast))
	s.mux.Handle("POST /v1/profile/toggle", timed(app.ToggleProfile))
	s.mux.Handle("POST /v1/language", timed(app.SetLanguage))
	// Long-lived stream; not bounded by the handler timeout.
	s.mux.Handle("GET /v1/events", handlers.EventsHandler{
		Config:    s.cfg,
		Sessions:  s.sessions,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})

	cat := handlers.CatalogHandler{Catalog: s.catalog, Sessions: s.sessions}
	s.mux.Handle("GET /v1/catalog", timed(cat.Lineup))
	s.mux.Handle("GET /v1/ranking", timed(cat.Ranking))
	s.mux.Handle("GET /v1/rewards", timed(cat.Rewards))

	chat := handlers.ChatHandler{Config: s.cfg, Sessions: s.sessions, Metrics: s.metrics}
	s.mux.Handle("GET /v1/chat", timed(chat.History))
	s.mux.Handle("POST /v1/chat", timed(chat.Send))

	img := handlers.ImageHandler{Config: s.cfg, Sessions: s.sessions, Gateway: s.gateway, Metrics: s.metrics, Logger: s.logger}
	s.mux.Handle("POST /v1/images:generate", timed(img.Generate))
	s.mux.Handle("POST /v1/images:edit", timed(img.Edit))

	vid := handlers.VideoHandler{Config: s.cfg, Sessions: s.sessions, Gateway: s.gateway, HTTPClient: s.httpClient, Metrics: s.metrics, Logger: s.logger}
	s.mux.Handle("POST /v1/videos", timed(vid.Start))
	s.mux.Handle("GET /v1/videos/{id}", timed(vid.Get))
	// Streams; bounded by the client connection only.
	s.mux.HandleFunc("GET /v1/videos/{id}/content", vid.Content)

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Config:    s.cfg,
		Sessions:  s.sessions,
		Gateway:   s.gateway,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Tracker:   s.tracker,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	// Instrument must wrap the mux directly so it sees the matched pattern.
	h = mw.Instrument(s.metrics, h)
	h = mw.RateLimit(s.cfg, s.limiter, s.metrics, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// withTimeout bounds a handler's context. Unlike http.TimeoutHandler it does
// not buffer the response.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RunJanitor evicts idle sessions until ctx ends.
func (s *Server) RunJanitor(ctx context.Context) {
	s.sessions.Run(ctx, janitorInterval)
}

// SetDraining starts shutdown. Open state event streams end right away so
// http.Server.Shutdown is not held by them.
func (s *Server) SetDraining() {
	s.lifecycle.Drain()
}

// WarnLiveSessionsDraining tells every open live relay the server is going
// away and returns how many were told.
func (s *Server) WarnLiveSessionsDraining() int {
	n := s.tracker.WarnAll("draining", "server is shutting down; the voice session will end shortly")
	if n > 0 {
		s.logger.Info("warned live sessions about shutdown", "count", n)
	}
	return n
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

func (s *Server) CancelLiveSessions() {
	s.tracker.CancelAll()
}

// Close ends every client session and its background work.
func (s *Server) Close(ctx context.Context) error {
	return s.sessions.Close(ctx)
}

func (s *Server) Sessions() *sessions.Registry {
	return s.sessions
}
