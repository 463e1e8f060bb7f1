// Package sessions holds the per-client state of the server: one App
// controller, chat conversation, video manager and live relay slot per
// session, evicted after a period of inactivity.
package sessions

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/catalog"
	"github.com/vango-go/vibevote/pkg/core/chat"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/core/video"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
)

const (
	DefaultTTL         = 12 * time.Hour
	DefaultMaxSessions = 10000
)

// Options configures a Registry. Zero values select defaults.
type Options struct {
	Gateway gemini.Gateway
	Catalog *catalog.Catalog
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	TTL         time.Duration
	MaxSessions int

	// LoginDelay is the simulated validation time; negative disables it.
	LoginDelay         time.Duration
	LoginErrorDuration time.Duration
	ToastDuration      time.Duration
	VideoPollInterval  time.Duration
	VideoPollTimeout   time.Duration

	// Clock drives app timers; Now stamps activity. Tests replace both.
	Clock appstate.Clock
	Now   func() time.Time
}

// Registry maps session ids to live sessions.
type Registry struct {
	opts Options

	mu sync.Mutex
	m  map[string]*Session
}

func NewRegistry(opts Options) *Registry {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{opts: opts, m: make(map[string]*Session)}
}

// Create starts a LOCKED session speaking lang.
func (r *Registry) Create(lang appstate.Language) *Session {
	now := r.opts.Now()
	s := r.newSession(uuid.NewString(), lang, now)

	var evicted []*Session
	r.mu.Lock()
	if len(r.m) >= r.opts.MaxSessions {
		evicted = r.expiredLocked(now)
		// Still full: drop the least recently used.
		if len(r.m) >= r.opts.MaxSessions {
			if oldest := r.oldestLocked(); oldest != nil {
				delete(r.m, oldest.ID)
				evicted = append(evicted, oldest)
			}
		}
	}
	r.m[s.ID] = s
	n := len(r.m)
	r.mu.Unlock()

	r.opts.Metrics.SetSessions(n)
	r.closeAsync(evicted, "capacity")
	r.opts.Logger.Debug("session created", "session_id", s.ID, "language", lang)
	return s
}

func (r *Registry) newSession(id string, lang appstate.Language, now time.Time) *Session {
	o := r.opts
	s := &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
		logger:    o.Logger.With("session_id", id),
	}
	s.App = appstate.New(appstate.Options{
		Catalog:            o.Catalog,
		Clock:              o.Clock,
		Language:           lang,
		ToastDuration:      o.ToastDuration,
		LoginErrorDuration: o.LoginErrorDuration,
		LoginDelay:         o.LoginDelay,
	})
	s.Chat = chat.NewConversation(o.Gateway, chat.Options{Logger: s.logger})
	s.Video = video.NewManager(o.Gateway, video.Options{
		PollInterval: o.VideoPollInterval,
		PollTimeout:  o.VideoPollTimeout,
		Logger:       s.logger,
		OnFinish: func(job video.Job) {
			o.Metrics.RecordVideoJob(string(job.Status))
		},
	})
	s.App.OnTransition(s.onTransition)
	s.App.OnChange(s.broadcast)
	return s
}

// Get returns the session and marks it active. Expired sessions are removed
// and reported missing.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	now := r.opts.Now()
	r.mu.Lock()
	s, ok := r.m[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if s.idleFor(now) > r.opts.TTL {
		delete(r.m, id)
		n := len(r.m)
		r.mu.Unlock()
		r.opts.Metrics.SetSessions(n)
		r.closeAsync([]*Session{s}, "expired")
		return nil, false
	}
	s.touch(now)
	r.mu.Unlock()
	return s, true
}

// Remove discards session id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.m[id]
	delete(r.m, id)
	n := len(r.m)
	r.mu.Unlock()
	if ok {
		r.opts.Metrics.SetSessions(n)
		r.closeAsync([]*Session{s}, "removed")
	}
	return ok
}

// Sweep evicts every expired session and returns how many it removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	evicted := r.expiredLocked(r.opts.Now())
	n := len(r.m)
	r.mu.Unlock()
	r.opts.Metrics.SetSessions(n)
	r.closeAsync(evicted, "expired")
	return len(evicted)
}

// Run sweeps every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.opts.Logger.Info("expired sessions evicted", "count", n)
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Close releases every session concurrently, waiting for video poll loops to
// stop or ctx to end.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.m))
	for _, s := range r.m {
		all = append(all, s)
	}
	r.m = make(map[string]*Session)
	r.mu.Unlock()
	r.opts.Metrics.SetSessions(0)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range all {
		g.Go(func() error { return s.close(gctx) })
	}
	return g.Wait()
}

func (r *Registry) expiredLocked(now time.Time) []*Session {
	var out []*Session
	for id, s := range r.m {
		if s.idleFor(now) > r.opts.TTL {
			delete(r.m, id)
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) oldestLocked() *Session {
	var oldest *Session
	for _, s := range r.m {
		if oldest == nil || s.lastActive().Before(oldest.lastActive()) {
			oldest = s
		}
	}
	return oldest
}

func (r *Registry) closeAsync(evicted []*Session, reason string) {
	for _, s := range evicted {
		r.opts.Logger.Debug("session evicted", "session_id", s.ID, "reason", reason)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.close(ctx)
		}()
	}
}
