package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int

	// Live voice sessions allowed at once per client.
	MaxLivePerClient int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	bucket  *rate.Limiter
	liveSem chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

// ClientKey hashes a client identifier (an address) so raw ids
// never sit in the limiter map.
func ClientKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "c_" + hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

func (l *Limiter) AcquireRequest(client string, now time.Time) Decision {
	if client == "" {
		client = "anonymous"
	}
	cl := l.getOrCreate(client, now)
	cl.touch(now)

	if l.cfg.RPS <= 0 || l.cfg.Burst <= 0 {
		return Decision{Allowed: true}
	}
	res := cl.bucket.ReserveN(now, 1)
	if !res.OK() {
		return Decision{Allowed: false, RetryAfter: 1}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: max(1, int(math.Ceil(delay.Seconds())))}
	}
	return Decision{Allowed: true}
}

func (l *Limiter) AcquireLive(client string, now time.Time) Decision {
	if client == "" {
		client = "anonymous"
	}
	cl := l.getOrCreate(client, now)
	cl.touch(now)

	if l.cfg.MaxLivePerClient <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	select {
	case cl.liveSem <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-cl.liveSem }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		return cl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: drop one idle-ish entry. Entries holding a live permit
		// stay, or a released permit would land in a fresh semaphore.
		if len(l.m) >= l.cfg.MaxEntries {
			for k, v := range l.m {
				if len(v.liveSem) == 0 {
					delete(l.m, k)
					break
				}
			}
		}
	}

	cl := &clientLimiter{
		bucket:   rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst),
		liveSem:  make(chan struct{}, max(1, l.cfg.MaxLivePerClient)),
		lastSeen: now,
	}
	l.m[client] = cl
	return cl
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		if v.idleFor(now) > ttl && len(v.liveSem) == 0 {
			delete(l.m, k)
		}
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (cl *clientLimiter) touch(now time.Time) {
	cl.mu.Lock()
	cl.lastSeen = now
	cl.mu.Unlock()
}

func (cl *clientLimiter) idleFor(now time.Time) time.Duration {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return now.Sub(cl.lastSeen)
}
