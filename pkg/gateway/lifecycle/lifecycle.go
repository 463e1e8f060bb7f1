// Package lifecycle tracks whether the server is draining for shutdown.
package lifecycle

import "sync"

// Lifecycle is shared by readiness, the live relay and the state event
// streams. The zero value is a running server.
type Lifecycle struct {
	mu       sync.Mutex
	draining bool
	done     chan struct{}
}

// Drain marks the server as shutting down and wakes every Draining waiter.
// Later calls are no-ops.
func (l *Lifecycle) Drain() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.draining {
		return
	}
	l.draining = true
	if l.done == nil {
		l.done = make(chan struct{})
	}
	close(l.done)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining
}

// Draining returns a channel closed once Drain is called. A nil Lifecycle
// never drains.
func (l *Lifecycle) Draining() <-chan struct{} {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		l.done = make(chan struct{})
	}
	return l.done
}
