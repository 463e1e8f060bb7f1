package sessions

import (
	"context"
	"sync"

	"github.com/vango-go/vibevote/pkg/core"
)

// RelayHandle lets shutdown reach an open live relay.
type RelayHandle struct {
	Cancel func()
	Warn   func(code, message string) error
}

// Tracker follows open live relays so graceful shutdown can warn them, wait
// for them to drain and cancel the stragglers. It also caps how many relays
// the process serves at once.
type Tracker struct {
	max int

	mu     sync.Mutex
	relays map[string]*trackedRelay
	wg     sync.WaitGroup
}

type trackedRelay struct {
	handle RelayHandle
	once   sync.Once
}

// NewTracker creates a tracker admitting at most max relays; max <= 0 means
// no cap.
func NewTracker(max int) *Tracker {
	return &Tracker{
		max:    max,
		relays: make(map[string]*trackedRelay),
	}
}

// Register admits relay id. The returned func must be called exactly when
// the relay ends; extra calls are ignored.
func (t *Tracker) Register(id string, h RelayHandle) (unregister func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	entry := &trackedRelay{handle: h}

	t.mu.Lock()
	if t.max > 0 && len(t.relays) >= t.max {
		t.mu.Unlock()
		return nil, &core.Error{Type: core.ErrOverloaded, Message: "too many live sessions", Code: "live_capacity"}
	}
	old := t.relays[id]
	t.relays[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(id, old)
	}
	return func() { t.unregister(id, entry) }, nil
}

func (t *Tracker) unregister(id string, entry *trackedRelay) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.relays[id] == entry {
			delete(t.relays, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.relays)
}

func (t *Tracker) handles() []RelayHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RelayHandle, 0, len(t.relays))
	for _, entry := range t.relays {
		out = append(out, entry.handle)
	}
	return out
}

// WarnAll sends a warning to every relay and reports how many accepted it.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Warn == nil {
			continue
		}
		if err := h.Warn(code, message); err == nil {
			sent++
		}
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered relay has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
