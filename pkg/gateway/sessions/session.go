package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/chat"
	"github.com/vango-go/vibevote/pkg/core/video"
)

// Session is one client's state. App, Chat and Video are safe for
// concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time
	App       *appstate.App
	Chat      *chat.Conversation
	Video     *video.Manager

	logger *slog.Logger

	mu       sync.Mutex
	lastSeen time.Time
	live     *liveSlot
	busy     map[string]bool
	watchers map[chan struct{}]struct{}
	closed   bool
}

type liveSlot struct {
	teardown func()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
	s.mu.Unlock()
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(s.lastActive())
}

// AttachLive makes teardown the session's live voice connection, tearing
// down any previous one. detach clears the slot if it still holds this
// connection; it does not call teardown.
func (s *Session) AttachLive(teardown func()) (detach func()) {
	slot := &liveSlot{teardown: teardown}
	s.mu.Lock()
	prev := s.live
	s.live = slot
	s.mu.Unlock()

	if prev != nil && prev.teardown != nil {
		s.logger.Info("replacing live connection")
		prev.teardown()
	}
	return func() {
		s.mu.Lock()
		if s.live == slot {
			s.live = nil
		}
		s.mu.Unlock()
	}
}

// AcquirePanel claims the named panel for one in-flight request. ok is false
// while another request holds it.
func (s *Session) AcquirePanel(name string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[name] {
		return nil, false
	}
	if s.busy == nil {
		s.busy = make(map[string]bool)
	}
	s.busy[name] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.busy, name)
			s.mu.Unlock()
		})
	}, true
}

// LiveAttached reports whether a live connection is open.
func (s *Session) LiveAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil
}

// TeardownLive closes the live connection, if any.
func (s *Session) TeardownLive() {
	s.mu.Lock()
	slot := s.live
	s.live = nil
	s.mu.Unlock()
	if slot != nil && slot.teardown != nil {
		slot.teardown()
	}
}

// onTransition applies panel mount and unmount effects: entering CHAT starts
// a fresh conversation, leaving LIVE ends the voice session, and logout
// clears every panel.
func (s *Session) onTransition(t appstate.Transition) {
	switch {
	case t.To == appstate.ViewLocked:
		s.Chat.Reset()
		s.Video.Discard()
		s.TeardownLive()
		return
	case t.To == appstate.ViewChat:
		s.Chat.Reset()
	}
	if t.From == appstate.ViewLive && t.To != appstate.ViewLive {
		s.TeardownLive()
	}
}

// Watch returns a channel that receives a value whenever the session's
// snapshot may have changed. Signals coalesce, so a slow reader sees the
// latest state rather than every step. The channel is closed when the
// session ends or stop is called.
func (s *Session) Watch() (changes <-chan struct{}, stop func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if s.watchers == nil {
		s.watchers = make(map[chan struct{}]struct{})
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}
}

func (s *Session) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ch := range s.watchers {
		delete(s.watchers, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.TeardownLive()
	s.App.Close()
	s.Chat.Reset()
	return s.Video.Close(ctx)
}
