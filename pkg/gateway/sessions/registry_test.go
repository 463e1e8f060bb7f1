package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/core/chat"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini/geminitest"
)

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *fakeNow) {
	t.Helper()
	clock := &fakeNow{now: time.Unix(1_760_000_000, 0)}
	if opts.Gateway == nil {
		opts.Gateway = &geminitest.Gateway{}
	}
	opts.Now = clock.Now
	opts.LoginDelay = -1
	r := NewRegistry(opts)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, clock
}

func login(t *testing.T, s *Session) {
	t.Helper()
	ok, err := s.App.Login(context.Background(), "VIBE2026")
	if err != nil || !ok {
		t.Fatalf("Login ok=%v err=%v", ok, err)
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguageEN)
	if s.ID == "" {
		t.Fatalf("empty session id")
	}
	got, ok := r.Get(s.ID)
	if !ok || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID, got, ok)
	}
	st := got.App.Snapshot()
	if st.View != appstate.ViewLocked || st.Session.Language != appstate.LanguageEN {
		t.Fatalf("new session state = %+v", st)
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatalf("unknown id resolved")
	}
	if _, ok := r.Get(""); ok {
		t.Fatalf("empty id resolved")
	}
}

func TestRegistry_IdleSessionsExpire(t *testing.T) {
	r, clock := newTestRegistry(t, Options{TTL: time.Hour})
	keep := r.Create(appstate.LanguagePT)
	drop := r.Create(appstate.LanguagePT)

	clock.Advance(40 * time.Minute)
	if _, ok := r.Get(keep.ID); !ok {
		t.Fatalf("active session missing")
	}
	clock.Advance(40 * time.Minute)

	if _, ok := r.Get(drop.ID); ok {
		t.Fatalf("idle session should have expired")
	}
	if n := r.Sweep(); n != 0 {
		t.Fatalf("Sweep removed %d, want 0 (keep was touched 40m ago)", n)
	}
	clock.Advance(time.Hour)
	if n := r.Sweep(); n != 1 || r.Len() != 0 {
		t.Fatalf("Sweep removed %d, Len=%d", n, r.Len())
	}
}

func TestRegistry_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	r, clock := newTestRegistry(t, Options{MaxSessions: 2})
	a := r.Create(appstate.LanguagePT)
	clock.Advance(time.Second)
	b := r.Create(appstate.LanguagePT)
	clock.Advance(time.Second)
	r.Get(a.ID)
	clock.Advance(time.Second)

	c := r.Create(appstate.LanguagePT)
	if r.Len() != 2 {
		t.Fatalf("Len=%d, want 2", r.Len())
	}
	if _, ok := r.Get(b.ID); ok {
		t.Fatalf("least recently used session survived")
	}
	for _, s := range []*Session{a, c} {
		if _, ok := r.Get(s.ID); !ok {
			t.Fatalf("session %s evicted", s.ID)
		}
	}
}

func TestSession_LogoutClearsPanels(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)
	login(t, s)

	if err := s.App.Navigate(appstate.ViewChat); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if _, _, err := s.Chat.Send(context.Background(), chat.SendRequest{Text: "who plays tonight?"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var torn atomic.Int32
	s.AttachLive(func() { torn.Add(1) })

	s.App.Logout()

	if n := len(s.Chat.Messages()); n != 0 {
		t.Fatalf("chat kept %d messages after logout", n)
	}
	if torn.Load() != 1 || s.LiveAttached() {
		t.Fatalf("live not torn down: calls=%d attached=%v", torn.Load(), s.LiveAttached())
	}
}

func TestSession_EnteringChatStartsFreshConversation(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)
	login(t, s)

	_ = s.App.Navigate(appstate.ViewChat)
	if _, _, err := s.Chat.Send(context.Background(), chat.SendRequest{Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = s.App.Navigate(appstate.ViewDashboard)
	if len(s.Chat.Messages()) != 2 {
		t.Fatalf("leaving chat should not clear history yet")
	}
	_ = s.App.Navigate(appstate.ViewChat)
	if len(s.Chat.Messages()) != 0 {
		t.Fatalf("remounting chat should clear history")
	}
}

func TestSession_LeavingLiveTearsDown(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)
	login(t, s)
	_ = s.App.Navigate(appstate.ViewLive)

	var torn atomic.Int32
	detach := s.AttachLive(func() { torn.Add(1) })
	defer detach()

	_ = s.App.Navigate(appstate.ViewLive)
	if torn.Load() != 0 {
		t.Fatalf("staying on LIVE tore down the session")
	}
	_ = s.App.Navigate(appstate.ViewImage)
	if torn.Load() != 1 {
		t.Fatalf("teardown calls=%d, want 1", torn.Load())
	}
}

func TestSession_AttachLiveReplacesPrevious(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)

	var first, second atomic.Int32
	detachFirst := s.AttachLive(func() { first.Add(1) })
	detachSecond := s.AttachLive(func() { second.Add(1) })
	if first.Load() != 1 {
		t.Fatalf("previous live connection not torn down")
	}

	// A stale detach must not clear the newer connection.
	detachFirst()
	if !s.LiveAttached() {
		t.Fatalf("stale detach cleared the slot")
	}
	detachSecond()
	if s.LiveAttached() || second.Load() != 0 {
		t.Fatalf("detach should clear without teardown")
	}
}

func TestRegistry_CloseReleasesEverything(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)
	var torn atomic.Int32
	s.AttachLive(func() { torn.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Len() != 0 || torn.Load() != 1 {
		t.Fatalf("Len=%d teardown=%d", r.Len(), torn.Load())
	}
	if _, err := s.Video.Start(context.Background(), "clip"); err == nil {
		t.Fatalf("video manager still accepting jobs after Close")
	}
}

func TestSession_AcquirePanelIsExclusivePerName(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)

	release, ok := s.AcquirePanel("image")
	if !ok {
		t.Fatalf("first AcquirePanel failed")
	}
	if _, ok := s.AcquirePanel("image"); ok {
		t.Fatalf("second AcquirePanel succeeded while held")
	}
	other, ok := s.AcquirePanel("video")
	if !ok {
		t.Fatalf("a different panel should be independent")
	}
	other()

	release()
	again, ok := s.AcquirePanel("image")
	if !ok {
		t.Fatalf("AcquirePanel failed after release")
	}
	// A stale release must not free the new holder's claim.
	release()
	if _, ok := s.AcquirePanel("image"); ok {
		t.Fatalf("stale release freed the panel")
	}
	again()
}

func TestSession_WatchCoalescesAndClosesWithSession(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	s := r.Create(appstate.LanguagePT)
	changes, stop := s.Watch()
	defer stop()

	login(t, s)
	if _, err := s.App.CastVote(true); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	select {
	case <-changes:
	default:
		t.Fatalf("no change signalled")
	}
	select {
	case <-changes:
		t.Fatalf("signals did not coalesce")
	default:
	}

	if err := s.close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-changes; ok {
		t.Fatalf("watch channel still open after session close")
	}
	stop()

	late, _ := s.Watch()
	if _, ok := <-late; ok {
		t.Fatalf("watching a closed session should yield a closed channel")
	}
}
