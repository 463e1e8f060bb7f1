package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeCapture struct {
	mu     sync.Mutex
	closed int
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSession struct {
	mu     sync.Mutex
	sent   [][]byte
	events chan Event
	errs   chan error
	closed int
	done   chan struct{}
	once   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (s *fakeSession) SendAudio(_ context.Context, frame []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Receive() (Event, error) {
	// Queued events drain before a queued error.
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return Event{}, err
	case <-s.done:
		return Event{}, errors.New("use of closed connection")
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSession) sentFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type connFixture struct {
	capture *fakeCapture
	output  *fakeOutput
	session *fakeSession
	states  []State
	mu      sync.Mutex
}

func (f *connFixture) recorded() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

func newConnFixture(dialErr error) (*connFixture, ConnConfig) {
	f := &connFixture{capture: &fakeCapture{}, output: &fakeOutput{}, session: newFakeSession()}
	cfg := ConnConfig{
		OpenCapture: func(context.Context) (Capture, error) { return f.capture, nil },
		OpenOutput:  func(context.Context) (Output, error) { return f.output, nil },
		Dial: func(context.Context) (VendorSession, error) {
			if dialErr != nil {
				return nil, dialErr
			}
			return f.session, nil
		},
		OnState: func(s State, _ error) {
			f.mu.Lock()
			f.states = append(f.states, s)
			f.mu.Unlock()
		},
	}
	return f, cfg
}

func TestConn_StartOpensInOrder(t *testing.T) {
	var order []string
	f, cfg := newConnFixture(nil)
	cfg.OpenCapture = func(context.Context) (Capture, error) {
		order = append(order, "capture")
		return f.capture, nil
	}
	cfg.OpenOutput = func(context.Context) (Output, error) {
		order = append(order, "output")
		return f.output, nil
	}
	cfg.Dial = func(context.Context) (VendorSession, error) {
		order = append(order, "session")
		return f.session, nil
	}

	c := NewConn(cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := len(order); got != 3 || order[0] != "capture" || order[1] != "output" || order[2] != "session" {
		t.Fatalf("order = %v", order)
	}
	if st, err := c.State(); st != StateOpen || err != nil {
		t.Fatalf("State() = %s, %v", st, err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error on second Start")
	}
}

func TestConn_DialFailureReleasesAcquired(t *testing.T) {
	f, cfg := newConnFixture(errors.New("missing credential"))
	c := NewConn(cfg)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatalf("expected start error")
	}
	st, stErr := c.State()
	if st != StateErrored || stErr == nil {
		t.Fatalf("State() = %s, %v; want errored with cause", st, stErr)
	}
	if f.capture.closeCount() != 1 {
		t.Fatalf("capture closed %d times, want 1", f.capture.closeCount())
	}
	if f.output.closed != 1 {
		t.Fatalf("output closed %d times, want 1", f.output.closed)
	}
	states := f.recorded()
	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateErrored {
		t.Fatalf("states = %v", states)
	}

	// Teardown after failure keeps the error visible.
	c.Teardown()
	if st, _ := c.State(); st != StateErrored {
		t.Fatalf("State() after teardown = %s, want errored", st)
	}
}

func TestConn_CaptureFailureAcquiresNothingElse(t *testing.T) {
	f, cfg := newConnFixture(nil)
	dialed := false
	cfg.OpenCapture = func(context.Context) (Capture, error) { return nil, errors.New("permission denied") }
	cfg.Dial = func(context.Context) (VendorSession, error) {
		dialed = true
		return f.session, nil
	}
	c := NewConn(cfg)
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if dialed {
		t.Fatalf("session must not be opened after capture failure")
	}
	if f.output.closed != 0 {
		t.Fatalf("output was never opened but closed %d times", f.output.closed)
	}
}

func TestConn_RunSchedulesAndInterrupts(t *testing.T) {
	f, cfg := newConnFixture(nil)
	var mu sync.Mutex
	var scheduled []Scheduled
	var interrupted [][]uint64
	cfg.OnScheduled = func(s Scheduled) {
		mu.Lock()
		scheduled = append(scheduled, s)
		mu.Unlock()
	}
	cfg.OnInterrupted = func(ids []uint64) {
		mu.Lock()
		interrupted = append(interrupted, ids)
		mu.Unlock()
	}

	c := NewConn(cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	f.session.events <- Event{Audio: chunk(0.5)}
	f.session.events <- Event{Audio: chunk(0.3)}
	f.session.events <- Event{Interrupted: true}
	f.session.events <- Event{Audio: chunk(0.4)}
	f.session.errs <- io.EOF

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(scheduled) != 3 {
		t.Fatalf("scheduled = %d, want 3", len(scheduled))
	}
	if !approx(scheduled[1].Start, 0.5) || !approx(scheduled[2].Start, 0) {
		t.Fatalf("starts = %v, %v", scheduled[1].Start, scheduled[2].Start)
	}
	if len(interrupted) != 1 || len(interrupted[0]) != 2 {
		t.Fatalf("interrupted = %v", interrupted)
	}
	if st, _ := c.State(); st != StateClosed {
		t.Fatalf("State() = %s, want closed after EOF", st)
	}
	if f.session.closeCount() != 1 {
		t.Fatalf("session closed %d times", f.session.closeCount())
	}
}

func TestConn_ReceiveErrorMarksErrored(t *testing.T) {
	f, cfg := newConnFixture(nil)
	c := NewConn(cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.session.errs <- errors.New("socket reset")
	if err := c.Run(); err == nil {
		t.Fatalf("expected run error")
	}
	if st, err := c.State(); st != StateErrored || err == nil {
		t.Fatalf("State() = %s, %v", st, err)
	}
}

func TestConn_TeardownStopsRunAndIsIdempotent(t *testing.T) {
	f, cfg := newConnFixture(nil)
	c := NewConn(cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	f.session.events <- Event{Audio: chunk(0.2)}
	deadline := time.Now().Add(time.Second)
	for len(f.output.played()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("chunk never scheduled")
		}
		time.Sleep(time.Millisecond)
	}

	c.Teardown()
	c.Teardown()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after teardown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after teardown")
	}
	if !f.output.played()[0].handle.isStopped() {
		t.Fatalf("playback not stopped on teardown")
	}
	if f.capture.closeCount() != 1 || f.session.closeCount() != 1 {
		t.Fatalf("capture closed %d, session closed %d; want 1 each", f.capture.closeCount(), f.session.closeCount())
	}
	if st, _ := c.State(); st != StateClosed {
		t.Fatalf("State() = %s, want closed", st)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Start after teardown = %v, want ErrConnClosed", err)
	}
}

func TestConn_TeardownDuringConnect(t *testing.T) {
	f, cfg := newConnFixture(nil)
	var c *Conn
	cfg.OpenOutput = func(context.Context) (Output, error) {
		c.Teardown()
		return f.output, nil
	}
	c = NewConn(cfg)
	if err := c.Start(context.Background()); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Start = %v, want ErrConnClosed", err)
	}
	if f.capture.closeCount() != 1 || f.output.closed != 1 {
		t.Fatalf("capture closed %d, output closed %d", f.capture.closeCount(), f.output.closed)
	}
	if f.session.closeCount() != 0 {
		t.Fatalf("session must not be dialed after teardown")
	}
}

func TestConn_PushCaptureFramesToSession(t *testing.T) {
	f, cfg := newConnFixture(nil)
	cfg.FrameSamples = 4
	c := NewConn(cfg)

	c.PushCapture(make([]byte, 16))
	if f.session.sentFrames() != 0 {
		t.Fatalf("capture pushed before open")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.PushCapture(make([]byte, 20))
	if f.session.sentFrames() != 2 {
		t.Fatalf("sent = %d, want 2", f.session.sentFrames())
	}
}
