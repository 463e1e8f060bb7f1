package live

import (
	"errors"
	"math"
	"sync"
	"testing"
)

type fakeHandle struct {
	mu      sync.Mutex
	stopped bool
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *fakeHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakePlay struct {
	at      float64
	dur     float64
	handle  *fakeHandle
	onEnded func()
}

type fakeOutput struct {
	mu      sync.Mutex
	now     float64
	plays   []*fakePlay
	closed  int
	playErr error
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(v float64) {
	o.mu.Lock()
	o.now = v
	o.mu.Unlock()
}

func (o *fakeOutput) Play(buf Buffer, at float64, onEnded func()) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.playErr != nil {
		return nil, o.playErr
	}
	p := &fakePlay{at: at, dur: buf.Duration, handle: &fakeHandle{}, onEnded: onEnded}
	o.plays = append(o.plays, p)
	return p.handle, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) played() []*fakePlay {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakePlay(nil), o.plays...)
}

// chunk returns PCM lasting seconds at the output rate.
func chunk(seconds float64) []byte {
	cfg := OutputAudioConfig()
	return make([]byte, int(math.Round(seconds*float64(cfg.SampleRate)))*cfg.BytesPerSample())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScheduler_GaplessStartOffsets(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())

	want := []float64{0.0, 0.5, 0.8}
	for i, d := range []float64{0.5, 0.3, 0.4} {
		got, err := s.OnChunkReceived(chunk(d))
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if !approx(got.Start, want[i]) {
			t.Fatalf("chunk %d start = %v, want %v", i, got.Start, want[i])
		}
		if !approx(got.Duration, d) {
			t.Fatalf("chunk %d duration = %v, want %v", i, got.Duration, d)
		}
	}
	if !approx(s.NextStart(), 1.2) {
		t.Fatalf("NextStart() = %v, want 1.2", s.NextStart())
	}
	if s.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", s.Pending())
	}
}

func TestScheduler_FallsBehindClock(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())

	if _, err := s.OnChunkReceived(chunk(0.2)); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	out.setNow(1.0)
	got, err := s.OnChunkReceived(chunk(0.2))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if !approx(got.Start, 1.0) {
		t.Fatalf("start = %v, want clock time 1.0", got.Start)
	}
	if !approx(s.NextStart(), 1.2) {
		t.Fatalf("NextStart() = %v, want 1.2", s.NextStart())
	}
}

func TestScheduler_InterruptRestartsAtClock(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())

	first, _ := s.OnChunkReceived(chunk(0.5))
	second, _ := s.OnChunkReceived(chunk(0.3))

	out.setNow(0.1)
	stopped := s.OnInterrupted()
	if len(stopped) != 2 || stopped[0] != first.ID || stopped[1] != second.ID {
		t.Fatalf("stopped = %v, want [%d %d]", stopped, first.ID, second.ID)
	}
	for i, p := range out.played() {
		if !p.handle.isStopped() {
			t.Fatalf("play %d not stopped", i)
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d after interrupt", s.Pending())
	}
	if s.NextStart() != 0 {
		t.Fatalf("NextStart() = %v after interrupt, want 0", s.NextStart())
	}

	third, err := s.OnChunkReceived(chunk(0.4))
	if err != nil {
		t.Fatalf("chunk 3: %v", err)
	}
	if !approx(third.Start, 0.1) {
		t.Fatalf("chunk 3 start = %v, want current clock 0.1", third.Start)
	}
}

func TestScheduler_NaturalEndReleasesHandle(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())

	_, _ = s.OnChunkReceived(chunk(0.1))
	_, _ = s.OnChunkReceived(chunk(0.1))
	plays := out.played()
	plays[0].onEnded()
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}

	// A stopped source may still report ended; the set must tolerate it.
	s.OnInterrupted()
	plays[1].onEnded()
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduler_TeardownIsIdempotent(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())
	_, _ = s.OnChunkReceived(chunk(0.2))

	s.Teardown()
	s.Teardown()

	if !out.played()[0].handle.isStopped() {
		t.Fatalf("expected playback stopped on teardown")
	}
	if _, err := s.OnChunkReceived(chunk(0.2)); !errors.Is(err, ErrSchedulerClosed) {
		t.Fatalf("err = %v, want ErrSchedulerClosed", err)
	}
}

func TestScheduler_RejectsMalformedChunk(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, OutputAudioConfig())
	if _, err := s.OnChunkReceived([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for unaligned chunk")
	}
	if len(out.played()) != 0 || s.NextStart() != 0 {
		t.Fatalf("malformed chunk must not touch the timeline")
	}
}

func TestScheduler_PlayErrorLeavesTimeline(t *testing.T) {
	out := &fakeOutput{playErr: errors.New("device gone")}
	s := NewScheduler(out, OutputAudioConfig())
	if _, err := s.OnChunkReceived(chunk(0.2)); err == nil {
		t.Fatalf("expected play error")
	}
	if s.NextStart() != 0 || s.Pending() != 0 {
		t.Fatalf("failed play must not advance the timeline")
	}
}
