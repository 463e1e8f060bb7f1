package live

import (
	"errors"
	"slices"
	"sync"
)

// ErrSchedulerClosed is returned when a chunk arrives after Teardown.
var ErrSchedulerClosed = errors.New("live: scheduler closed")

// Handle is a scheduled playback that can be stopped early.
type Handle interface {
	Stop()
}

// Output is the playback device: a clock plus a way to start buffers at an
// absolute time on that clock.
//
// Play must not invoke onEnded synchronously; it fires once, after the buffer
// has finished playing on its own.
type Output interface {
	Now() float64
	Play(buf Buffer, at float64, onEnded func()) (Handle, error)
	Close() error
}

// Scheduled describes one chunk placed on the output timeline.
type Scheduled struct {
	ID       uint64
	Start    float64
	Duration float64
}

type playback struct {
	Scheduled
	handle Handle
}

// Scheduler plays streamed speech chunks back to back without gaps and drops
// everything queued when the speaker is interrupted.
type Scheduler struct {
	out    Output
	format AudioConfig

	mu        sync.Mutex
	active    map[uint64]*playback
	nextStart float64
	nextID    uint64
	closed    bool
}

// NewScheduler creates a scheduler for chunks in the given format.
func NewScheduler(out Output, format AudioConfig) *Scheduler {
	return &Scheduler{
		out:    out,
		format: format,
		active: make(map[uint64]*playback),
	}
}

// OnChunkReceived decodes a chunk and schedules it immediately after the
// previously scheduled chunk, or now if playback has fallen behind the clock.
func (s *Scheduler) OnChunkReceived(pcm []byte) (Scheduled, error) {
	buf, err := DecodePCM(pcm, s.format)
	if err != nil {
		return Scheduled{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Scheduled{}, ErrSchedulerClosed
	}

	start := s.nextStart
	if now := s.out.Now(); now > start {
		start = now
	}

	s.nextID++
	p := &playback{Scheduled: Scheduled{ID: s.nextID, Start: start, Duration: buf.Duration}}
	handle, err := s.out.Play(buf, start, func() { s.release(p.ID) })
	if err != nil {
		return Scheduled{}, err
	}
	p.handle = handle
	s.active[p.ID] = p
	s.nextStart = start + buf.Duration
	return p.Scheduled, nil
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// OnInterrupted stops every scheduled chunk and rewinds the timeline so the
// next chunk starts at the current clock. It returns the stopped chunk ids.
func (s *Scheduler) OnInterrupted() []uint64 {
	stopped := s.drain()
	for _, p := range stopped {
		p.handle.Stop()
	}
	ids := make([]uint64, 0, len(stopped))
	for _, p := range stopped {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	return ids
}

func (s *Scheduler) drain() []*playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := make([]*playback, 0, len(s.active))
	for _, p := range s.active {
		stopped = append(stopped, p)
	}
	clear(s.active)
	s.nextStart = 0
	return stopped
}

// Teardown stops all playback and rejects further chunks. Safe to call more
// than once.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.OnInterrupted()
}

// Pending returns how many chunks are scheduled and not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the output time at which the next chunk would begin if
// playback has not fallen behind.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
