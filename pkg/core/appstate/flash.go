package appstate

import (
	"sync"
	"time"
)

// Notice is an ephemeral one-shot message.
type Notice struct {
	Message string `json:"message"`
	Visible bool   `json:"visible"`
}

// Flash holds at most one visible notice that hides itself after a fixed
// duration. Showing a new notice replaces the pending one and restarts the
// timer; a replaced timer never hides the newer notice.
type Flash struct {
	clock    Clock
	duration time.Duration

	mu      sync.Mutex
	current Notice
	timer   Timer
	gen     uint64

	// onExpire runs after the timer hides a notice, outside the lock.
	onExpire func()
}

func NewFlash(clock Clock, duration time.Duration) *Flash {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Flash{clock: clock, duration: duration}
}

func (f *Flash) Show(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	gen := f.gen
	if f.timer != nil {
		f.timer.Stop()
	}
	f.current = Notice{Message: message, Visible: true}
	f.timer = f.clock.AfterFunc(f.duration, func() { f.expire(gen) })
}

func (f *Flash) expire(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.current.Visible = false
	f.timer = nil
	hook := f.onExpire
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Dismiss hides the notice now and cancels its timer.
func (f *Flash) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.current.Visible = false
}

// Reset dismisses and forgets the last message.
func (f *Flash) Reset() {
	f.Dismiss()
	f.mu.Lock()
	f.current = Notice{}
	f.mu.Unlock()
}

func (f *Flash) Current() Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
