package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/vango-go/vibevote/pkg/core/live"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
)

var errOutputClosed = errors.New("live output closed")

type audioFrame struct {
	Type       string  `json:"type"`
	ID         uint64  `json:"id"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	Data       string  `json:"data"`
}

// remoteOutput is the playback device of a relayed session: the browser.
// Play ships each chunk with its start offset on the relay clock and the
// browser schedules it locally. Playback end is tracked with timers so the
// scheduler's view of what is still playing matches the browser's.
//
// Chunk ids follow the scheduler's: it calls Play exactly once per chunk, in
// order, so the n-th Play is chunk n.
type remoteOutput struct {
	epoch   time.Time
	normal  chan<- relayFrame
	metrics *metrics.Metrics

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	timers  map[uint64]*time.Timer
	queued  map[uint64]bool
	stopped map[uint64]bool
}

func newRemoteOutput(normal chan<- relayFrame, m *metrics.Metrics) *remoteOutput {
	return &remoteOutput{
		epoch:   time.Now(),
		normal:  normal,
		metrics: m,
		timers:  make(map[uint64]*time.Timer),
		queued:  make(map[uint64]bool),
		stopped: make(map[uint64]bool),
	}
}

// Now is seconds since the relay opened.
func (o *remoteOutput) Now() float64 {
	return time.Since(o.epoch).Seconds()
}

func (o *remoteOutput) Play(buf live.Buffer, at float64, onEnded func()) (live.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	if o.closed {
		return nil, errOutputClosed
	}

	payload, err := json.Marshal(audioFrame{
		Type:       "audio",
		ID:         id,
		Start:      at,
		Duration:   buf.Duration,
		SampleRate: buf.Format.SampleRate,
		Data:       base64.StdEncoding.EncodeToString(buf.PCM),
	})
	if err != nil {
		return nil, err
	}
	select {
	case o.normal <- relayFrame{audioID: id, payload: payload}:
		o.queued[id] = true
		o.metrics.RecordLiveAudio("out", len(buf.PCM))
	default:
		// Client too slow; the chunk still occupies its slot on the timeline.
		o.metrics.RecordLiveFrameDropped()
	}

	delay := time.Duration((at - o.Now() + buf.Duration) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	o.timers[id] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.timers, id)
		o.mu.Unlock()
		if onEnded != nil {
			onEnded()
		}
	})
	return playHandle{out: o, id: id}, nil
}

func (o *remoteOutput) stop(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[id]; ok {
		t.Stop()
		delete(o.timers, id)
	}
	if o.queued[id] {
		o.stopped[id] = true
	}
}

// claim is called by the writer before sending chunk id. A chunk stopped
// while still queued is never sent.
func (o *remoteOutput) claim(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.queued, id)
	if o.stopped[id] {
		delete(o.stopped, id)
		return false
	}
	return true
}

func (o *remoteOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	return nil
}

type playHandle struct {
	out *remoteOutput
	id  uint64
}

func (h playHandle) Stop() { h.out.stop(h.id) }
