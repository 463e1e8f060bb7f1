package live

import "sync"

// CaptureFrameSamples is the capture callback size: each pushed frame holds
// this many samples.
const CaptureFrameSamples = 4096

// Framer cuts a continuous PCM capture stream into fixed-size frames and
// hands each complete frame to send. A partial tail is held until more
// audio arrives.
type Framer struct {
	mu         sync.Mutex
	frameBytes int
	pending    []byte
	send       func(frame []byte)
	frames     uint64
}

// NewFramer creates a framer emitting frames of samples sample frames in the
// given format. samples <= 0 selects CaptureFrameSamples.
func NewFramer(format AudioConfig, samples int, send func(frame []byte)) *Framer {
	if samples <= 0 {
		samples = CaptureFrameSamples
	}
	frameBytes := samples * format.BytesPerSample()
	return &Framer{
		frameBytes: frameBytes,
		pending:    make([]byte, 0, frameBytes),
		send:       send,
	}
}

// Write buffers p and emits every frame it completes. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	var ready [][]byte

	f.mu.Lock()
	rest := p
	for len(rest) > 0 {
		n := min(f.frameBytes-len(f.pending), len(rest))
		f.pending = append(f.pending, rest[:n]...)
		rest = rest[n:]
		if len(f.pending) == f.frameBytes {
			ready = append(ready, f.pending)
			f.pending = make([]byte, 0, f.frameBytes)
			f.frames++
		}
	}
	f.mu.Unlock()

	for _, frame := range ready {
		f.send(frame)
	}
	return len(p), nil
}

// Reset drops any buffered partial frame.
func (f *Framer) Reset() {
	f.mu.Lock()
	f.pending = f.pending[:0]
	f.mu.Unlock()
}

// Buffered returns the size of the partial frame being held.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Frames returns how many complete frames have been emitted.
func (f *Framer) Frames() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}
