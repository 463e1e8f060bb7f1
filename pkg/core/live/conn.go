package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// State is the lifecycle state of a live voice connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// ErrConnClosed is returned by Start after the connection was torn down.
var ErrConnClosed = errors.New("live: connection closed")

// Capture is an acquired microphone stream.
type Capture interface {
	Close() error
}

// Event is one message from the vendor's streaming session. Audio carries
// decoded PCM at the output rate.
type Event struct {
	Audio        []byte
	Interrupted  bool
	TurnComplete bool
}

// VendorSession is a bidirectional streaming voice session.
type VendorSession interface {
	SendAudio(ctx context.Context, frame []byte) error
	Receive() (Event, error)
	Close() error
}

// ConnConfig wires a Conn to its devices and vendor session. The three open
// functions are called in order by Start.
type ConnConfig struct {
	OpenCapture func(ctx context.Context) (Capture, error)
	OpenOutput  func(ctx context.Context) (Output, error)
	Dial        func(ctx context.Context) (VendorSession, error)

	InputFormat  AudioConfig
	OutputFormat AudioConfig
	FrameSamples int

	// OnState observes every transition. Called without locks held.
	OnState func(state State, err error)
	// OnScheduled observes every chunk placed on the output timeline.
	OnScheduled func(Scheduled)
	// OnInterrupted observes barge-in with the ids of dropped chunks.
	OnInterrupted func(stopped []uint64)

	Logger *slog.Logger
}

// Conn owns one live voice session: capture, playback and the vendor stream.
//
//	idle → connecting → open → closed
//	           │          │
//	           └──────────┴──→ errored
type Conn struct {
	cfg    ConnConfig
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	err       error
	capture   Capture
	output    Output
	session   VendorSession
	scheduler *Scheduler
	framer    *Framer
	ctx       context.Context

	teardownOnce sync.Once
}

// NewConn creates an idle connection.
func NewConn(cfg ConnConfig) *Conn {
	if cfg.InputFormat == (AudioConfig{}) {
		cfg.InputFormat = InputAudioConfig()
	}
	if cfg.OutputFormat == (AudioConfig{}) {
		cfg.OutputFormat = OutputAudioConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conn{cfg: cfg, logger: logger, state: StateIdle}
}

// State returns the current state and the error that caused errored, if any.
func (c *Conn) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}

// Start acquires the capture stream, the output device and the vendor session
// in that order. Any failure releases whatever was already acquired and
// leaves the connection errored.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return ErrConnClosed
		}
		return fmt.Errorf("live: start from state %s", state)
	}
	c.state = StateConnecting
	c.ctx = ctx
	c.mu.Unlock()
	c.emit(StateConnecting, nil)

	capture, err := c.cfg.OpenCapture(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("open capture: %w", err))
	}
	if !c.attach(func() { c.capture = capture }) {
		_ = capture.Close()
		return ErrConnClosed
	}

	output, err := c.cfg.OpenOutput(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("open output: %w", err))
	}
	if !c.attach(func() {
		c.output = output
		c.scheduler = NewScheduler(output, c.cfg.OutputFormat)
	}) {
		_ = output.Close()
		return ErrConnClosed
	}

	session, err := c.cfg.Dial(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("connect session: %w", err))
	}
	if !c.attach(func() {
		c.session = session
		c.framer = NewFramer(c.cfg.InputFormat, c.cfg.FrameSamples, c.sendFrame)
		c.state = StateOpen
	}) {
		_ = session.Close()
		return ErrConnClosed
	}
	c.emit(StateOpen, nil)
	c.logger.Debug("live connection open")
	return nil
}

// attach stores an acquired resource unless teardown already ran.
func (c *Conn) attach(set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	set()
	return true
}

func (c *Conn) sendFrame(frame []byte) {
	c.mu.Lock()
	session, ctx := c.session, c.ctx
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.SendAudio(ctx, frame); err != nil {
		c.logger.Debug("live capture frame dropped", "error", err)
	}
}

// PushCapture feeds captured PCM at the input rate. Complete frames are
// pushed to the vendor session without waiting for acknowledgement.
func (c *Conn) PushCapture(pcm []byte) {
	c.mu.Lock()
	framer, open := c.framer, c.state == StateOpen
	c.mu.Unlock()
	if !open || framer == nil {
		return
	}
	_, _ = framer.Write(pcm)
}

// Run consumes vendor events until the session ends. Speech is handed to the
// scheduler and interruptions drop everything queued. A receive error while
// open marks the connection errored; after Teardown it is a clean close.
func (c *Conn) Run() error {
	c.mu.Lock()
	session, scheduler, state := c.session, c.scheduler, c.state
	c.mu.Unlock()
	if state != StateOpen {
		return fmt.Errorf("live: run from state %s", state)
	}

	for {
		ev, err := session.Receive()
		if err != nil {
			if st, _ := c.State(); st != StateOpen {
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.Teardown()
				return nil
			}
			return c.fail(fmt.Errorf("receive: %w", err))
		}
		if len(ev.Audio) > 0 {
			sched, err := scheduler.OnChunkReceived(ev.Audio)
			switch {
			case errors.Is(err, ErrSchedulerClosed):
				return nil
			case err != nil:
				c.logger.Warn("live audio chunk skipped", "error", err)
			case c.cfg.OnScheduled != nil:
				c.cfg.OnScheduled(sched)
			}
		}
		if ev.Interrupted {
			stopped := scheduler.OnInterrupted()
			if c.cfg.OnInterrupted != nil {
				c.cfg.OnInterrupted(stopped)
			}
		}
	}
}

// Teardown stops playback and releases capture, output and session. It is
// idempotent and leaves the connection closed unless it had already errored.
func (c *Conn) Teardown() {
	c.release(StateClosed, nil)
}

func (c *Conn) fail(err error) error {
	c.release(StateErrored, err)
	return err
}

func (c *Conn) release(final State, cause error) {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		if c.state == StateErrored {
			final, cause = StateErrored, c.err
		}
		c.state = final
		c.err = cause
		capture, output, session, scheduler := c.capture, c.output, c.session, c.scheduler
		if c.framer != nil {
			c.framer.Reset()
		}
		c.mu.Unlock()

		if scheduler != nil {
			scheduler.Teardown()
		}
		if capture != nil {
			if err := capture.Close(); err != nil {
				c.logger.Debug("live capture close failed", "error", err)
			}
		}
		if output != nil {
			if err := output.Close(); err != nil {
				c.logger.Debug("live output close failed", "error", err)
			}
		}
		if session != nil {
			if err := session.Close(); err != nil {
				c.logger.Debug("live session close failed", "error", err)
			}
		}
		c.emit(final, cause)
	})
}

func (c *Conn) emit(state State, err error) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(state, err)
	}
}
