// Package video runs long-running video generation jobs. Each job is polled
// in the background until the vendor reports completion or failure; callers
// read job status by id.
package video

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusErrored Status = "errored"
)

const (
	DefaultPollInterval = 5 * time.Second

	statusGenerating = "Generating video... This may take a minute."
	statusComplete   = "Video generated successfully!"
)

// Job is a snapshot of one video generation.
type Job struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	VideoURI  string    `json:"-"`
	Err       error     `json:"-"`
	Polls     int       `json:"polls"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options configures a Manager.
type Options struct {
	PollInterval time.Duration
	// PollTimeout bounds a job's total polling time. Zero polls until the
	// vendor finishes.
	PollTimeout time.Duration
	Logger      *slog.Logger
	// OnFinish observes every job reaching a terminal state.
	OnFinish func(Job)
}

// Manager owns the video jobs of one client session. Only one job may be
// pending at a time.
type Manager struct {
	gw   gemini.Gateway
	opts Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*Job
	pending string
	gen     uint64
}

// NewManager creates a manager whose poll loops outlive the requests that
// start them.
func NewManager(gw gemini.Gateway, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gw:      gw,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
	}
}

// Start submits prompt and begins polling in the background.
func (m *Manager) Start(ctx context.Context, prompt string) (Job, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Job{}, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}

	m.mu.Lock()
	if m.pending != "" {
		m.mu.Unlock()
		return Job{}, core.NewConflictError("a video is already being generated", "panel_busy")
	}
	if err := m.baseCtx.Err(); err != nil {
		m.mu.Unlock()
		return Job{}, core.NewConflictError("video generation is shutting down", "shutting_down")
	}
	// Reserve the panel while the submit call is in flight.
	m.pending = "submitting"
	gen := m.gen
	m.mu.Unlock()

	op, err := m.gw.GenerateVideo(ctx, prompt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.pending = ""
	}
	if err != nil {
		return Job{}, err
	}
	if m.gen != gen {
		return Job{}, core.NewConflictError("session was reset during submission", "session_reset")
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Status:    StatusPending,
		Message:   statusGenerating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = job
	m.pending = job.ID

	m.wg.Add(1)
	go m.poll(gen, job.ID, op)
	return *job, nil
}

func (m *Manager) poll(gen uint64, id string, op *gemini.Operation) {
	defer m.wg.Done()

	ctx := m.baseCtx
	if m.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.PollTimeout)
		defer cancel()
	}

	timer := time.NewTimer(m.opts.PollInterval)
	defer timer.Stop()
	for !op.Done {
		timer.Reset(m.opts.PollInterval)
		select {
		case <-ctx.Done():
			m.finish(gen, id, nil, pollAborted(ctx.Err()))
			return
		case <-timer.C:
		}

		next, err := m.gw.PollVideo(ctx, op)
		m.touch(gen, id)
		if err != nil {
			if ctx.Err() != nil {
				err = pollAborted(ctx.Err())
			}
			m.finish(gen, id, nil, err)
			return
		}
		op = next
	}
	m.finish(gen, id, op, op.Err)
}

func pollAborted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{Type: core.ErrProvider, Message: "video generation timed out", Code: "poll_timeout"}
	}
	return &core.Error{Type: core.ErrProvider, Message: "video generation was cancelled", Code: "cancelled"}
}

func (m *Manager) touch(gen uint64, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && m.gen == gen {
		job.Polls++
		job.UpdatedAt = time.Now()
	}
}

func (m *Manager) finish(gen uint64, id string, op *gemini.Operation, err error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || m.gen != gen {
		m.mu.Unlock()
		m.opts.Logger.Debug("video job finished after discard", "job_id", id)
		return
	}
	job.UpdatedAt = time.Now()
	if err != nil {
		job.Status = StatusErrored
		job.Err = err
		job.Message = "Error: " + errorMessage(err)
		var ce *core.Error
		if errors.As(err, &ce) && ce.Type == core.ErrAuthorization {
			job.Message = ce.Message
		}
	} else {
		job.Status = StatusDone
		job.VideoURI = op.VideoURI
		job.Message = statusComplete
	}
	if m.pending == id {
		m.pending = ""
	}
	snapshot := *job
	m.mu.Unlock()

	if err != nil {
		m.opts.Logger.Warn("video job failed", "job_id", id, "error", err)
	} else {
		m.opts.Logger.Info("video job complete", "job_id", id, "polls", snapshot.Polls)
	}
	if m.opts.OnFinish != nil {
		m.opts.OnFinish(snapshot)
	}
}

func errorMessage(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// Get returns a snapshot of job id.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Busy reports whether a job is being submitted or polled.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != ""
}

// Discard forgets every job. Poll loops already running complete without
// recording their results.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[string]*Job)
	m.pending = ""
	m.gen++
}

// Close cancels all poll loops and waits for them to exit or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
