// Package chat holds the chat panel's conversation: an append-only message
// list with at most one turn in flight.
package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
)

// ErrorReply is appended in place of a model reply when the turn fails.
const ErrorReply = "Sorry, I encountered an error processing your request."

// Role identifies who wrote a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry in the conversation.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Images    []string        `json:"images,omitempty"`
	Sources   []gemini.Source `json:"sources,omitempty"`
	Grounding any             `json:"grounding_metadata,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
}

// SendRequest is one user turn. Image is an optional data URI.
type SendRequest struct {
	Text     string
	Image    string
	Mode     gemini.Mode
	Location *gemini.LatLng
}

// Options configures a Conversation.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Conversation is the message history of one chat panel.
type Conversation struct {
	gw     gemini.Gateway
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	messages []Message
	busy     bool
	gen      uint64
}

// NewConversation creates an empty conversation backed by gw.
func NewConversation(gw gemini.Gateway, opts Options) *Conversation {
	c := &Conversation{gw: gw, logger: opts.Logger, now: opts.Now, newID: opts.NewID}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Send appends the user turn, asks the model, and appends its reply. A failed
// model call does not fail Send: the reply is the ErrorReply placeholder.
// Send rejects a turn while another is in flight.
func (c *Conversation) Send(ctx context.Context, req SendRequest) (user, reply Message, err error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Image == "" {
		return Message{}, Message{}, core.NewInvalidRequestErrorWithParam("message text or image is required", "text")
	}
	mode := req.Mode
	if mode == "" {
		mode = gemini.ModeStandard
	}
	if req.Image != "" && mode != gemini.ModeStandard {
		return Message{}, Message{}, core.NewInvalidRequestErrorWithParam("images can only be attached in standard mode", "image")
	}
	loc := req.Location
	if mode != gemini.ModeMaps || !loc.Valid() {
		loc = nil
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return Message{}, Message{}, core.NewConflictError("a chat turn is already in progress", "panel_busy")
	}
	history := make([]gemini.Turn, 0, len(c.messages))
	for _, m := range c.messages {
		history = append(history, gemini.Turn{Role: string(m.Role), Text: m.Text})
	}
	user = Message{ID: c.newID(), Role: RoleUser, Text: text, Timestamp: c.now()}
	var images []string
	if req.Image != "" {
		images = []string{req.Image}
		user.Images = images
	}
	c.messages = append(c.messages, user)
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	start := time.Now()
	answer, callErr := c.gw.SendChatTurn(ctx, history, text, images, mode, loc)

	reply = Message{ID: c.newID(), Role: RoleModel, Timestamp: c.now()}
	if callErr != nil {
		c.logger.Warn("chat turn failed", "mode", mode, "error", callErr)
		reply.Text = ErrorReply
		reply.Failed = true
	} else {
		reply.Text = answer.Text
		reply.Sources = answer.Sources
		reply.Grounding = answer.Grounding
		c.logger.Debug("chat turn", "mode", mode, "duration_ms", time.Since(start).Milliseconds())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Reset while the turn was in flight; the reply belongs to a
		// conversation that no longer exists.
		return user, reply, nil
	}
	c.messages = append(c.messages, reply)
	c.busy = false
	return user, reply, nil
}

// Messages returns a copy of the conversation.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Busy reports whether a turn is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Reset clears the history. A turn in flight completes but is not recorded.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.busy = false
	c.gen++
}
