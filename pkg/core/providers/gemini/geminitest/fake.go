// Package geminitest provides a scriptable in-memory Gateway for tests.
package geminitest

import (
	"context"
	"sync"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/live"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
)

// ChatCall records one SendChatTurn invocation.
type ChatCall struct {
	History  []gemini.Turn
	Text     string
	Images   []string
	Mode     gemini.Mode
	Location *gemini.LatLng
}

// Gateway is a gemini.Gateway whose behavior is set per field. Nil funcs
// return canned successes.
type Gateway struct {
	ChatFunc     func(ctx context.Context, call ChatCall) (gemini.ChatReply, error)
	ImageFunc    func(ctx context.Context, prompt string, size gemini.ImageSize, aspect string) (string, error)
	EditFunc     func(ctx context.Context, source, instruction string) (string, error)
	VideoFunc    func(ctx context.Context, prompt string) (*gemini.Operation, error)
	PollFunc     func(ctx context.Context, op *gemini.Operation) (*gemini.Operation, error)
	LiveFunc     func(ctx context.Context, opts gemini.LiveOptions) (live.VendorSession, error)
	DownloadFunc func(uri string) (string, error)
	Unconfigured bool

	mu    sync.Mutex
	chats []ChatCall
	polls int
}

var _ gemini.Gateway = (*Gateway)(nil)

func (g *Gateway) SendChatTurn(ctx context.Context, history []gemini.Turn, text string, images []string, mode gemini.Mode, loc *gemini.LatLng) (gemini.ChatReply, error) {
	call := ChatCall{History: history, Text: text, Images: images, Mode: mode, Location: loc}
	g.mu.Lock()
	g.chats = append(g.chats, call)
	g.mu.Unlock()
	if g.ChatFunc != nil {
		return g.ChatFunc(ctx, call)
	}
	return gemini.ChatReply{Text: "echo: " + text}, nil
}

func (g *Gateway) GenerateImage(ctx context.Context, prompt string, size gemini.ImageSize, aspect string) (string, error) {
	if g.ImageFunc != nil {
		return g.ImageFunc(ctx, prompt, size, aspect)
	}
	return gemini.FormatDataURI("image/png", []byte(prompt)), nil
}

func (g *Gateway) EditImage(ctx context.Context, source, instruction string) (string, error) {
	if g.EditFunc != nil {
		return g.EditFunc(ctx, source, instruction)
	}
	return gemini.FormatDataURI("image/png", []byte(instruction)), nil
}

func (g *Gateway) GenerateVideo(ctx context.Context, prompt string) (*gemini.Operation, error) {
	if g.VideoFunc != nil {
		return g.VideoFunc(ctx, prompt)
	}
	return &gemini.Operation{Name: "operations/fake"}, nil
}

func (g *Gateway) PollVideo(ctx context.Context, op *gemini.Operation) (*gemini.Operation, error) {
	g.mu.Lock()
	g.polls++
	g.mu.Unlock()
	if g.PollFunc != nil {
		return g.PollFunc(ctx, op)
	}
	return &gemini.Operation{Name: op.Name, Done: true, VideoURI: "https://files.test/" + op.Name + ".mp4"}, nil
}

func (g *Gateway) ConnectLive(ctx context.Context, opts gemini.LiveOptions) (live.VendorSession, error) {
	if g.LiveFunc != nil {
		return g.LiveFunc(ctx, opts)
	}
	return nil, core.NewConfigurationError("live sessions are not scripted", "GEMINI_API_KEY")
}

func (g *Gateway) VideoDownloadURL(uri string) (string, error) {
	if g.DownloadFunc != nil {
		return g.DownloadFunc(uri)
	}
	return gemini.WithAccessKey(uri, "fake-key")
}

func (g *Gateway) Configured() bool {
	return !g.Unconfigured
}

// ChatCalls returns the recorded chat invocations.
func (g *Gateway) ChatCalls() []ChatCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChatCall(nil), g.chats...)
}

// Polls returns how many times PollVideo was called.
func (g *Gateway) Polls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls
}
