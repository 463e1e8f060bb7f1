package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/live"
)

// Client implements Gateway on top of the genai SDK.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	sdk        *genai.Client
}

var _ Gateway = (*Client)(nil)

// New creates a gateway. An empty apiKey is accepted: every call then fails
// with a configuration error instead of failing startup.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if apiKey == "" {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.sdk = sdk
	return c, nil
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool {
	return c.sdk != nil
}

func (c *Client) ready() error {
	if c.sdk == nil {
		return errMissingKey
	}
	return nil
}

func (c *Client) generate(ctx context.Context, req generateRequest) (*genai.GenerateContentResponse, error) {
	start := time.Now()
	resp, err := c.sdk.Models.GenerateContent(ctx, req.model, req.contents, req.config)
	c.logger.Debug("gemini generate",
		"model", req.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

// SendChatTurn sends one user turn with prior history and returns the reply.
func (c *Client) SendChatTurn(ctx context.Context, history []Turn, text string, images []string, mode Mode, loc *LatLng) (ChatReply, error) {
	if err := c.ready(); err != nil {
		return ChatReply{}, err
	}
	req, err := buildChatRequest(history, text, images, mode, loc)
	if err != nil {
		return ChatReply{}, err
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return ChatReply{}, err
	}
	return replyFromResponse(resp), nil
}

// GenerateImage renders prompt and returns the image as a data URI.
func (c *Client) GenerateImage(ctx context.Context, prompt string, size ImageSize, aspectRatio string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	req, err := buildImageRequest(prompt, size, aspectRatio)
	if err != nil {
		return "", err
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	return firstImage(resp)
}

// EditImage applies instruction to source (a data URI or bare base64 PNG).
func (c *Client) EditImage(ctx context.Context, source, instruction string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	req, err := buildEditRequest(source, instruction)
	if err != nil {
		return "", err
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	return firstImage(resp)
}

// GenerateVideo starts a video job. The returned operation is usually not done.
func (c *Client) GenerateVideo(ctx context.Context, prompt string) (*Operation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	op, err := c.sdk.Models.GenerateVideos(ctx, ModelVideo, prompt, nil, buildVideoConfig())
	if err != nil {
		return nil, mapVideoError(err)
	}
	c.logger.Debug("gemini video started", "operation", op.Name)
	return operationFrom(op), nil
}

// PollVideo refreshes a video operation.
func (c *Client) PollVideo(ctx context.Context, op *Operation) (*Operation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if op == nil {
		return nil, core.NewInvalidRequestError("operation is required")
	}
	raw, ok := op.raw.(*genai.GenerateVideosOperation)
	if !ok || raw == nil {
		raw = &genai.GenerateVideosOperation{Name: op.Name}
	}
	next, err := c.sdk.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return nil, mapVideoError(err)
	}
	return operationFrom(next), nil
}

// VideoDownloadURL attaches the API key to a finished video URI.
func (c *Client) VideoDownloadURL(uri string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return WithAccessKey(uri, c.apiKey)
}

// ConnectLive opens a live voice session answering in audio.
func (c *Client) ConnectLive(ctx context.Context, opts LiveOptions) (live.VendorSession, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	format := opts.InputFormat
	if format == (live.AudioConfig{}) {
		format = live.InputAudioConfig()
	}
	session, err := c.sdk.Live.Connect(ctx, ModelLive, buildLiveConfig(opts))
	if err != nil {
		return nil, mapError(err)
	}
	return &liveSession{session: session, inputMIME: format.MIMEType()}, nil
}
