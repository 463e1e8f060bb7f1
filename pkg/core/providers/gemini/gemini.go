// Package gemini is the gateway to the Google Gemini API: chat turns with
// tool modes, image generation and editing, long-running video jobs, and
// live voice sessions.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/vibevote/pkg/core/live"
)

// Models used per operation.
const (
	ModelChat          = "gemini-3-flash-preview"
	ModelDeepReasoning = "gemini-3-pro-preview"
	ModelMaps          = "gemini-2.5-flash"
	ModelVision        = "gemini-2.5-flash-image"
	ModelImage         = "gemini-3-pro-image-preview"
	ModelImageEdit     = "gemini-2.5-flash-image"
	ModelVideo         = "veo-3.1-fast-generate-preview"
	ModelLive          = "gemini-2.5-flash-native-audio-preview-12-2025"
)

const (
	// DeepReasoningBudget is the thinking token budget for deep-reasoning turns.
	DeepReasoningBudget = 32768

	// NoResponseText replaces an empty model reply.
	NoResponseText = "No response text."

	DefaultVoice             = "Zephyr"
	DefaultLiveInstruction   = "You are a helpful and energetic AI assistant."
	DefaultVideoResolution   = "720p"
	DefaultVideoAspectRatio  = "16:9"
	DefaultImageAspectRatio  = "1:1"
	defaultChatImageMIMEType = "image/jpeg"
	defaultEditMIMEType      = "image/png"
)

// Mode selects the model and tools for a chat turn.
type Mode string

const (
	ModeStandard      Mode = "standard"
	ModeDeepReasoning Mode = "deep-reasoning"
	ModeWebSearch     Mode = "web-search"
	ModeMaps          Mode = "maps"
)

// ParseMode accepts the canonical mode names and the short aliases
// "thinking" and "search". Empty selects standard.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "deep-reasoning", "thinking":
		return ModeDeepReasoning, nil
	case "web-search", "search":
		return ModeWebSearch, nil
	case "maps":
		return ModeMaps, nil
	default:
		return "", fmt.Errorf("unknown chat mode %q", s)
	}
}

// ImageSize is the output resolution class for generated images.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

// ParseImageSize validates an image size; empty selects 1K.
func ParseImageSize(s string) (ImageSize, error) {
	switch ImageSize(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ImageSize1K:
		return ImageSize1K, nil
	case ImageSize2K:
		return ImageSize2K, nil
	case ImageSize4K:
		return ImageSize4K, nil
	default:
		return "", fmt.Errorf("unknown image size %q", s)
	}
}

// AspectRatios lists the ratios accepted for image generation.
var AspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}

// LatLng is a best-effort user position for maps grounding.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are on the globe.
func (l *LatLng) Valid() bool {
	return l != nil && l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Turn is a prior message replayed as chat history. Only text is replayed.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// Source is a grounding citation extracted from a reply.
type Source struct {
	Kind  string `json:"kind"` // "web" or "maps"
	Title string `json:"title"`
	URI   string `json:"uri,omitempty"`
}

// ChatReply is the model's answer to one chat turn. Grounding is the vendor's
// metadata passed through untouched.
type ChatReply struct {
	Text      string
	Sources   []Source
	Grounding any
}

// Operation is a handle to a long-running video generation.
type Operation struct {
	Name     string
	Done     bool
	Err      error
	VideoURI string

	raw any
}

// LiveOptions configures a live voice session.
type LiveOptions struct {
	Voice             string
	SystemInstruction string
	InputFormat       live.AudioConfig
}

// Gateway is the set of vendor operations the app depends on.
type Gateway interface {
	SendChatTurn(ctx context.Context, history []Turn, text string, images []string, mode Mode, loc *LatLng) (ChatReply, error)
	GenerateImage(ctx context.Context, prompt string, size ImageSize, aspectRatio string) (string, error)
	EditImage(ctx context.Context, source, instruction string) (string, error)
	GenerateVideo(ctx context.Context, prompt string) (*Operation, error)
	PollVideo(ctx context.Context, op *Operation) (*Operation, error)
	ConnectLive(ctx context.Context, opts LiveOptions) (live.VendorSession, error)
	// VideoDownloadURL returns the fetchable URL for a finished video with
	// the credential attached.
	VideoDownloadURL(uri string) (string, error)
	// Configured reports whether a credential is available.
	Configured() bool
}
