package gemini

import (
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vibevote/pkg/core"
)

// generateRequest is one GenerateContent call, built without touching the network.
type generateRequest struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func textPart(text string) *genai.Part {
	return &genai.Part{Text: text}
}

func inlinePart(mimeType string, data []byte) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// buildChatRequest selects the model and tools for mode and replays history
// ahead of the new user turn. Images are only accepted in standard mode.
func buildChatRequest(history []Turn, text string, images []string, mode Mode, loc *LatLng) (generateRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("message text or image is required", "text")
	}
	if len(images) > 0 && mode != ModeStandard {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("images can only be attached in standard mode", "image")
	}

	req := generateRequest{model: ModelChat}
	var cfg genai.GenerateContentConfig
	switch mode {
	case ModeStandard:
		if len(images) > 0 {
			req.model = ModelVision
		}
	case ModeDeepReasoning:
		req.model = ModelDeepReasoning
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](DeepReasoningBudget)}
	case ModeWebSearch:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case ModeMaps:
		req.model = ModelMaps
		cfg.Tools = []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}}
		if loc.Valid() {
			cfg.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{
						Latitude:  genai.Ptr(loc.Lat),
						Longitude: genai.Ptr(loc.Lng),
					},
				},
			}
		}
	default:
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("unknown chat mode "+string(mode), "mode")
	}

	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := turn.Role
		if role != "user" && role != "model" {
			return generateRequest{}, core.NewInvalidRequestErrorWithParam("history role must be user or model", "history")
		}
		req.contents = append(req.contents, &genai.Content{Role: role, Parts: []*genai.Part{textPart(turn.Text)}})
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		mimeType, data, err := ParseDataURI(img, defaultChatImageMIMEType)
		if err != nil {
			return generateRequest{}, core.NewInvalidRequestErrorWithParam(err.Error(), "image")
		}
		parts = append(parts, inlinePart(mimeType, data))
	}
	if text != "" {
		parts = append(parts, textPart(text))
	}
	req.contents = append(req.contents, &genai.Content{Role: "user", Parts: parts})

	if cfg.ThinkingConfig != nil || cfg.Tools != nil {
		req.config = &cfg
	}
	return req, nil
}

func buildImageRequest(prompt string, size ImageSize, aspectRatio string) (generateRequest, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	if size == "" {
		size = ImageSize1K
	}
	if _, err := ParseImageSize(string(size)); err != nil {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam(err.Error(), "size")
	}
	if aspectRatio == "" {
		aspectRatio = DefaultImageAspectRatio
	}
	if !slices.Contains(AspectRatios, aspectRatio) {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("unsupported aspect ratio "+aspectRatio, "aspect_ratio")
	}
	return generateRequest{
		model:    ModelImage,
		contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{textPart(prompt)}}},
		config: &genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				ImageSize:   string(size),
				AspectRatio: aspectRatio,
			},
		},
	}, nil
}

func buildEditRequest(source, instruction string) (generateRequest, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam("edit instruction is required", "instruction")
	}
	mimeType, data, err := ParseDataURI(source, defaultEditMIMEType)
	if err != nil {
		return generateRequest{}, core.NewInvalidRequestErrorWithParam(err.Error(), "image")
	}
	return generateRequest{
		model: ModelImageEdit,
		contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{
			inlinePart(mimeType, data),
			textPart(instruction),
		}}},
	}, nil
}

func buildVideoConfig() *genai.GenerateVideosConfig {
	return &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     DefaultVideoResolution,
		AspectRatio:    DefaultVideoAspectRatio,
	}
}

func buildLiveConfig(opts LiveOptions) *genai.LiveConnectConfig {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	instruction := opts.SystemInstruction
	if instruction == "" {
		instruction = DefaultLiveInstruction
	}
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		SystemInstruction: &genai.Content{Parts: []*genai.Part{textPart(instruction)}},
	}
}
