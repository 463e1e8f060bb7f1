package gemini

import (
	"bytes"
	"testing"

	"github.com/vango-go/vibevote/pkg/core"
)

func TestBuildChatRequest_ModeSelectsModelAndTools(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		images     []string
		wantModel  string
		wantSearch bool
		wantMaps   bool
		wantBudget int32
	}{
		{name: "standard", mode: ModeStandard, wantModel: ModelChat},
		{name: "standard with image", mode: ModeStandard, images: []string{"data:image/png;base64,iVBORw=="}, wantModel: ModelVision},
		{name: "deep reasoning", mode: ModeDeepReasoning, wantModel: ModelDeepReasoning, wantBudget: DeepReasoningBudget},
		{name: "web search", mode: ModeWebSearch, wantModel: ModelChat, wantSearch: true},
		{name: "maps", mode: ModeMaps, wantModel: ModelMaps, wantMaps: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildChatRequest(nil, "hello", tt.images, tt.mode, nil)
			if err != nil {
				t.Fatalf("buildChatRequest: %v", err)
			}
			if req.model != tt.wantModel {
				t.Fatalf("model = %q, want %q", req.model, tt.wantModel)
			}

			var search, maps bool
			var budget int32
			if req.config != nil {
				for _, tool := range req.config.Tools {
					search = search || tool.GoogleSearch != nil
					maps = maps || tool.GoogleMaps != nil
				}
				if tc := req.config.ThinkingConfig; tc != nil && tc.ThinkingBudget != nil {
					budget = *tc.ThinkingBudget
				}
			}
			if search != tt.wantSearch || maps != tt.wantMaps {
				t.Fatalf("tools search=%v maps=%v, want search=%v maps=%v", search, maps, tt.wantSearch, tt.wantMaps)
			}
			if budget != tt.wantBudget {
				t.Fatalf("thinking budget = %d, want %d", budget, tt.wantBudget)
			}
		})
	}
}

func TestBuildChatRequest_MapsLocation(t *testing.T) {
	req, err := buildChatRequest(nil, "bars nearby", nil, ModeMaps, &LatLng{Lat: -23.55, Lng: -46.63})
	if err != nil {
		t.Fatalf("buildChatRequest: %v", err)
	}
	if req.config.ToolConfig == nil || req.config.ToolConfig.RetrievalConfig == nil {
		t.Fatalf("expected retrieval config with location")
	}
	ll := req.config.ToolConfig.RetrievalConfig.LatLng
	if ll == nil || *ll.Latitude != -23.55 || *ll.Longitude != -46.63 {
		t.Fatalf("latLng = %+v", ll)
	}

	// Invalid coordinates are dropped and the turn still proceeds.
	req, err = buildChatRequest(nil, "bars nearby", nil, ModeMaps, &LatLng{Lat: 200, Lng: 0})
	if err != nil {
		t.Fatalf("buildChatRequest: %v", err)
	}
	if req.config.ToolConfig != nil {
		t.Fatalf("invalid location must be dropped")
	}
}

func TestBuildChatRequest_HistoryAndParts(t *testing.T) {
	history := []Turn{
		{Role: "user", Text: "hi"},
		{Role: "model", Text: "hello!"},
		{Role: "model", Text: "  "},
	}
	img := FormatDataURI("image/webp", []byte{1, 2, 3})
	req, err := buildChatRequest(history, "what is this?", []string{img}, ModeStandard, nil)
	if err != nil {
		t.Fatalf("buildChatRequest: %v", err)
	}
	if len(req.contents) != 3 {
		t.Fatalf("contents = %d, want 3 (empty history turn skipped)", len(req.contents))
	}
	if req.contents[0].Role != "user" || req.contents[1].Role != "model" {
		t.Fatalf("history roles = %q, %q", req.contents[0].Role, req.contents[1].Role)
	}
	last := req.contents[2]
	if last.Role != "user" || len(last.Parts) != 2 {
		t.Fatalf("last turn = role %q with %d parts", last.Role, len(last.Parts))
	}
	blob := last.Parts[0].InlineData
	if blob == nil || blob.MIMEType != "image/webp" || !bytes.Equal(blob.Data, []byte{1, 2, 3}) {
		t.Fatalf("image part = %+v", blob)
	}
	if last.Parts[1].Text != "what is this?" {
		t.Fatalf("text part = %q", last.Parts[1].Text)
	}
	if req.config != nil {
		t.Fatalf("standard mode should not set a config")
	}
}

func TestBuildChatRequest_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		images []string
		mode   Mode
		hist   []Turn
	}{
		{name: "empty", text: "  "},
		{name: "image outside standard", text: "x", images: []string{"aGVsbG8="}, mode: ModeWebSearch},
		{name: "bad image", text: "x", images: []string{"data:image/png;base64,%%%"}, mode: ModeStandard},
		{name: "unknown mode", text: "x", mode: Mode("poetry")},
		{name: "bad history role", text: "x", mode: ModeStandard, hist: []Turn{{Role: "system", Text: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := tt.mode
			if mode == "" {
				mode = ModeStandard
			}
			_, err := buildChatRequest(tt.hist, tt.text, tt.images, mode, nil)
			if !core.IsType(err, core.ErrInvalidRequest) {
				t.Fatalf("err = %v, want invalid_request_error", err)
			}
		})
	}
}

func TestBuildImageRequest(t *testing.T) {
	req, err := buildImageRequest("neon stage", ImageSize4K, "16:9")
	if err != nil {
		t.Fatalf("buildImageRequest: %v", err)
	}
	if req.model != ModelImage {
		t.Fatalf("model = %q", req.model)
	}
	ic := req.config.ImageConfig
	if ic == nil || ic.ImageSize != "4K" || ic.AspectRatio != "16:9" {
		t.Fatalf("image config = %+v", ic)
	}

	req, err = buildImageRequest("neon stage", "", "")
	if err != nil {
		t.Fatalf("buildImageRequest defaults: %v", err)
	}
	if req.config.ImageConfig.ImageSize != "1K" || req.config.ImageConfig.AspectRatio != "1:1" {
		t.Fatalf("defaults = %+v", req.config.ImageConfig)
	}

	if _, err := buildImageRequest("x", "8K", ""); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid size error, got %v", err)
	}
	if _, err := buildImageRequest("x", ImageSize1K, "2:1"); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid ratio error, got %v", err)
	}
	if _, err := buildImageRequest(" ", ImageSize1K, ""); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("expected missing prompt error, got %v", err)
	}
}

func TestBuildImageRequest_AcceptsPanelAspectRatios(t *testing.T) {
	for _, ratio := range []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"} {
		t.Run(ratio, func(t *testing.T) {
			req, err := buildImageRequest("crowd at sunset", ImageSize2K, ratio)
			if err != nil {
				t.Fatalf("buildImageRequest(%q): %v", ratio, err)
			}
			if got := req.config.ImageConfig.AspectRatio; got != ratio {
				t.Fatalf("aspect ratio = %q, want %q", got, ratio)
			}
		})
	}
}

func TestBuildEditRequest_DefaultsToPNG(t *testing.T) {
	req, err := buildEditRequest("aGVsbG8=", "add a retro filter")
	if err != nil {
		t.Fatalf("buildEditRequest: %v", err)
	}
	if req.model != ModelImageEdit {
		t.Fatalf("model = %q", req.model)
	}
	parts := req.contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData.MIMEType != "image/png" || string(parts[0].InlineData.Data) != "hello" {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[1].Text != "add a retro filter" {
		t.Fatalf("instruction = %q", parts[1].Text)
	}
}

func TestBuildLiveConfig(t *testing.T) {
	cfg := buildLiveConfig(LiveOptions{})
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("modalities = %v", cfg.ResponseModalities)
	}
	if got := cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != DefaultVoice {
		t.Fatalf("voice = %q", got)
	}
	if got := cfg.SystemInstruction.Parts[0].Text; got != DefaultLiveInstruction {
		t.Fatalf("instruction = %q", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":               ModeStandard,
		"standard":       ModeStandard,
		"thinking":       ModeDeepReasoning,
		"deep-reasoning": ModeDeepReasoning,
		"SEARCH":         ModeWebSearch,
		"web-search":     ModeWebSearch,
		"maps":           ModeMaps,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("karaoke"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
