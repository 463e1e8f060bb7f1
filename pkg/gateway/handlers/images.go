package handlers

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

const imagePanel = "image"

var errImageBusy = core.NewConflictError("an image request is already in progress", "panel_busy")

// ImageHandler serves the image panel: generation from a prompt and edits of
// an uploaded photo. One request per session runs at a time.
type ImageHandler struct {
	Config   config.Config
	Sessions *sessions.Registry
	Gateway  gemini.Gateway
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type generateImageRequest struct {
	Prompt      string `json:"prompt"`
	Size        string `json:"size,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type editImageRequest struct {
	Image       string `json:"image"`
	Instruction string `json:"instruction"`
}

type imageResponse struct {
	Image string `json:"image"`
}

func (h ImageHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	var req generateImageRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt"))
		return
	}
	size, err := gemini.ParseImageSize(req.Size)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "size"))
		return
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = gemini.DefaultImageAspectRatio
	}
	if !slices.Contains(gemini.AspectRatios, aspect) {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("aspect_ratio must be one of "+strings.Join(gemini.AspectRatios, ", "), "aspect_ratio"))
		return
	}

	release, ok := sess.AcquirePanel(imagePanel)
	if !ok {
		writeError(w, r, errImageBusy)
		return
	}
	defer release()

	uri, err := h.Gateway.GenerateImage(r.Context(), prompt, size, aspect)
	h.Metrics.RecordImage("generate", err == nil)
	if err != nil {
		h.Logger.Warn("image generation failed", "session_id", sess.ID, "error", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: uri})
}

func (h ImageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	var req editImageRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("image is required", "image"))
		return
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("instruction is required", "instruction"))
		return
	}

	release, ok := sess.AcquirePanel(imagePanel)
	if !ok {
		writeError(w, r, errImageBusy)
		return
	}
	defer release()

	uri, err := h.Gateway.EditImage(r.Context(), req.Image, instruction)
	h.Metrics.RecordImage("edit", err == nil)
	if err != nil {
		h.Logger.Warn("image edit failed", "session_id", sess.ID, "error", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: uri})
}
