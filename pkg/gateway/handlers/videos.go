package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/core/video"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

// VideoHandler starts video jobs, reports their progress and streams the
// finished clip. The vendor download URL carries the credential, so clients
// only ever see the proxied content path.
type VideoHandler struct {
	Config     config.Config
	Sessions   *sessions.Registry
	Gateway    gemini.Gateway
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type startVideoRequest struct {
	Prompt string `json:"prompt"`
}

type videoJobResponse struct {
	video.Job
	Error      *core.Error `json:"error,omitempty"`
	ContentURL string      `json:"content_url,omitempty"`
}

func jobResponse(job video.Job) videoJobResponse {
	out := videoJobResponse{Job: job}
	if job.Err != nil {
		out.Error = errorForJob(job.Err)
	}
	if job.Status == video.StatusDone && job.VideoURI != "" {
		out.ContentURL = "/v1/videos/" + job.ID + "/content"
	}
	return out
}

func errorForJob(err error) *core.Error {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return &core.Error{Type: core.ErrProvider, Message: err.Error()}
	}
	out := *ce
	if _, isErr := out.ProviderError.(error); isErr {
		out.ProviderError = nil
	}
	return &out
}

// redactURLError drops the request URL, which carries the API key.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func (h VideoHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	var req startVideoRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := sess.Video.Start(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.RecordVideoJob("submitted")
	h.Logger.Info("video job started", "session_id", sess.ID, "job_id", job.ID)
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	job, ok := sess.Video.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, &core.Error{Type: core.ErrNotFound, Message: "video job not found", Param: "id", Code: "job_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// Content streams a finished video from the vendor file store.
func (h VideoHandler) Content(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	job, ok := sess.Video.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, &core.Error{Type: core.ErrNotFound, Message: "video job not found", Param: "id", Code: "job_not_found"})
		return
	}
	if job.Status != video.StatusDone || job.VideoURI == "" {
		writeError(w, r, core.NewConflictError("video is not ready", "video_not_ready"))
		return
	}

	src, err := h.Gateway.VideoDownloadURL(job.VideoURI)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, src, nil)
	if err != nil {
		writeError(w, r, core.NewProviderError("gemini", redactURLError(err)))
		return
	}
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(upstreamReq)
	if err != nil {
		// The URL embeds the credential; log the job, never the URL.
		h.Logger.Warn("video download failed", "session_id", sess.ID, "job_id", job.ID, "error", redactURLError(err))
		writeError(w, r, &core.Error{Type: core.ErrProvider, Message: "video download failed"})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.Logger.Warn("video download rejected", "session_id", sess.ID, "job_id", job.ID, "status", resp.StatusCode)
		writeError(w, r, &core.Error{Type: core.ErrProvider, Message: fmt.Sprintf("video download failed with status %d", resp.StatusCode)})
		return
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "video/mp4"
	}
	w.Header().Set("Content-Type", ct)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", job.ID+".mp4"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.Logger.Debug("video stream interrupted", "job_id", job.ID, "error", redactURLError(err))
	}
}
