package handlers

import (
	"net/http"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/chat"
	"github.com/vango-go/vibevote/pkg/core/providers/gemini"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

type ChatHandler struct {
	Config   config.Config
	Sessions *sessions.Registry
	Metrics  *metrics.Metrics
}

type chatHistoryResponse struct {
	Messages []chat.Message `json:"messages"`
	Busy     bool           `json:"busy"`
}

func (h ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	msgs := sess.Chat.Messages()
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, chatHistoryResponse{Messages: msgs, Busy: sess.Chat.Busy()})
}

type chatRequest struct {
	Text     string         `json:"text"`
	Image    string         `json:"image,omitempty"`
	Mode     string         `json:"mode,omitempty"`
	Location *gemini.LatLng `json:"location,omitempty"`
}

type chatResponse struct {
	User  chat.Message `json:"user"`
	Reply chat.Message `json:"reply"`
}

// Send runs one chat turn. A failed model call still answers 200 with the
// placeholder reply marked failed.
func (h ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveUnlocked(h.Sessions, w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := gemini.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "mode"))
		return
	}

	user, reply, err := sess.Chat.Send(r.Context(), chat.SendRequest{
		Text:     req.Text,
		Image:    req.Image,
		Mode:     mode,
		Location: req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.RecordChatTurn(string(mode), !reply.Failed)
	writeJSON(w, http.StatusOK, chatResponse{User: user, Reply: reply})
}
