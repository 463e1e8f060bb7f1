package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/appstate"
	"github.com/vango-go/vibevote/pkg/gateway/config"
	"github.com/vango-go/vibevote/pkg/gateway/metrics"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

// AppHandler serves the session, login gate, navigation and voting endpoints.
type AppHandler struct {
	Config   config.Config
	Sessions *sessions.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type createSessionRequest struct {
	Language string `json:"language,omitempty"`
}

type createSessionResponse struct {
	SessionID string         `json:"session_id"`
	State     appstate.State `json:"state"`
}

// CreateSession starts a LOCKED session. The language comes from the body
// when given, otherwise from Accept-Language.
func (h AppHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lang := appstate.NegotiateLanguage(r.Header.Get("Accept-Language"))
	if req.Language != "" {
		parsed, err := appstate.ParseLanguage(req.Language)
		if err != nil {
			writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "language"))
			return
		}
		lang = parsed
	}

	sess := h.Sessions.Create(lang)
	cookie := &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if h.Config.SessionTTL > 0 {
		cookie.MaxAge = int(h.Config.SessionTTL / time.Second)
	}
	http.SetCookie(w, cookie)
	w.Header().Set(mw.SessionHeader, sess.ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sess.ID, State: sess.App.Snapshot()})
}

func (h AppHandler) State(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginFailure struct {
	Error *core.Error    `json:"error"`
	State appstate.State `json:"state"`
}

// Login validates an access code. It answers once the unlock has happened,
// so a 200 always carries the VOTE view.
func (h AppHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	unlocked, err := sess.App.Login(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.RecordLogin(unlocked)
	if !unlocked {
		reqID := requestID(r)
		writeJSON(w, http.StatusUnauthorized, loginFailure{
			Error: &core.Error{
				Type:      core.ErrAuthentication,
				Message:   "invalid access code",
				Param:     "code",
				Code:      "invalid_code",
				RequestID: reqID,
			},
			State: sess.App.Snapshot(),
		})
		return
	}
	h.Logger.Info("session unlocked", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}

func (h AppHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	sess.App.Logout()
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}

type navigateRequest struct {
	View string `json:"view"`
}

func (h AppHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.App.Navigate(appstate.ViewMode(req.View)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}

type voteRequest struct {
	Liked *bool `json:"liked"`
}

type voteResponse struct {
	Result appstate.VoteResult `json:"result"`
	State  appstate.State      `json:"state"`
}

func (h AppHandler) Vote(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Liked == nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("liked is required", "liked"))
		return
	}
	res, err := sess.App.CastVote(*req.Liked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.RecordVote(res.Liked)
	writeJSON(w, http.StatusOK, voteResponse{Result: res, State: sess.App.Snapshot()})
}

func (h AppHandler) DismissToast(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	sess.App.DismissToast()
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}

func (h AppHandler) ToggleProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	open, err := sess.App.ToggleProfile()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"profile_panel_open": open})
}

type languageRequest struct {
	Language string `json:"language"`
}

func (h AppHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	sess, ok := resolveSession(h.Sessions, w, r)
	if !ok {
		return
	}
	var req languageRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.App.SetLanguage(appstate.Language(req.Language)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.App.Snapshot())
}
