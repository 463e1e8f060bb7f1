package handlers

import (
	"net/http"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

var (
	errSessionRequired = &core.Error{
		Type:    core.ErrAuthentication,
		Message: "session id is required; create one with POST /v1/sessions",
		Param:   mw.SessionHeader,
		Code:    "session_required",
	}
	errSessionNotFound = &core.Error{
		Type:    core.ErrNotFound,
		Message: "session not found or expired",
		Param:   mw.SessionHeader,
		Code:    "session_not_found",
	}
	errLocked = &core.Error{
		Type:    core.ErrAuthentication,
		Message: "app is locked; log in first",
		Code:    "locked",
	}
)

// resolveSession looks up the caller's session and writes the error response
// when there is none.
func resolveSession(reg *sessions.Registry, w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	return resolveSessionID(reg, w, r, mw.SessionIDFrom(r))
}

func resolveSessionID(reg *sessions.Registry, w http.ResponseWriter, r *http.Request, id string) (*sessions.Session, bool) {
	if id == "" {
		writeError(w, r, errSessionRequired)
		return nil, false
	}
	sess, ok := reg.Get(id)
	if !ok {
		writeError(w, r, errSessionNotFound)
		return nil, false
	}
	return sess, true
}

// resolveUnlocked is resolveSession for panels behind the login gate.
func resolveUnlocked(reg *sessions.Registry, w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, ok := resolveSession(reg, w, r)
	if !ok {
		return nil, false
	}
	if !sess.App.Authenticated() {
		writeError(w, r, errLocked)
		return nil, false
	}
	return sess, true
}
