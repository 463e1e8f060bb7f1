package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/vibevote/pkg/core"
)

// APIVersionHeader lets a client pin the JSON API revision. Requests without
// it get the current one.
const APIVersionHeader = "X-VibeVote-Version"

const apiVersion = "1"

// APIVersion rejects /v1 requests pinned to any revision but the current one.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := strings.TrimSpace(r.Header.Get(APIVersionHeader))
		if v == "" || v == apiVersion || r.Method == http.MethodOptions || !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		reqID, _ := RequestIDFrom(r.Context())
		writeJSONError(w, http.StatusBadRequest, &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "unsupported API version " + v + "; this server speaks " + apiVersion,
			Param:     APIVersionHeader,
			Code:      "unsupported_version",
			RequestID: reqID,
		})
	})
}
