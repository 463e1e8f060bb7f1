package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vibevote/pkg/core"
)

const providerName = "gemini"

// errMissingKey is returned by every call when no API key was configured.
var errMissingKey = core.NewConfigurationError("Gemini API key is not configured; set GEMINI_API_KEY", "GEMINI_API_KEY")

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// mapError converts SDK failures into the canonical error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return core.NewProviderError(providerName, err)
	}

	var errType core.ErrorType
	switch apiErr.Status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		errType = core.ErrInvalidRequest
	case "UNAUTHENTICATED":
		errType = core.ErrAuthentication
	case "PERMISSION_DENIED":
		errType = core.ErrPermission
	case "NOT_FOUND":
		errType = core.ErrNotFound
	case "RESOURCE_EXHAUSTED":
		errType = core.ErrRateLimit
	case "INTERNAL":
		errType = core.ErrAPI
	case "UNAVAILABLE":
		errType = core.ErrOverloaded
	default:
		errType = core.ErrProvider
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		errType = core.ErrRateLimit
	case http.StatusServiceUnavailable:
		errType = core.ErrOverloaded
	case http.StatusUnauthorized:
		errType = core.ErrAuthentication
	case http.StatusForbidden:
		errType = core.ErrPermission
	}

	return &core.Error{
		Type:          errType,
		Message:       apiErr.Message,
		Code:          apiErr.Status,
		ProviderError: err,
	}
}

// isCredentialRejection reports whether a video failure means the selected
// key cannot use the video model.
func isCredentialRejection(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := asAPIError(err); ok {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
		if apiErr.Code == http.StatusNotFound && strings.Contains(apiErr.Message, "Requested entity was not found") {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "Requested entity was not found") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403")
}

// mapVideoError is mapError with credential rejections surfaced as
// authorization errors so the caller can pick another key.
func mapVideoError(err error) error {
	if isCredentialRejection(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return core.NewAuthorizationError("Authorization failed. Please select a valid paid API key.", err)
	}
	return mapError(err)
}

// operationError converts the error payload of a finished operation.
func operationError(payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}
	msg, _ := payload["message"].(string)
	if msg == "" {
		msg = "Video generation failed"
	}
	code := 0
	switch v := payload["code"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case int64:
		code = int(v)
	}
	err := fmt.Errorf("video operation failed (code %d): %s", code, msg)
	if code == http.StatusUnauthorized || code == http.StatusForbidden || strings.Contains(msg, "Requested entity was not found") {
		return core.NewAuthorizationError("Authorization failed. Please select a valid paid API key.", err)
	}
	return &core.Error{Type: core.ErrProvider, Message: msg, ProviderError: payload}
}
