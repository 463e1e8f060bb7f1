package core

import (
	"errors"
	"fmt"
)

// Error represents an API error.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrConflict       ErrorType = "conflict_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"

	// ErrConfiguration is a missing or unusable credential, reported where it is first needed.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrAuthorization is a vendor-side rejection of the credential (401/403/entity not found).
	ErrAuthorization ErrorType = "authorization_error"
	// ErrDevice covers microphone, output device and geolocation failures.
	ErrDevice ErrorType = "device_error"
	// ErrProgression is a caller contract violation, e.g. voting past the end of the catalog.
	ErrProgression ErrorType = "progression_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewConflictError creates a conflict error with a machine-readable code.
func NewConflictError(message, code string) *Error {
	return &Error{
		Type:    ErrConflict,
		Message: message,
		Code:    code,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewConfigurationError creates a configuration error naming the missing setting.
func NewConfigurationError(message, param string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
		Param:   param,
	}
}

// NewAuthorizationError creates an error asking the caller to pick another credential.
func NewAuthorizationError(message string, underlying error) *Error {
	e := &Error{
		Type:    ErrAuthorization,
		Message: message,
		Code:    "reselect_credential",
	}
	if underlying != nil {
		e.ProviderError = underlying
	}
	return e
}

// NewDeviceError creates a device/permission error.
func NewDeviceError(message string, underlying error) *Error {
	e := &Error{
		Type:    ErrDevice,
		Message: message,
	}
	if underlying != nil {
		e.ProviderError = underlying
	}
	return e
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying,
	}
}

// IsType reports whether err carries a *Error of type t anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) || ce == nil {
		return false
	}
	return ce.Type == t
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}
