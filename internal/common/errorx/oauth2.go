package errorx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// OAuth2Error is the RFC 6749 error body returned by every protocol endpoint.
type OAuth2Error struct {
	ErrorType        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	HTTPStatus       int    `json:"-"`
}

func (e *OAuth2Error) Error() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// WithDescription returns a copy carrying a human-readable description.
// The sentinel values below stay immutable so errors.Is keeps working.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	clone := *e
	clone.ErrorDescription = desc
	return &clone
}

// Is matches on the OAuth2 error code so described copies still compare
// equal to their sentinel.
func (e *OAuth2Error) Is(target error) bool {
	var other *OAuth2Error
	if !errors.As(target, &other) {
		return false
	}
	return e.ErrorType == other.ErrorType
}

var (
	ErrInvalidRequest = &OAuth2Error{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidClient = &OAuth2Error{
		ErrorType:  "invalid_client",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidGrant = &OAuth2Error{
		ErrorType:  "invalid_grant",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorizedClient = &OAuth2Error{
		ErrorType:  "unauthorized_client",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		ErrorType:  "unsupported_grant_type",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAccessDenied = &OAuth2Error{
		ErrorType:  "access_denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrUnsupportedResponseType = &OAuth2Error{
		ErrorType:  "unsupported_response_type",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidScope = &OAuth2Error{
		ErrorType:  "invalid_scope",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrServerError = &OAuth2Error{
		ErrorType:  "server_error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrTemporarilyUnavailable = &OAuth2Error{
		ErrorType:  "temporarily_unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// ConvertToOAuth2Error converts any error to an OAuth2Error.
// Errors already in the taxonomy pass through; everything else (storage
// failures, signing failures) is classified server_error without leaking
// the underlying message to the caller.
func ConvertToOAuth2Error(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}

	return ErrServerError
}
