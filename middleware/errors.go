package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error string `json:"error"`
}

var errorStatus = []struct {
	err    error
	status int
}{
	{authcore.ErrCookies, http.StatusUnauthorized},
	{authcore.ErrInvalidAccessToken, http.StatusUnauthorized},
	{authcore.ErrSession, http.StatusUnauthorized},
	{authcore.ErrInvalidRefreshToken, http.StatusUnauthorized},
	{authcore.ErrUserNotFound, http.StatusUnauthorized},
	{authcore.ErrGoogleToken, http.StatusUnauthorized},
	{authcore.ErrCSRF, http.StatusForbidden},
	{authcore.ErrRegistrationDisabled, http.StatusForbidden},
	{authcore.ErrEmailUsed, http.StatusConflict},
	{authcore.ErrAlreadyVerified, http.StatusConflict},
	{authcore.ErrTooManyRequests, http.StatusTooManyRequests},
	{authcore.ErrEngineNotReady, http.StatusServiceUnavailable},
}

// StatusFor maps an engine error to an HTTP status. Domain errors without an
// explicit entry are client errors.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case authcore.IsDomain(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes {"error": "<wire code>"} with the status from [StatusFor].
func WriteError(w http.ResponseWriter, err error) {
	code := authcore.Code(err)
	if errors.Is(err, authcore.ErrEngineNotReady) {
		code = "EngineNotReady"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err))
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: code})
}
