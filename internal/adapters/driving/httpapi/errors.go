package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// handlerWithError is an HTTP handler that returns its failure instead of
// writing it, so that errors map to responses in one place.
type handlerWithError func(http.ResponseWriter, *http.Request) error

// errorResponse is the JSON body of every error the relay produces itself.
// Errors returned by the remote API are passed through unchanged instead.
type errorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Login       string `json:"login,omitempty"`
}

// loginHint tells a client how to recover from a missing session.
const loginHint = "POST /auth/device-login"

// errorHandler wraps fn and converts its error into a response.
func errorHandler(fn handlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		remoteErr *domain.RemoteAPIError
		authErr   *domain.AuthError
		storeErr  *domain.StoreError
	)

	switch {
	case errors.As(err, &remoteErr):
		writeRemoteError(w, remoteErr)

	case domain.IsSessionError(err):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:   "authentication_required",
			Message: err.Error(),
			Login:   loginHint,
		})

	case errors.As(err, &authErr):
		logger.Warn("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:       "identity_provider_error",
			Message:     authErr.Error(),
			Code:        authErr.Code,
			Description: authErr.Description,
		})

	case errors.As(err, &storeErr):
		logger.Error("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "session_store_error",
			Message: "session state could not be read or written",
		})

	case errors.Is(err, domain.ErrDeviceLoginInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "login_in_progress", Message: err.Error()})

	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownAuthMode),
		errors.Is(err, domain.ErrInvalidRelayURL):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "timeout", Message: err.Error()})

	default:
		logger.Error("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: http.StatusText(http.StatusInternalServerError),
		})
	}
}

// writeRemoteError returns the remote status and body as received.
func writeRemoteError(w http.ResponseWriter, err *domain.RemoteAPIError) {
	if json.Valid([]byte(err.Body)) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(err.StatusCode)
	_, _ = w.Write([]byte(err.Body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("http: encode response: %v", err)
	}
}
