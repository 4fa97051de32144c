package httpapi

import (
	"errors"
	"net/http"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
)

type sessionRoutes struct {
	session driving.SessionService
}

// startLogin begins a device login and responds with the challenge. The
// login completes in the background once the user signs in.
func (s *sessionRoutes) startLogin(w http.ResponseWriter, r *http.Request) error {
	challenge, err := s.session.StartLogin(r.Context())
	if errors.Is(err, domain.ErrDeviceLoginInProgress) {
		if pending, ok := s.session.PendingLogin(); ok {
			writeJSON(w, http.StatusConflict, pendingLoginResponse{
				Error:     "login_in_progress",
				Challenge: pending,
			})
			return nil
		}
	}
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusAccepted, challenge)
	return nil
}

type pendingLoginResponse struct {
	Error     string                 `json:"error"`
	Challenge domain.DeviceChallenge `json:"challenge"`
}

func (s *sessionRoutes) pendingLogin(w http.ResponseWriter, _ *http.Request) error {
	challenge, ok := s.session.PendingLogin()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no_login_in_progress"})
		return nil
	}
	writeJSON(w, http.StatusOK, challenge)
	return nil
}

func (s *sessionRoutes) status(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, s.session.Status())
	return nil
}

func (s *sessionRoutes) logout(w http.ResponseWriter, r *http.Request) error {
	if err := s.session.Logout(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
