package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors.
var (
	// ErrNoDelegatedSession indicates no user has signed in. Callers should
	// start a device login.
	ErrNoDelegatedSession = errors.New("no delegated session, sign in with a device login")

	// ErrSessionExpired indicates the stored session has no usable refresh credential.
	ErrSessionExpired = errors.New("delegated session expired, sign in again")

	// ErrDeviceLoginInProgress indicates another device login is already polling.
	ErrDeviceLoginInProgress = errors.New("a device login is already in progress")

	// ErrUnknownAuthMode indicates an operation declared an unsupported auth mode.
	ErrUnknownAuthMode = errors.New("unknown auth mode")

	// ErrInvalidRelayURL indicates a remote call target outside the remote API.
	ErrInvalidRelayURL = errors.New("relay url is not under the remote API base url")

	// ErrInvalidInput indicates a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")
)

// AuthError reports that the identity provider rejected a credential exchange
// or device flow, or could not be reached.
type AuthError struct {
	// Op is the provider operation: "client_credentials", "device_authorization",
	// "device_token" or "refresh".
	Op string
	// Code is the OAuth error code, e.g. "invalid_client".
	Code string
	// Description is the provider's error_description.
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	msg := "auth " + e.Op + " failed"
	switch {
	case e.Code != "" && e.Description != "":
		msg += ": " + e.Code + ": " + e.Description
	case e.Code != "":
		msg += ": " + e.Code
	case e.Description != "":
		msg += ": " + e.Description
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// SessionError reports that no usable delegated session exists.
// It always wraps ErrNoDelegatedSession or ErrSessionExpired.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return "session: " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// RemoteAPIError reports an error status returned by the remote API.
// Body is the raw response body, unmodified.
type RemoteAPIError struct {
	StatusCode int
	Body       string
	// Cause is an optional classification of the status code.
	Cause error
}

func (e *RemoteAPIError) Error() string {
	msg := "remote api returned status " + strconv.Itoa(e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Cause
}

// StoreError reports that persisted session state could not be read or written.
// A load failure means the session cannot be trusted and is fatal.
type StoreError struct {
	Operation string // "load", "save", "lock"
	Path      string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s session state %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("%s session state: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsSessionError reports whether err signals a missing or unusable delegated session.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// IsAuthError reports whether err is an identity provider rejection.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
