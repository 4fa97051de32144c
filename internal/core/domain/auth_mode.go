package domain

import (
	"fmt"
	"strings"
)

// AuthMode identifies which credential an outbound operation must carry.
type AuthMode string

const (
	// AuthModeApplication authenticates as the service itself (client credentials).
	AuthModeApplication AuthMode = "application"
	// AuthModeDelegated authenticates as the signed-in user (device authorization).
	AuthModeDelegated AuthMode = "delegated"
)

// ParseAuthMode converts a user-supplied mode name into an AuthMode.
// Accepts the short forms "app" and "user" as well.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "application", "app":
		return AuthModeApplication, nil
	case "delegated", "user":
		return AuthModeDelegated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAuthMode, s)
	}
}

// Valid reports whether m is one of the known modes.
func (m AuthMode) Valid() bool {
	return m == AuthModeApplication || m == AuthModeDelegated
}

func (m AuthMode) String() string {
	return string(m)
}
