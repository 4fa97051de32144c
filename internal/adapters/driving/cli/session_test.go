package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
)

func TestStatus_NotSignedIn(t *testing.T) {
	session := &mockSessionService{status: driving.SessionStatus{StatePath: "/tmp/session.json"}}

	out, err := runCommand(t, &Services{Session: session}, "", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
	assert.Contains(t, out, "/tmp/session.json")
}

func TestStatus_SignedIn(t *testing.T) {
	expires := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	session := &mockSessionService{status: driving.SessionStatus{
		SignedIn:       true,
		Username:       "adele@contoso.example",
		HomeAccountID:  "oid.tid",
		TokenExpiresAt: &expires,
		Refreshable:    true,
		PendingLogin:   &domain.DeviceChallenge{UserCode: "WXYZ", VerificationURI: "https://microsoft.com/devicelogin"},
	}}

	out, err := runCommand(t, &Services{Session: session}, "", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "adele@contoso.example")
	assert.Contains(t, out, "oid.tid")
	assert.Contains(t, out, "Refreshable:    true")
	assert.Contains(t, out, "code WXYZ")
}

func TestStatus_JSON(t *testing.T) {
	session := &mockSessionService{status: driving.SessionStatus{SignedIn: true, Username: "adele@contoso.example"}}

	out, err := runCommand(t, &Services{Session: session}, "", "status", "--json")

	require.NoError(t, err)
	var got driving.SessionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.SignedIn)
	assert.Equal(t, "adele@contoso.example", got.Username)
}

func TestLogin_PrintsChallengeAndAccount(t *testing.T) {
	out, err := runCommand(t, &Services{Session: &mockSessionService{}}, "", "login")

	require.NoError(t, err)
	assert.Contains(t, out, "enter the code ABCD-EFGH")
	assert.Contains(t, out, "Signed in as adele@contoso.example")
}

func TestLogin_Failure(t *testing.T) {
	session := &mockSessionService{loginErr: &domain.AuthError{Op: "device_login", Code: "expired_token"}}

	_, err := runCommand(t, &Services{Session: session}, "", "login")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device login")
	var authErr *domain.AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestLogout(t *testing.T) {
	session := &mockSessionService{}

	out, err := runCommand(t, &Services{Session: session}, "", "logout")

	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	assert.Equal(t, 1, session.logouts)
}

func TestPrintChallenge(t *testing.T) {
	c := domain.DeviceChallenge{
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://microsoft.com/devicelogin",
		Message:         "To sign in, open https://microsoft.com/devicelogin and enter the code ABCD-EFGH to authenticate.",
		ExpiresAt:       time.Now().Add(15 * time.Minute),
	}

	tests := []struct {
		name   string
		styled bool
	}{
		{name: "plain", styled: false},
		{name: "styled", styled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printChallenge(&buf, c, tt.styled)

			assert.Contains(t, buf.String(), "ABCD-EFGH")
			assert.Contains(t, buf.String(), "https://microsoft.com/devicelogin")
		})
	}
}
