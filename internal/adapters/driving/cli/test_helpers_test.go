package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/calendar"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/outlook"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
)

// mockGraphService implements driving.GraphService for testing.
type mockGraphService struct {
	result *domain.RelayResult
	err    error

	mode   domain.AuthMode
	method string
	path   string
	body   any
}

func (m *mockGraphService) Do(
	_ context.Context, mode domain.AuthMode, method, path string, body any,
) (*domain.RelayResult, error) {
	m.mode, m.method, m.path, m.body = mode, method, path, body
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.RelayResult{StatusCode: 200, Body: json.RawMessage(`{"id":"1"}`)}, nil
}

func (m *mockGraphService) Me(context.Context) (*domain.RelayResult, error)        { return nil, nil }
func (m *mockGraphService) ListChats(context.Context) (*domain.RelayResult, error) { return nil, nil }

func (m *mockGraphService) SendChatMessage(context.Context, string, *teams.ChatMessage) (*domain.RelayResult, error) {
	return nil, nil
}

func (m *mockGraphService) SendMail(context.Context, string, *outlook.Mail) (*domain.RelayResult, error) {
	return nil, nil
}

func (m *mockGraphService) ListMessages(context.Context, string, int) (*domain.RelayResult, error) {
	return nil, nil
}

func (m *mockGraphService) CreateMeeting(context.Context, string, *calendar.Meeting) (*domain.RelayResult, error) {
	return nil, nil
}

func (m *mockGraphService) ListEvents(context.Context, string, time.Time, time.Time) (*domain.RelayResult, error) {
	return nil, nil
}

func (m *mockGraphService) ListUsers(context.Context, int) (*domain.RelayResult, error) {
	return nil, nil
}

// mockSessionService implements driving.SessionService for testing.
type mockSessionService struct {
	status   driving.SessionStatus
	loginErr error
	logouts  int
}

func (m *mockSessionService) StartLogin(context.Context) (domain.DeviceChallenge, error) {
	return domain.DeviceChallenge{}, nil
}

func (m *mockSessionService) Login(_ context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	notify(domain.DeviceChallenge{
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://microsoft.com/devicelogin",
		Message:         "To sign in, open https://microsoft.com/devicelogin and enter the code ABCD-EFGH to authenticate.",
	})
	return &domain.Account{Username: "adele@contoso.example"}, nil
}

func (m *mockSessionService) PendingLogin() (domain.DeviceChallenge, bool) {
	return domain.DeviceChallenge{}, false
}

func (m *mockSessionService) Status() driving.SessionStatus { return m.status }

func (m *mockSessionService) Logout(context.Context) error {
	m.logouts++
	return nil
}

// mockDispatcher implements driving.CredentialDispatcher for testing.
type mockDispatcher struct {
	token domain.Token
	err   error
	mode  domain.AuthMode
}

func (m *mockDispatcher) Resolve(_ context.Context, mode domain.AuthMode) (domain.Token, error) {
	m.mode = mode
	return m.token, m.err
}

// resetCommand restores the package state touched by a command run.
func resetCommand(t *testing.T) {
	t.Helper()

	oldGraph, oldSession, oldDispatcher := graphService, sessionService, dispatcher
	oldConfig, oldWatch, oldBootstrap := relayConfig, watchSession, bootstrap
	t.Cleanup(func() {
		graphService, sessionService, dispatcher = oldGraph, oldSession, oldDispatcher
		relayConfig, watchSession, bootstrap = oldConfig, oldWatch, oldBootstrap
		tokenMode, callMode, callData = string(domain.AuthModeDelegated), string(domain.AuthModeDelegated), ""
		statusJSON, loginOpenBrowser, verbose, configPath, serveListen = false, false, false, "", ""
		cleanup = nil

		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
		for _, c := range append(rootCmd.Commands(), rootCmd) {
			if f := c.Flags().Lookup("help"); f != nil {
				_ = f.Value.Set("false")
			}
		}
	})

	graphService, sessionService, dispatcher = nil, nil, nil
	relayConfig, watchSession, bootstrap = nil, nil, nil
}

// runCommand executes the root command with args against s, capturing output.
func runCommand(t *testing.T, s *Services, stdin string, args ...string) (string, error) {
	t.Helper()
	resetCommand(t)
	SetServices(s)
	return execute(stdin, args...)
}

func execute(stdin string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := Execute()
	return buf.String(), err
}
