package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/calendar"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/outlook"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

type doCall struct {
	mode   domain.AuthMode
	method string
	path   string
	body   any
}

type fakeGraph struct {
	result *domain.RelayResult
	err    error

	lastDo      doCall
	lastUser    string
	lastTop     int
	lastMail    *outlook.Mail
	lastMeeting *calendar.Meeting
	lastChat    string
	lastMessage *teams.ChatMessage
	lastStart   time.Time
	lastEnd     time.Time
}

func (f *fakeGraph) reply() (*domain.RelayResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RelayResult{StatusCode: http.StatusOK, Body: json.RawMessage(`{"ok":true}`)}, nil
}

func (f *fakeGraph) Do(_ context.Context, mode domain.AuthMode, method, path string, body any) (*domain.RelayResult, error) {
	f.lastDo = doCall{mode: mode, method: method, path: path, body: body}
	return f.reply()
}

func (f *fakeGraph) Me(context.Context) (*domain.RelayResult, error)        { return f.reply() }
func (f *fakeGraph) ListChats(context.Context) (*domain.RelayResult, error) { return f.reply() }

func (f *fakeGraph) SendChatMessage(_ context.Context, chatID string, msg *teams.ChatMessage) (*domain.RelayResult, error) {
	f.lastChat, f.lastMessage = chatID, msg
	return f.reply()
}

func (f *fakeGraph) SendMail(_ context.Context, user string, mail *outlook.Mail) (*domain.RelayResult, error) {
	f.lastUser, f.lastMail = user, mail
	return f.reply()
}

func (f *fakeGraph) ListMessages(_ context.Context, user string, top int) (*domain.RelayResult, error) {
	f.lastUser, f.lastTop = user, top
	return f.reply()
}

func (f *fakeGraph) CreateMeeting(_ context.Context, user string, meeting *calendar.Meeting) (*domain.RelayResult, error) {
	f.lastUser, f.lastMeeting = user, meeting
	return f.reply()
}

func (f *fakeGraph) ListEvents(_ context.Context, user string, start, end time.Time) (*domain.RelayResult, error) {
	f.lastUser, f.lastStart, f.lastEnd = user, start, end
	return f.reply()
}

func (f *fakeGraph) ListUsers(_ context.Context, top int) (*domain.RelayResult, error) {
	f.lastTop = top
	return f.reply()
}

type fakeSession struct {
	challenge domain.DeviceChallenge
	startErr  error
	pending   *domain.DeviceChallenge
	status    driving.SessionStatus
	logoutErr error
	logouts   int
}

func (f *fakeSession) StartLogin(context.Context) (domain.DeviceChallenge, error) {
	return f.challenge, f.startErr
}

func (f *fakeSession) Login(context.Context, func(domain.DeviceChallenge)) (*domain.Account, error) {
	return nil, nil
}

func (f *fakeSession) PendingLogin() (domain.DeviceChallenge, bool) {
	if f.pending == nil {
		return domain.DeviceChallenge{}, false
	}
	return *f.pending, true
}

func (f *fakeSession) Status() driving.SessionStatus { return f.status }

func (f *fakeSession) Logout(context.Context) error {
	f.logouts++
	return f.logoutErr
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	m.Run()
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name:         "no session",
			err:          &domain.SessionError{Err: domain.ErrNoDelegatedSession},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `"error":"authentication_required"`,
		},
		{
			name:         "identity provider rejection",
			err:          &domain.AuthError{Op: "client_credentials", Code: "invalid_client"},
			expectedCode: http.StatusBadGateway,
			expectedBody: `"code":"invalid_client"`,
		},
		{
			name:         "remote error verbatim",
			err:          &domain.RemoteAPIError{StatusCode: http.StatusForbidden, Body: `{"error":{"code":"Forbidden"}}`},
			expectedCode: http.StatusForbidden,
			expectedBody: `{"error":{"code":"Forbidden"}}`,
		},
		{
			name:         "store failure",
			err:          &domain.StoreError{Operation: "load", Path: "/x", Err: io.ErrUnexpectedEOF},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `"error":"session_store_error"`,
		},
		{
			name:         "invalid relay url",
			err:          domain.ErrInvalidRelayURL,
			expectedCode: http.StatusBadRequest,
			expectedBody: `"error":"invalid_request"`,
		},
		{
			name:         "timeout",
			err:          context.DeadlineExceeded,
			expectedCode: http.StatusGatewayTimeout,
			expectedBody: `"error":"timeout"`,
		},
		{
			name:         "unexpected",
			err:          io.ErrClosedPipe,
			expectedCode: http.StatusInternalServerError,
			expectedBody: `"error":"internal_error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&fakeGraph{err: tt.err}, &fakeSession{})

			rec := serve(t, h, http.MethodGet, "/me", "")

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
		})
	}
}

func TestRouter_RemoteErrorBodyUnchanged(t *testing.T) {
	const body = `{"error":{"code":"InvalidAuthenticationToken","message":"Access token has expired."}}`
	h := NewRouter(&fakeGraph{err: &domain.RemoteAPIError{StatusCode: 401, Body: body}}, &fakeSession{})

	rec := serve(t, h, http.MethodGet, "/chats", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRouter_SendMail(t *testing.T) {
	graph := &fakeGraph{result: &domain.RelayResult{StatusCode: http.StatusAccepted, Accepted: true}}
	h := NewRouter(graph, &fakeSession{})

	rec := serve(t, h, http.MethodPost, "/users/a@contoso.example/sendMail",
		`{"subject":"Hi","body":"<b>x</b>","to":["b@contoso.example"],"cc":["c@contoso.example"],"html":true,"save_to_sent_items":false}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "a@contoso.example", graph.lastUser)
	require.NotNil(t, graph.lastMail)
	assert.Equal(t, "HTML", graph.lastMail.Message.Body.ContentType)
	assert.Len(t, graph.lastMail.Message.CcRecipients, 1)
	require.NotNil(t, graph.lastMail.SaveCopy)
	assert.False(t, *graph.lastMail.SaveCopy)
}

func TestRouter_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "missing body", method: http.MethodPost, path: "/users/u/sendMail"},
		{name: "unknown field", method: http.MethodPost, path: "/users/u/sendMail", body: `{"subject":"x","to":["a@b"],"bogus":1}`},
		{name: "no recipients", method: http.MethodPost, path: "/users/u/sendMail", body: `{"subject":"x"}`},
		{name: "empty chat message", method: http.MethodPost, path: "/chats/19:a/messages", body: `{"content":""}`},
		{name: "meeting ends before start", method: http.MethodPost, path: "/users/u/events",
			body: `{"subject":"x","start":"2026-05-04T10:00:00Z","end":"2026-05-04T09:00:00Z"}`},
		{name: "bad top", method: http.MethodGet, path: "/users?top=many"},
		{name: "missing range", method: http.MethodGet, path: "/users/u/events"},
		{name: "unknown mode", method: http.MethodGet, path: "/graph/impersonate/me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&fakeGraph{}, &fakeSession{})

			rec := serve(t, h, tt.method, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid_request")
		})
	}
}

func TestRouter_CreateMeetingAndEvents(t *testing.T) {
	graph := &fakeGraph{result: &domain.RelayResult{StatusCode: http.StatusCreated, Body: json.RawMessage(`{"id":"ev-1"}`)}}
	h := NewRouter(graph, &fakeSession{})

	rec := serve(t, h, http.MethodPost, "/users/u1/events",
		`{"subject":"Sync","start":"2026-05-04T10:00:00Z","end":"2026-05-04T11:00:00Z","location":"Room 4","attendees":["a@b"],"online":true}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"ev-1"}`, rec.Body.String())
	require.NotNil(t, graph.lastMeeting)
	assert.Equal(t, "Room 4", graph.lastMeeting.Location.DisplayName)
	assert.NotNil(t, graph.lastMeeting.IsOnlineMeeting)

	rec = serve(t, h, http.MethodGet, "/users/u1/events?start=2026-05-04T00:00:00Z&end=2026-05-05T00:00:00Z", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), graph.lastEnd.UTC())
}

func TestRouter_Passthrough(t *testing.T) {
	graph := &fakeGraph{}
	h := NewRouter(graph, &fakeSession{})

	rec := serve(t, h, http.MethodPatch, "/graph/user/me/events/ev-1?$select=id", `{"subject":"moved"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AuthModeDelegated, graph.lastDo.mode)
	assert.Equal(t, http.MethodPatch, graph.lastDo.method)
	assert.Equal(t, "me/events/ev-1?$select=id", graph.lastDo.path)
	assert.Equal(t, json.RawMessage(`{"subject":"moved"}`), graph.lastDo.body)

	serve(t, h, http.MethodGet, "/graph/application/users", "")
	assert.Equal(t, domain.AuthModeApplication, graph.lastDo.mode)
	assert.Nil(t, graph.lastDo.body)
}

func TestRouter_DeviceLogin(t *testing.T) {
	session := &fakeSession{challenge: domain.DeviceChallenge{UserCode: "CODE-1", VerificationURI: "https://microsoft.com/devicelogin"}}
	h := NewRouter(&fakeGraph{}, session)

	rec := serve(t, h, http.MethodPost, "/auth/device-login", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_code":"CODE-1"`)

	rec = serve(t, h, http.MethodGet, "/auth/device-login", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session.pending = &session.challenge
	rec = serve(t, h, http.MethodGet, "/auth/device-login", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	session.startErr = domain.ErrDeviceLoginInProgress
	rec = serve(t, h, http.MethodPost, "/auth/device-login", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"challenge"`)
}

func TestRouter_StatusAndLogout(t *testing.T) {
	session := &fakeSession{status: driving.SessionStatus{SignedIn: true, Username: "adele@contoso.example"}}
	h := NewRouter(&fakeGraph{}, session)

	rec := serve(t, h, http.MethodGet, "/auth/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signed_in":true`)
	assert.NotContains(t, rec.Body.String(), "token\":")

	rec = serve(t, h, http.MethodDelete, "/auth/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, session.logouts)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := NewRouter(&fakeGraph{}, &fakeSession{})

	rec := serve(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
