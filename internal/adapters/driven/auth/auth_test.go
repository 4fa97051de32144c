package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/graphrelay/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

const testTenant = "tid-1"

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// stubIdP is a fake identity provider and Graph /me endpoint.
type stubIdP struct {
	srv *httptest.Server

	devicePending  atomic.Bool
	omitIDToken    atomic.Bool
	rejectRefresh  atomic.Bool
	deviceCalls    atomic.Int32
	refreshCalls   atomic.Int32
	clientCalls    atomic.Int32
	meCalls        atomic.Int32
	lastRefreshTok atomic.Value
	// deviceError, when set, is the OAuth error the device_code grant returns.
	deviceError atomic.Value
	// omitExpiry drops expires_in from every token response.
	omitExpiry atomic.Bool
	// clientGate, when set, holds client_credentials responses until closed.
	clientGate atomic.Pointer[chan struct{}]
}

func newStubIdP(t *testing.T) *stubIdP {
	t.Helper()
	s := &stubIdP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+testTenant+"/oauth2/v2.0/devicecode", s.deviceCode)
	mux.HandleFunc("/"+testTenant+"/oauth2/v2.0/token", s.token)
	mux.HandleFunc("/v1.0/me", s.me)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubIdP) endpointCfg() DelegatedConfig {
	return DelegatedConfig{
		Endpoint:     microsoft.Endpoint(s.srv.URL, testTenant),
		TenantID:     testTenant,
		ClientID:     "client-1",
		Scopes:       []string{"User.Read", "Mail.Read"},
		GraphBaseURL: s.srv.URL + "/v1.0",
		Timeout:      5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *stubIdP) deviceCode(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("client_id") != "client-1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unauthorized_client", "error_description": "AADSTS700016: unknown application",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      "dc-1",
		"user_code":        "ABCD-EFGH",
		"verification_uri": "https://microsoft.com/devicelogin",
		"expires_in":       900,
		"interval":         1,
	})
}

func (s *stubIdP) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	switch r.PostForm.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:device_code":
		s.deviceCalls.Add(1)
		if code, _ := s.deviceError.Load().(string); code != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": "AADSTS: " + code})
			return
		}
		if s.devicePending.Load() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization_pending"})
			return
		}
		resp := map[string]any{
			"access_token":  "at-device",
			"token_type":    "Bearer",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"scope":         "User.Read Mail.Read",
		}
		if !s.omitIDToken.Load() {
			resp["id_token"] = testIDToken()
		}
		s.writeToken(w, resp)

	case "refresh_token":
		s.refreshCalls.Add(1)
		s.lastRefreshTok.Store(r.PostForm.Get("refresh_token"))
		if s.rejectRefresh.Load() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid_grant", "error_description": "AADSTS70008: expired",
			})
			return
		}
		s.writeToken(w, map[string]any{
			"access_token": "at-refreshed",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})

	case "client_credentials":
		s.clientCalls.Add(1)
		if r.PostForm.Get("client_secret") != "secret-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "invalid_client", "error_description": "AADSTS7000215: invalid client secret",
			})
			return
		}
		if gate := s.clientGate.Load(); gate != nil {
			<-*gate
		}
		s.writeToken(w, map[string]any{
			"access_token": "at-app",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *stubIdP) writeToken(w http.ResponseWriter, resp map[string]any) {
	if s.omitExpiry.Load() {
		delete(resp, "expires_in")
	}
	writeJSON(w, http.StatusOK, resp)
}

// failingStore wraps a store whose Save fails while failSave is set.
type failingStore struct {
	*file.Store
	failSave atomic.Bool
}

func (f *failingStore) Save(ctx context.Context, state *domain.SessionState) error {
	if f.failSave.Load() {
		return &domain.StoreError{Operation: "save", Path: f.Path(), Err: errors.New("disk full")}
	}
	return f.Store.Save(ctx, state)
}

func (s *stubIdP) me(w http.ResponseWriter, r *http.Request) {
	s.meCalls.Add(1)
	if r.Header.Get("Authorization") != "Bearer at-device" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": "oid-me", "userPrincipalName": "me@contoso.example"})
}

func testIDToken() string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid":                "oid-1",
		"tid":                testTenant,
		"preferred_username": "adele@contoso.example",
	})
	signed, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		panic(err)
	}
	return signed
}

func newFileStore(t *testing.T) *file.Store {
	t.Helper()
	store, err := file.NewStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	return store
}

func seedStore(t *testing.T, store *file.Store, tok domain.Token) {
	t.Helper()
	state := domain.NewSessionState()
	state.PutAccount(domain.Account{
		HomeAccountID: "oid-1." + testTenant,
		Username:      "adele@contoso.example",
		Tokens:        []domain.Token{tok},
	})
	require.NoError(t, store.Save(context.Background(), state))
}
