package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// Microsoft identity platform constants.
const (
	// DefaultAuthority is the public cloud identity host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// ApplicationScope grants every consented application permission.
	ApplicationScope = "https://graph.microsoft.com/.default"

	// OfflineAccessScope is required for refresh tokens.
	OfflineAccessScope = "offline_access"
)

// defaultDelegatedScopes are requested at device login.
// Includes all scopes upfront to avoid re-authorization.
var defaultDelegatedScopes = []string{
	"openid",
	"profile",
	"User.Read",           // User profile
	"Mail.Read",           // Outlook mail
	"Mail.Send",           // Send as the user
	"Calendars.ReadWrite", // Calendar events
	"Chat.ReadWrite",      // Teams chats
	"ChatMessage.Send",    // Teams chat messages
}

// ApplicationScopes returns the fixed client-credentials scope set.
func ApplicationScopes() []string {
	return []string{ApplicationScope}
}

// DelegatedScopes returns the delegated scope set: configured scopes, or the
// defaults when none are configured, always including offline_access.
func DelegatedScopes(configured []string) []string {
	scopes := slices.Clone(configured)
	if len(scopes) == 0 {
		scopes = slices.Clone(defaultDelegatedScopes)
	}
	if !slices.ContainsFunc(scopes, func(s string) bool {
		return strings.EqualFold(s, OfflineAccessScope)
	}) {
		scopes = append(scopes, OfflineAccessScope)
	}
	return scopes
}

// Endpoint returns the tenant's OAuth2 endpoints.
func Endpoint(authority, tenant string) oauth2.Endpoint {
	if authority == "" {
		authority = DefaultAuthority
	}
	base := strings.TrimRight(authority, "/") + "/" + url.PathEscape(tenant) + "/oauth2/v2.0"
	return oauth2.Endpoint{
		AuthURL:       base + "/authorize",
		DeviceAuthURL: base + "/devicecode",
		TokenURL:      base + "/token",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// tokenResponse is the token endpoint's success or error body.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// RefreshGrant exchanges a refresh token for a new token set.
type RefreshGrant struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
	// Now is the clock used to compute expiry. Defaults to time.Now.
	Now func() time.Time
}

// Refresh performs the refresh_token grant. The scope parameter is sent
// explicitly because the v2.0 endpoint issues tokens per resource.
// Microsoft may rotate the refresh token; the old one is kept when it does not.
func (g *RefreshGrant) Refresh(ctx context.Context, refreshToken string) (domain.Token, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", g.ClientID)
	if g.ClientSecret != "" {
		data.Set("client_secret", g.ClientSecret)
	}
	data.Set("refresh_token", refreshToken)
	data.Set("scope", strings.Join(g.Scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Err: fmt.Errorf("token refresh request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Err: fmt.Errorf("read token response: %w", err)}
	}

	var tokenResp tokenResponse
	decodeErr := json.Unmarshal(body, &tokenResp)

	if resp.StatusCode != http.StatusOK {
		authErr := &domain.AuthError{
			Op:          "refresh",
			Code:        tokenResp.Error,
			Description: tokenResp.ErrorDescription,
		}
		if decodeErr != nil || (authErr.Code == "" && authErr.Description == "") {
			authErr.Err = fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
		}
		return domain.Token{}, authErr
	}
	if decodeErr != nil {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Err: fmt.Errorf("decode token response: %w", decodeErr)}
	}
	if tokenResp.AccessToken == "" {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Description: "token response carried no access token"}
	}
	if tokenResp.ExpiresIn <= 0 {
		return domain.Token{}, &domain.AuthError{Op: "refresh", Description: "token response carried no expires_in"}
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	newRefreshToken := tokenResp.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	scopes := g.Scopes
	if tokenResp.Scope != "" {
		scopes = MergeScopes(strings.Fields(tokenResp.Scope), g.Scopes)
	}

	return domain.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: newRefreshToken,
		ExpiresAt:    now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
		Scopes:       scopes,
	}, nil
}

// MergeScopes returns granted plus any requested scope the provider does not
// echo back. Microsoft omits openid, profile and offline_access from the
// granted list even though they were honoured.
func MergeScopes(granted, requested []string) []string {
	out := slices.Clone(granted)
	for _, s := range requested {
		if !slices.ContainsFunc(out, func(have string) bool { return strings.EqualFold(have, s) }) {
			out = append(out, s)
		}
	}
	return out
}

// SetupHint returns guidance for setting up the app registration.
func SetupHint() string {
	return "Create an app registration at portal.azure.com > App registrations, " +
		"enable 'Allow public client flows' for device login and add a client secret for application mode"
}
