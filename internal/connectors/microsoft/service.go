package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultGraphBaseURL is the Microsoft Graph API base URL.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// UserInfo contains the user's basic profile information from Microsoft Graph.
type UserInfo struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// GetUserInfo fetches the signed-in user's profile using an access token.
// An empty baseURL means DefaultGraphBaseURL; a nil client uses a 30s timeout.
func GetUserInfo(ctx context.Context, client *http.Client, baseURL, accessToken string) (*UserInfo, error) {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	url := strings.TrimRight(baseURL, "/") + "/me?$select=id,displayName,mail,userPrincipalName"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed with status %d: %w",
			resp.StatusCode, WrapError(resp.StatusCode))
	}

	var userInfo UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}

	return &userInfo, nil
}

// GetUserPrincipal returns the user's principal name.
// Falls back to mail if userPrincipalName is not set.
func (u *UserInfo) GetUserPrincipal() string {
	if u.UserPrincipalName != "" {
		return u.UserPrincipalName
	}
	return u.Mail
}
