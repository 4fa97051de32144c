package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// identity is who a device login signed in.
type identity struct {
	HomeAccountID string
	Username      string
}

// identityFromIDToken reads the account identity from the id_token claims.
// The token was received directly from the token endpoint over TLS, so its
// signature is not checked.
func identityFromIDToken(raw string) (identity, bool) {
	if raw == "" {
		return identity{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		logger.Debug("auth: unreadable id_token: %v", err)
		return identity{}, false
	}

	oid, _ := claims["oid"].(string)
	tid, _ := claims["tid"].(string)
	if oid == "" || tid == "" {
		return identity{}, false
	}

	username, _ := claims["preferred_username"].(string)
	if username == "" {
		username, _ = claims["email"].(string)
	}
	return identity{HomeAccountID: oid + "." + tid, Username: username}, true
}

// resolveIdentity prefers the id_token and falls back to the Graph profile.
func resolveIdentity(ctx context.Context, client *http.Client, graphURL, tenantID, accessToken, idToken string) (identity, error) {
	if id, ok := identityFromIDToken(idToken); ok {
		return id, nil
	}

	info, err := microsoft.GetUserInfo(ctx, client, graphURL, accessToken)
	if err != nil {
		return identity{}, fmt.Errorf("resolve signed-in user: %w", err)
	}

	homeID := info.ID
	if tenantID != "" {
		homeID += "." + tenantID
	}
	return identity{HomeAccountID: homeID, Username: info.GetUserPrincipal()}, nil
}
