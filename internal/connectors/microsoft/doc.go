// Package microsoft provides the Microsoft identity platform and Microsoft Graph
// plumbing used by graphrelay.
//
// This package provides:
//   - Identity platform endpoints and the scope sets for each auth mode
//   - The refresh-token grant used for silent delegated renewal
//   - The Graph relay that attaches bearer tokens to outbound calls
//   - Rate limiting for Microsoft Graph API requests
//   - Error classification for Microsoft Graph API responses
//
// # Identity Endpoints
//
// Endpoints are tenant specific:
//   - Device code: {authority}/{tenant}/oauth2/v2.0/devicecode
//   - Token:       {authority}/{tenant}/oauth2/v2.0/token
//
// The "offline_access" scope is required for refresh tokens and is always
// part of the delegated scope set.
//
// # Application Scope
//
// Client-credentials tokens are requested for "https://graph.microsoft.com/.default",
// which grants every application permission consented for the app registration.
//
// # Rate Limits
//
// Microsoft Graph allows approximately 10,000 requests per 10 minutes per app.
// The relay paces calls per Graph service and honours Retry-After on 429
// responses, but never retries a call itself.
package microsoft
