// Mixcloud publishing platform client
//
// Only the client side of the authorization-code flow lives here: the
// oauth2 endpoints, token revocation, and a profile probe. Token lifecycle
// decisions belong to internal/vault.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/airwave/internal/shared"
	"golang.org/x/oauth2"
)

const (
	defaultMixcloudAuthURL  = "https://www.mixcloud.com/oauth/authorize"
	defaultMixcloudTokenURL = "https://www.mixcloud.com/oauth/access_token"
	defaultMixcloudBaseURL  = "https://api.mixcloud.com"
)

// MixcloudProfile is the authenticated user's profile on the platform.
type MixcloudProfile struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// MixcloudService holds the publishing platform's OAuth configuration and
// endpoints. The zero endpoints point at the hosted service; tests override
// them via NewMixcloudServiceWithEndpoints.
type MixcloudService struct {
	config     *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

// NewMixcloudService creates a publishing platform client with the given
// OAuth credentials and redirect URI.
func NewMixcloudService(clientID, clientSecret, redirectURI string) (*MixcloudService, error) {
	return NewMixcloudServiceWithEndpoints(clientID, clientSecret, redirectURI, defaultMixcloudAuthURL, defaultMixcloudTokenURL, defaultMixcloudBaseURL, nil)
}

// NewMixcloudServiceWithEndpoints creates a client against explicit endpoint
// URLs, primarily for tests that stand up fake providers.
func NewMixcloudServiceWithEndpoints(clientID, clientSecret, redirectURI, authURL, tokenURL, baseURL string, httpClient *http.Client) (*MixcloudService, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: mixcloud client_id and client_secret", shared.ErrMissingCredentials)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}

	return &MixcloudService{config: config, baseURL: baseURL, httpClient: httpClient}, nil
}

// AuthCodeURL returns the provider authorization URL embedding state.
func (m *MixcloudService) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token pair.
func (m *MixcloudService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", classifyOAuthErr(err))
	}
	return token, nil
}

// Refresh obtains a fresh token pair from a refresh token.
//
// A provider-reported invalid_grant means the refresh token was revoked and
// maps to [shared.ErrReauthRequired]; network failures stay transient.
func (m *MixcloudService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", classifyOAuthErr(err))
	}
	return token, nil
}

// Revoke invalidates the token at the provider. Callers treat failures as
// best-effort: local deletion proceeds regardless.
func (m *MixcloudService) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}, "client_id": {m.config.ClientID}}
	revokeURL := m.baseURL + "/oauth/revoke"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("revoke failed: status %d", resp.StatusCode)
	}
	return nil
}

// Profile retrieves the authenticated user's profile with the given token.
func (m *MixcloudService) Profile(ctx context.Context, accessToken string) (*MixcloudProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/me/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: profile fetch rejected", shared.ErrNotAuthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mixcloud API error: status %d", resp.StatusCode)
	}

	var profile MixcloudProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// classifyOAuthErr maps provider token endpoint errors to the shared
// taxonomy. invalid_grant and 4xx token responses are terminal.
func classifyOAuthErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return err
	}

	if retrieveErr.ErrorCode == "invalid_grant" || strings.Contains(string(retrieveErr.Body), "invalid_grant") {
		return fmt.Errorf("%w: %v", shared.ErrReauthRequired, err)
	}
	if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthorized, err)
	}
	return err
}
