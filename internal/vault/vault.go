// package vault manages the OAuth token lifecycle for publishing platform
// connections.
//
// One connection exists per application user. The authorization flow is a
// two-phase protocol: Begin issues a persisted single-use state with a short
// TTL, Complete validates it in a separate request with no shared in-memory
// state between the phases, so the two may be handled by different process
// instances.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/repositories"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/services"
	"github.com/desertthunder/airwave/internal/shared"
	"golang.org/x/oauth2"
)

const (
	// StateTTL bounds how long a pending authorization may wait for its callback.
	StateTTL = 10 * time.Minute

	// refreshMargin is the safety window before expiry inside which a token
	// is never handed to a caller without a refresh attempt first.
	refreshMargin = 60 * time.Second
)

// Vault coordinates the publishing platform client with the persisted
// connection and state records.
type Vault struct {
	platform    *services.MixcloudService
	connections *repositories.ConnectionRepository
	states      *repositories.StateRepository
	policy      retry.Policy
	timeout     time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// Options tunes vault construction; zero fields take defaults.
type Options struct {
	Policy  retry.Policy
	Timeout time.Duration
	Logger  *log.Logger
	Now     func() time.Time
}

// New creates a Vault over the given platform client and repositories.
func New(platform *services.MixcloudService, connections *repositories.ConnectionRepository, states *repositories.StateRepository, opts Options) *Vault {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Vault{
		platform:    platform,
		connections: connections,
		states:      states,
		policy:      opts.Policy,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// BeginAuthorization issues a single-use CSRF state and returns the provider
// authorization URL embedding it. The caller (the HTTP layer) also carries
// the state in a short-lived http-only cookie.
func (v *Vault) BeginAuthorization() (authURL, state string, err error) {
	state = shared.GenerateID()
	if _, err := v.states.Create(state, StateTTL); err != nil {
		return "", "", err
	}

	return v.platform.AuthCodeURL(state), state, nil
}

// CompleteAuthorization validates the callback state, exchanges the code for
// a token pair, and persists the connection for userID.
//
// The state is consumed regardless of exchange outcome; a state that was
// never issued, already consumed, or expired fails with
// [shared.ErrCsrfMismatch] and creates no connection.
func (v *Vault) CompleteAuthorization(ctx context.Context, userID, code, state string) (*models.OAuthConnection, error) {
	live, err := v.states.Consume(state)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("%w: authorization state", shared.ErrCsrfMismatch)
	}

	token, err := retry.Do(ctx, v.policy, func(ctx context.Context) (*oauth2.Token, error) {
		return retry.RaceWithTimeout(ctx, v.timeout, "token exchange", func(ctx context.Context) (*oauth2.Token, error) {
			return v.platform.Exchange(ctx, code)
		})
	})
	if err != nil {
		return nil, err
	}

	conn := connectionFromToken(userID, token)
	if err := v.connections.Upsert(conn); err != nil {
		return nil, err
	}

	v.logger.Info("publishing platform connected", "user", userID, "expires_at", conn.ExpiresAt)
	return conn, nil
}

// ValidAccessToken returns an access token guaranteed to live longer than
// the safety margin, refreshing first when necessary.
//
// A terminal refresh failure (revoked or invalid refresh token) deletes the
// connection and returns [shared.ErrReauthRequired] so the next status check
// reflects reality. Two near-simultaneous callers may both refresh; the
// provider tolerates this and whichever response persists last wins.
func (v *Vault) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	conn, err := v.connections.Get(userID)
	if err != nil {
		return "", err
	}

	if !conn.ExpiresWithin(refreshMargin, v.now()) {
		return conn.AccessToken, nil
	}

	token, err := retry.Do(ctx, v.policy, func(ctx context.Context) (*oauth2.Token, error) {
		return retry.RaceWithTimeout(ctx, v.timeout, "token refresh", func(ctx context.Context) (*oauth2.Token, error) {
			return v.platform.Refresh(ctx, conn.RefreshToken)
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrReauthRequired) || errors.Is(err, shared.ErrNotAuthorized) {
			if delErr := v.connections.Delete(userID); delErr != nil {
				v.logger.Error("failed to delete stale connection", "user", userID, "err", delErr)
			}
			return "", fmt.Errorf("%w: refresh token rejected", shared.ErrReauthRequired)
		}
		return "", err
	}

	refreshed := connectionFromToken(userID, token)
	if refreshed.RefreshToken == "" {
		// Providers may omit the refresh token on refresh responses.
		refreshed.RefreshToken = conn.RefreshToken
	}

	if err := v.connections.Upsert(refreshed); err != nil {
		return "", err
	}

	return refreshed.AccessToken, nil
}

// Disconnect revokes the token at the provider (best-effort) and deletes the
// local connection. Reports whether a connection existed.
func (v *Vault) Disconnect(ctx context.Context, userID string) (bool, error) {
	conn, err := v.connections.Get(userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotConnected) {
			return false, nil
		}
		return false, err
	}

	revokeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.platform.Revoke(revokeCtx, conn.AccessToken); err != nil {
		// Failure to reach the provider never blocks local deletion.
		v.logger.Warn("token revocation failed", "user", userID, "err", err)
	}

	if err := v.connections.Delete(userID); err != nil {
		return false, err
	}

	v.logger.Info("publishing platform disconnected", "user", userID)
	return true, nil
}

// Status reports whether a usable connection exists for userID without
// forcing a refresh: an unexpired token or any refresh token counts.
func (v *Vault) Status(userID string) (bool, error) {
	conn, err := v.connections.Get(userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotConnected) {
			return false, nil
		}
		return false, err
	}

	if !conn.ExpiresWithin(refreshMargin, v.now()) {
		return true, nil
	}
	return conn.RefreshToken != "", nil
}

// PurgeExpiredStates drops stale authorization attempts.
func (v *Vault) PurgeExpiredStates() (int, error) {
	return v.states.PurgeExpired()
}

func connectionFromToken(userID string, token *oauth2.Token) *models.OAuthConnection {
	scope, _ := token.Extra("scope").(string)
	return &models.OAuthConnection{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        scope,
	}
}
