// Discogs API implementation of [Enricher]
//
// Discogs reports usage in X-Discogs-Ratelimit-* response headers on every
// call, so the probe is a cheap identity request plus header inspection.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/shared"
)

const defaultDiscogsBaseURL = "https://api.discogs.com"

// DiscogsProvider implements the Enricher interface against the Discogs
// database search API using a personal access token.
type DiscogsProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDiscogsProvider creates a Discogs enrichment provider. An empty baseURL
// selects the hosted API.
func NewDiscogsProvider(token, baseURL string, httpClient *http.Client) *DiscogsProvider {
	if baseURL == "" {
		baseURL = defaultDiscogsBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &DiscogsProvider{baseURL: baseURL, token: token, httpClient: httpClient}
}

// Name returns the provider identifier.
func (d *DiscogsProvider) Name() string {
	return "discogs"
}

// Search looks up a release by artist and track title and returns the raw
// search payload.
func (d *DiscogsProvider) Search(ctx context.Context, artist, title string) (string, error) {
	params := url.Values{
		"artist":   {artist},
		"track":    {title},
		"type":     {"release"},
		"per_page": {"3"},
	}

	body, _, err := d.get(ctx, "/database/search", params)
	return body, err
}

// Probe inspects the rate limit headers on an identity request.
func (d *DiscogsProvider) Probe(ctx context.Context) (*models.QuotaStatus, error) {
	_, headers, err := d.get(ctx, "/oauth/identity", nil)
	if err != nil {
		if remaining, resetAt, ok := rateLimitedFromErr(err); ok {
			return &models.QuotaStatus{
				Provider:  d.Name(),
				Available: false,
				Remaining: remaining,
				ResetAt:   &resetAt,
				Message:   "rate limit window exhausted",
			}, nil
		}
		return nil, err
	}

	remaining := headerInt(headers, "X-Discogs-Ratelimit-Remaining", -1)
	return &models.QuotaStatus{
		Provider:  d.Name(),
		Available: remaining != 0,
		Remaining: remaining,
	}, nil
}

func (d *DiscogsProvider) get(ctx context.Context, endpoint string, params url.Values) (string, http.Header, error) {
	apiURL := d.baseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Discogs token="+d.token)
	req.Header.Set("User-Agent", "airwave/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("discogs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", resp.Header, fmt.Errorf("%w: discogs window", shared.ErrQuotaExceeded)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", resp.Header, fmt.Errorf("%w: discogs rejected token", shared.ErrNotAuthorized)
	case resp.StatusCode == http.StatusNotFound:
		return "", resp.Header, fmt.Errorf("%w: discogs resource", shared.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", resp.Header, fmt.Errorf("discogs API error: status %d", resp.StatusCode)
	}

	return string(body), resp.Header, nil
}

// rateLimitedFromErr maps a quota error to a remaining count of zero and a
// reset one minute out, which is the documented Discogs window.
func rateLimitedFromErr(err error) (int, time.Time, bool) {
	if !errors.Is(err, shared.ErrQuotaExceeded) {
		return 0, time.Time{}, false
	}
	return 0, time.Now().Add(time.Minute), true
}

func headerInt(h http.Header, key string, fallback int) int {
	v := h.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
