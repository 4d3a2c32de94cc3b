// YouTube Data API implementation of [Enricher]
//
// YouTube exposes no quota introspection endpoint, so availability is
// inferred: a 403 quotaExceeded response marks the provider exhausted until
// the daily reset (midnight Pacific, approximated as 07:00 UTC).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/shared"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

// YouTubeProvider implements the Enricher interface against the YouTube
// Data API using an API key.
type YouTubeProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewYouTubeProvider creates a YouTube enrichment provider. An empty baseURL
// selects the hosted API.
func NewYouTubeProvider(apiKey, baseURL string, httpClient *http.Client) *YouTubeProvider {
	if baseURL == "" {
		baseURL = defaultYouTubeBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &YouTubeProvider{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

// Name returns the provider identifier.
func (y *YouTubeProvider) Name() string {
	return "youtube"
}

// Search looks up the best-matching video for a track and returns the raw
// search payload.
func (y *YouTubeProvider) Search(ctx context.Context, artist, title string) (string, error) {
	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"maxResults": {"1"},
		"q":          {strings.TrimSpace(artist + " " + title)},
		"key":        {y.apiKey},
	}

	body, err := y.get(ctx, "/search", params)
	if err != nil {
		return "", err
	}
	return body, nil
}

// Probe issues a minimal-cost videos lookup (1 quota unit) to classify the
// provider as available or exhausted.
func (y *YouTubeProvider) Probe(ctx context.Context) (*models.QuotaStatus, error) {
	params := url.Values{
		"part": {"id"},
		"id":   {"dQw4w9WgXcQ"},
		"key":  {y.apiKey},
	}

	_, err := y.get(ctx, "/videos", params)
	if err != nil {
		if resetAt, exhausted := quotaExhausted(err); exhausted {
			return &models.QuotaStatus{
				Provider:  y.Name(),
				Available: false,
				Remaining: 0,
				ResetAt:   &resetAt,
				Message:   "daily quota exhausted",
			}, nil
		}
		return nil, err
	}

	// The API reports no remaining-unit count, so a successful probe only
	// proves the quota is not exhausted.
	return &models.QuotaStatus{Provider: y.Name(), Available: true, Remaining: -1}, nil
}

func (y *YouTubeProvider) get(ctx context.Context, endpoint string, params url.Values) (string, error) {
	apiURL := fmt.Sprintf("%s%s?%s", y.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden && bytesContainQuotaReason(body):
		return "", fmt.Errorf("%w: youtube daily quota", shared.ErrQuotaExceeded)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: youtube rejected API key", shared.ErrNotAuthorized)
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: youtube endpoint", shared.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("youtube API error: status %d", resp.StatusCode)
	}

	return string(body), nil
}

// bytesContainQuotaReason checks the structured error body for the
// quotaExceeded reason code.
func bytesContainQuotaReason(body []byte) bool {
	var apiErr struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return strings.Contains(string(body), "quotaExceeded")
	}
	for _, e := range apiErr.Error.Errors {
		if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
			return true
		}
	}
	return false
}

// quotaExhausted reports whether err is a quota error and when the quota
// resets if so.
func quotaExhausted(err error) (time.Time, bool) {
	if !errors.Is(err, shared.ErrQuotaExceeded) {
		return time.Time{}, false
	}
	return nextYouTubeReset(time.Now().UTC()), true
}

// nextYouTubeReset approximates the daily quota reset as 07:00 UTC.
func nextYouTubeReset(now time.Time) time.Time {
	reset := time.Date(now.Year(), now.Month(), now.Day(), 7, 0, 0, 0, time.UTC)
	if !reset.After(now) {
		reset = reset.Add(24 * time.Hour)
	}
	return reset
}
