// Spinitron-style playlist source implementation of [PlaylistSource]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/airwave/internal/shared"
)

const defaultSpinBaseURL = "https://spinitron.com/api"

// Spin is one playlist entry reported by the source.
type Spin struct {
	ID      int       `json:"id"`
	Artist  string    `json:"artist"`
	Song    string    `json:"song"`
	Start   time.Time `json:"start"`
	Show    string    `json:"show,omitempty"`
	Raw     string    `json:"-"`
	Station string    `json:"-"`
}

type spinEntry struct {
	ID     int    `json:"id"`
	Artist string `json:"artist"`
	Song   string `json:"song"`
	Start  string `json:"start"`
	Show   string `json:"show"`
}

type spinPage struct {
	Items []json.RawMessage `json:"items"`
}

// SpinSource is an HTTP client for the playlist source API.
type SpinSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSpinSource creates a playlist source client. An empty baseURL selects
// the hosted service; httpClient defaults to [http.DefaultClient].
func NewSpinSource(baseURL, apiKey string, httpClient *http.Client) *SpinSource {
	if baseURL == "" {
		baseURL = defaultSpinBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &SpinSource{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

// Current returns the latest spin for a station.
func (s *SpinSource) Current(ctx context.Context, station string) (*Spin, error) {
	spins, err := s.fetchSpins(ctx, station, url.Values{"count": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(spins) == 0 {
		return nil, nil
	}
	return &spins[0], nil
}

// Recent returns spins started within the past `hours` hours, newest first.
func (s *SpinSource) Recent(ctx context.Context, station string, hours int) ([]Spin, error) {
	if hours <= 0 {
		hours = 1
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	params := url.Values{
		"count": {"100"},
		"start": {since.UTC().Format(time.RFC3339)},
	}

	return s.fetchSpins(ctx, station, params)
}

// fetchSpins performs an authenticated request against the spins endpoint
// and decodes each entry, keeping the provider payload verbatim in Raw.
func (s *SpinSource) fetchSpins(ctx context.Context, station string, params url.Values) ([]Spin, error) {
	if station == "" {
		return nil, fmt.Errorf("%w: station is required", shared.ErrMissingArgument)
	}

	params.Set("station", station)
	apiURL := fmt.Sprintf("%s/spins?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("playlist source request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: station %s", shared.ErrNotFound, station)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: playlist source rejected credentials", shared.ErrNotAuthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("playlist source error: status %d", resp.StatusCode)
	}

	var page spinPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode spins: %w", err)
	}

	spins := make([]Spin, 0, len(page.Items))
	for _, raw := range page.Items {
		var entry spinEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode spin entry: %w", err)
		}

		start, err := time.Parse(time.RFC3339, entry.Start)
		if err != nil {
			return nil, fmt.Errorf("failed to parse spin start %q: %w", entry.Start, err)
		}

		spins = append(spins, Spin{
			ID:      entry.ID,
			Artist:  entry.Artist,
			Song:    entry.Song,
			Start:   start,
			Show:    entry.Show,
			Raw:     string(raw),
			Station: station,
		})
	}

	return spins, nil
}
