// package services defines interfaces and clients for the third-party
// HTTP APIs the core talks to
//
// Spinitron-style playlist source, Mixcloud publishing platform,
// YouTube and Discogs enrichment providers
package services

import (
	"context"

	"github.com/desertthunder/airwave/internal/models"
)

// Enricher is a metadata enrichment provider subject to a request quota.
type Enricher interface {
	// Name returns the provider identifier (e.g., "youtube", "discogs").
	Name() string

	// Search looks up metadata for a track and returns the provider's raw
	// payload as JSON. Results are cached upstream; implementations should
	// not cache internally.
	Search(ctx context.Context, artist, title string) (string, error)

	// Probe performs a lightweight usage check and classifies the provider
	// as available or exhausted. Providers without a quota introspection
	// surface infer availability from response codes and headers.
	Probe(ctx context.Context) (*models.QuotaStatus, error)
}

// PlaylistSource reports what a station is currently and recently playing.
type PlaylistSource interface {
	// Current returns the latest spin for a station, or nil when the
	// station has no spins at all.
	Current(ctx context.Context, station string) (*Spin, error)

	// Recent returns spins within the past `hours` hours, newest first.
	Recent(ctx context.Context, station string, hours int) ([]Spin, error)
}
