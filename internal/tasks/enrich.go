package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/quota"
	"github.com/desertthunder/airwave/internal/repositories"
	"github.com/desertthunder/airwave/internal/shared"
	"golang.org/x/time/rate"
)

// ProviderFailure records why a provider contributed nothing to an
// enrichment pass.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// EnrichResult is the merged outcome of querying every configured provider.
// Partial is true when at least one provider was skipped or failed; the
// operation as a whole never fails because one provider is unavailable.
type EnrichResult struct {
	TrackID     string                    `json:"track_id"`
	PerProvider []models.EnrichmentResult `json:"per_provider"`
	Failures    []ProviderFailure         `json:"failures,omitempty"`
	Partial     bool                      `json:"partial"`
}

// Dispatcher fans a track out to every registered enrichment provider,
// consulting the quota registry and the result cache first.
type Dispatcher struct {
	registry *quota.Registry
	cache    *repositories.EnrichmentRepository
	ttl      time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger
	now      func() time.Time
}

// DispatcherOptions tunes dispatcher construction; zero fields take defaults.
type DispatcherOptions struct {
	CacheTTL  time.Duration
	RateLimit float64 // Outbound requests per second across all providers (default 5)
	Logger    *log.Logger
	Now       func() time.Time
}

// NewDispatcher creates a Dispatcher over the given registry and cache.
func NewDispatcher(registry *quota.Registry, cache *repositories.EnrichmentRepository, opts DispatcherOptions) *Dispatcher {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Dispatcher{
		registry: registry,
		cache:    cache,
		ttl:      opts.CacheTTL,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Enrich queries every configured provider for the track in parallel and
// collects whatever succeeds. A cache hit within the freshness TTL bypasses
// the provider entirely, which also preserves its quota.
func (d *Dispatcher) Enrich(ctx context.Context, track models.Track) (*EnrichResult, error) {
	if track.Artist == "" && track.Title == "" {
		return nil, fmt.Errorf("%w: track artist or title required", shared.ErrInvalidInput)
	}
	if track.ID == "" {
		track.ID = TrackID(track.Artist, track.Title)
	}

	providers := d.registry.Providers()
	result := &EnrichResult{TrackID: track.ID}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, name := range providers {
		wg.Add(1)
		go func(provider string) {
			defer wg.Done()

			res, failure := d.enrichOne(ctx, provider, track)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				result.Failures = append(result.Failures, *failure)
				return
			}
			result.PerProvider = append(result.PerProvider, *res)
		}(name)
	}
	wg.Wait()

	// Deterministic ordering for callers and tests.
	sort.Slice(result.PerProvider, func(i, j int) bool {
		return result.PerProvider[i].Provider < result.PerProvider[j].Provider
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Provider < result.Failures[j].Provider
	})

	result.Partial = len(result.Failures) > 0
	return result, nil
}

// enrichOne resolves a single provider's contribution: cache, then quota
// gate, then the provider call.
func (d *Dispatcher) enrichOne(ctx context.Context, provider string, track models.Track) (*models.EnrichmentResult, *ProviderFailure) {
	cached, err := d.cache.GetFresh(track.ID, provider, d.ttl)
	if err != nil {
		return nil, &ProviderFailure{Provider: provider, Reason: err.Error()}
	}
	if cached != nil {
		return cached, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, &ProviderFailure{Provider: provider, Reason: err.Error()}
	}

	payload, err := quota.WithQuota(ctx, d.registry, provider, func(ctx context.Context) (string, error) {
		e, ok := d.registry.Provider(provider)
		if !ok {
			return "", fmt.Errorf("%w: provider %s", shared.ErrNotFound, provider)
		}
		return e.Search(ctx, track.Artist, track.Title)
	})
	if err != nil {
		d.logger.Warn("enrichment provider failed", "provider", provider, "track", track.ID, "err", err)
		return nil, &ProviderFailure{Provider: provider, Reason: err.Error()}
	}

	fresh := &models.EnrichmentResult{
		TrackID:   track.ID,
		Provider:  provider,
		Payload:   payload,
		FetchedAt: d.now(),
	}

	if err := d.cache.Upsert(fresh); err != nil {
		// The payload is still good; a cache write failure only costs quota
		// on the next pass.
		d.logger.Warn("enrichment cache write failed", "provider", provider, "err", err)
	}

	return fresh, nil
}

// TrackID derives a stable identifier from artist and title for callers
// without their own track IDs.
func TrackID(artist, title string) string {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), "-")
	}
	return normalize(artist) + "::" + normalize(title)
}
