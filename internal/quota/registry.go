// package quota tracks enrichment provider availability so costly calls are
// never attempted against an exhausted quota.
//
// Statuses are derived from lightweight provider probes and cached briefly;
// the cache is an explicitly owned, injectable value so tests can run
// isolated registries. Providers are independent: exhaustion of one never
// blocks calls to another.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/services"
	"github.com/desertthunder/airwave/internal/shared"
)

// DefaultStatusTTL bounds how long a probe result may be reused before the
// provider is probed again.
const DefaultStatusTTL = time.Minute

type entry struct {
	provider services.Enricher
	policy   retry.Policy
}

type cachedStatus struct {
	status    models.QuotaStatus
	checkedAt time.Time
}

// Registry caches per-provider quota statuses and gates calls on them.
type Registry struct {
	mu        sync.Mutex
	providers map[string]entry
	statuses  map[string]cachedStatus
	ttl       time.Duration
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// Options tunes registry construction; zero fields take defaults.
type Options struct {
	StatusTTL time.Duration
	Timeout   time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = DefaultStatusTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Registry{
		providers: make(map[string]entry),
		statuses:  make(map[string]cachedStatus),
		ttl:       opts.StatusTTL,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Register adds a provider with its retry tuning.
func (r *Registry) Register(provider services.Enricher, policy retry.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = entry{provider: provider, policy: policy}
}

// Provider returns the registered Enricher by name.
func (r *Registry) Provider(name string) (services.Enricher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.providers[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Providers returns the registered provider names in registration-map order.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Check returns the quota status for a provider, probing it when the cached
// status has aged out. A probe that keeps failing transiently classifies the
// provider as unavailable rather than surfacing an error: callers degrade,
// they do not crash.
func (r *Registry) Check(ctx context.Context, provider string) (*models.QuotaStatus, error) {
	r.mu.Lock()
	e, ok := r.providers[provider]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: provider %s", shared.ErrNotFound, provider)
	}
	if cached, ok := r.statuses[provider]; ok && r.now().Sub(cached.checkedAt) < r.ttl {
		status := cached.status
		r.mu.Unlock()
		return &status, nil
	}
	r.mu.Unlock()

	status, err := retry.Do(ctx, e.policy, func(ctx context.Context) (*models.QuotaStatus, error) {
		return retry.RaceWithTimeout(ctx, r.timeout, "quota probe", func(ctx context.Context) (*models.QuotaStatus, error) {
			return e.provider.Probe(ctx)
		})
	})
	if err != nil {
		r.logger.Warn("quota probe failed", "provider", provider, "err", err)
		status = &models.QuotaStatus{
			Provider:  provider,
			Available: false,
			Message:   fmt.Sprintf("probe failed: %v", err),
		}
	}

	r.mu.Lock()
	r.statuses[provider] = cachedStatus{status: *status, checkedAt: r.now()}
	r.mu.Unlock()

	return status, nil
}

// Invalidate drops the cached status for a provider, forcing the next Check
// to probe again. Called after a call-time quota rejection.
func (r *Registry) Invalidate(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, provider)
}

// WithQuota consults the provider's quota before invoking op; an exhausted
// provider fails fast with [shared.ErrQuotaExceeded] and the costly call is
// never attempted. Available providers run op through retry and the timeout
// race.
func WithQuota[T any](ctx context.Context, r *Registry, provider string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	status, err := r.Check(ctx, provider)
	if err != nil {
		return zero, err
	}
	if !status.Available {
		return zero, fmt.Errorf("%w: %s (%s)", shared.ErrQuotaExceeded, provider, status.Message)
	}

	r.mu.Lock()
	e := r.providers[provider]
	r.mu.Unlock()

	result, err := retry.Do(ctx, e.policy, func(ctx context.Context) (T, error) {
		return retry.RaceWithTimeout(ctx, r.timeout, provider+" call", op)
	})
	if err != nil {
		if errors.Is(err, shared.ErrQuotaExceeded) {
			// The probe said available but the call said otherwise; make the
			// next check re-probe instead of trusting the stale status.
			r.Invalidate(provider)
		}
		return zero, err
	}

	return result, nil
}
