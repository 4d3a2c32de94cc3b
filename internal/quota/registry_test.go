package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/shared"
	mocks "github.com/desertthunder/airwave/internal/testing"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, DelayCap: time.Millisecond}
}

func testRegistry(ttl time.Duration) (*Registry, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(Options{StatusTTL: ttl, Timeout: time.Second, Now: func() time.Time { return now }})
	return r, &now
}

func TestRegistryCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownProvider", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		_, err := r.Check(ctx, "nope")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ProbeCached", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		mock := &mocks.MockEnricher{ProviderName: "youtube"}
		r.Register(mock, fastPolicy())

		for i := 0; i < 3; i++ {
			status, err := r.Check(ctx, "youtube")
			if err != nil {
				t.Fatalf("check failed: %v", err)
			}
			if !status.Available {
				t.Fatal("expected provider to be available")
			}
		}

		if calls := mock.ProbeCalls.Load(); calls != 1 {
			t.Errorf("expected 1 probe within the TTL, got %d", calls)
		}
	})

	t.Run("ProbeAfterTTL", func(t *testing.T) {
		r, now := testRegistry(time.Minute)
		mock := &mocks.MockEnricher{ProviderName: "youtube"}
		r.Register(mock, fastPolicy())

		if _, err := r.Check(ctx, "youtube"); err != nil {
			t.Fatalf("check failed: %v", err)
		}

		*now = now.Add(2 * time.Minute)
		if _, err := r.Check(ctx, "youtube"); err != nil {
			t.Fatalf("check failed: %v", err)
		}

		if calls := mock.ProbeCalls.Load(); calls != 2 {
			t.Errorf("expected a fresh probe after the TTL, got %d", calls)
		}
	})

	t.Run("ProbeFailureDegrades", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		mock := &mocks.MockEnricher{
			ProviderName: "youtube",
			ProbeFunc: func(ctx context.Context) (*models.QuotaStatus, error) {
				return nil, errors.New("connection refused")
			},
		}
		r.Register(mock, fastPolicy())

		status, err := r.Check(ctx, "youtube")
		if err != nil {
			t.Fatalf("a failing probe should degrade, not error: %v", err)
		}
		if status.Available {
			t.Error("expected provider to be marked unavailable")
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		r, _ := testRegistry(time.Hour)
		mock := &mocks.MockEnricher{ProviderName: "youtube"}
		r.Register(mock, fastPolicy())

		if _, err := r.Check(ctx, "youtube"); err != nil {
			t.Fatalf("check failed: %v", err)
		}
		r.Invalidate("youtube")
		if _, err := r.Check(ctx, "youtube"); err != nil {
			t.Fatalf("check failed: %v", err)
		}

		if calls := mock.ProbeCalls.Load(); calls != 2 {
			t.Errorf("invalidate should force a re-probe, got %d probes", calls)
		}
	})
}

func TestWithQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("AvailableProviderCalled", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		mock := &mocks.MockEnricher{ProviderName: "discogs"}
		r.Register(mock, fastPolicy())

		result, err := WithQuota(ctx, r, "discogs", func(ctx context.Context) (string, error) {
			return "payload", nil
		})
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if result != "payload" {
			t.Errorf("result = %q, want payload", result)
		}
	})

	t.Run("ExhaustedProviderFailsFast", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		mock := &mocks.MockEnricher{
			ProviderName: "youtube",
			ProbeFunc: func(ctx context.Context) (*models.QuotaStatus, error) {
				return &models.QuotaStatus{Provider: "youtube", Available: false, Message: "daily quota exhausted"}, nil
			},
		}
		r.Register(mock, fastPolicy())

		called := false
		_, err := WithQuota(ctx, r, "youtube", func(ctx context.Context) (string, error) {
			called = true
			return "", nil
		})
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if called {
			t.Error("the costly call must never run against an exhausted quota")
		}
	})

	t.Run("CallTimeQuotaErrorInvalidates", func(t *testing.T) {
		r, _ := testRegistry(time.Hour)
		mock := &mocks.MockEnricher{ProviderName: "discogs"}
		r.Register(mock, fastPolicy())

		_, err := WithQuota(ctx, r, "discogs", func(ctx context.Context) (string, error) {
			return "", shared.ErrQuotaExceeded
		})
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}

		// the next check must re-probe rather than trust the cached status
		if _, err := r.Check(ctx, "discogs"); err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if calls := mock.ProbeCalls.Load(); calls != 2 {
			t.Errorf("expected re-probe after call-time rejection, got %d probes", calls)
		}
	})

	t.Run("ProvidersIndependent", func(t *testing.T) {
		r, _ := testRegistry(time.Minute)
		exhausted := &mocks.MockEnricher{
			ProviderName: "youtube",
			ProbeFunc: func(ctx context.Context) (*models.QuotaStatus, error) {
				return &models.QuotaStatus{Provider: "youtube", Available: false}, nil
			},
		}
		healthy := &mocks.MockEnricher{ProviderName: "discogs"}
		r.Register(exhausted, fastPolicy())
		r.Register(healthy, fastPolicy())

		if _, err := WithQuota(ctx, r, "youtube", func(ctx context.Context) (string, error) {
			return "", nil
		}); !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}

		if _, err := WithQuota(ctx, r, "discogs", func(ctx context.Context) (string, error) {
			return "ok", nil
		}); err != nil {
			t.Errorf("one exhausted provider must not block another: %v", err)
		}
	})
}

func TestRegistryProviders(t *testing.T) {
	r, _ := testRegistry(time.Minute)
	r.Register(&mocks.MockEnricher{ProviderName: "youtube"}, fastPolicy())
	r.Register(&mocks.MockEnricher{ProviderName: "discogs"}, fastPolicy())

	names := r.Providers()
	if len(names) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(names))
	}

	if _, ok := r.Provider("youtube"); !ok {
		t.Error("expected youtube to be registered")
	}
	if _, ok := r.Provider("nope"); ok {
		t.Error("unknown provider should not resolve")
	}
}
