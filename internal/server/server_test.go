package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/airwave/internal/quota"
	"github.com/desertthunder/airwave/internal/ratelimit"
	"github.com/desertthunder/airwave/internal/repositories"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/services"
	"github.com/desertthunder/airwave/internal/shared"
	"github.com/desertthunder/airwave/internal/tasks"
	mocks "github.com/desertthunder/airwave/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func testSyncHandler(t *testing.T, source services.PlaylistSource) *SyncHandler {
	t.Helper()

	db := setupTestDB(t)
	engine := tasks.NewSyncEngine(source,
		repositories.NewSongRepository(db),
		repositories.NewStreamStatusRepository(db),
		tasks.SyncOptions{
			Policy:    retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, DelayCap: time.Millisecond},
			Timeout:   2 * time.Second,
			RateLimit: 1000,
		})
	return NewSyncHandler(engine, 4, shared.NewLogger(&mocks.FWriter{}))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestBasicRouter(t *testing.T) {
	t.Run("MethodQualifiedPatterns", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle("GET", "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("GET /ping = %d, want 204", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST /ping = %d, want 405", rec.Code)
		}
	})

	t.Run("MiddlewareOrder", func(t *testing.T) {
		var order []string
		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(tag("first"), tag("second"))
		router.Handle("GET", "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ping", nil))
		want := []string{"first", "second", "handler"}
		for i, name := range want {
			if i >= len(order) || order[i] != name {
				t.Fatalf("middleware order = %v, want %v", order, want)
			}
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter()
	defer limiter.Close()

	router := NewBasicRouter()
	router.Use(RateLimitMiddleware(limiter, 2, time.Minute))
	router.Handle("GET", "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		router.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	if first.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("remaining header = %q, want 1", got)
	}

	do()
	third := do()
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", third.Code)
	}
	if third.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}

	resp := decodeResponse(t, third)
	if resp.Success {
		t.Error("429 envelope should report failure")
	}
}

func TestSyncHandler(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("NowPlaying", func(t *testing.T) {
		spin := mocks.Spin("wxyz", "Stereolab", "French Disko", base)
		handler := testSyncHandler(t, &mocks.MockSource{
			CurrentFunc: func(ctx context.Context, station string) (*services.Spin, error) {
				return &spin, nil
			},
		})

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/now-playing/wxyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		if !resp.Success {
			t.Fatalf("unexpected envelope: %+v", resp)
		}
		if !strings.Contains(rec.Body.String(), "Stereolab") {
			t.Errorf("body should carry the song: %s", rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"stale":false`) {
			t.Errorf("fresh result should not be stale: %s", rec.Body.String())
		}
	})

	t.Run("NowPlayingEmpty", func(t *testing.T) {
		handler := testSyncHandler(t, &mocks.MockSource{
			CurrentFunc: func(ctx context.Context, station string) (*services.Spin, error) {
				return nil, nil
			},
		})

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/now-playing/wxyz", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("PushAndGetStatus", func(t *testing.T) {
		handler := testSyncHandler(t, &mocks.MockSource{})

		router := NewBasicRouter()
		router.Handler(handler)

		body := strings.NewReader(`{"is_live":true,"listeners":120,"stream_url":"https://stream.example/wxyz"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/status/wxyz", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("push status = %d, body %s", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/status/wxyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"listeners":120`) {
			t.Errorf("pushed listener count should persist: %s", rec.Body.String())
		}
	})

	t.Run("PushStatusBadPayload", func(t *testing.T) {
		handler := testSyncHandler(t, &mocks.MockSource{})

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/status/wxyz", strings.NewReader("{not json")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("FullSync", func(t *testing.T) {
		spin := mocks.Spin("wxyz", "Stereolab", "French Disko", base)
		handler := testSyncHandler(t, &mocks.MockSource{
			CurrentFunc: func(ctx context.Context, station string) (*services.Spin, error) {
				return &spin, nil
			},
			RecentFunc: func(ctx context.Context, station string, hours int) ([]services.Spin, error) {
				return []services.Spin{spin}, nil
			},
		})

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/sync/wxyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"succeeded":true`) {
			t.Errorf("expected full success: %s", rec.Body.String())
		}
	})
}

func TestEnrichHandler(t *testing.T) {
	newHandler := func(t *testing.T, providers ...*mocks.MockEnricher) *EnrichHandler {
		t.Helper()

		db := setupTestDB(t)
		registry := quota.NewRegistry(quota.Options{StatusTTL: time.Minute, Timeout: time.Second})
		for _, p := range providers {
			registry.Register(p, retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, DelayCap: time.Millisecond})
		}
		dispatcher := tasks.NewDispatcher(registry,
			repositories.NewEnrichmentRepository(db),
			tasks.DispatcherOptions{CacheTTL: time.Hour, RateLimit: 1000})
		return NewEnrichHandler(dispatcher)
	}

	t.Run("Enrich", func(t *testing.T) {
		handler := newHandler(t, &mocks.MockEnricher{ProviderName: "discogs"})

		router := NewBasicRouter()
		router.Handler(handler)

		body := strings.NewReader(`{"artist":"Stereolab","title":"French Disko"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/enrich", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "stereolab::french-disko") {
			t.Errorf("body should carry the track id: %s", rec.Body.String())
		}
	})

	t.Run("BadPayload", func(t *testing.T) {
		handler := newHandler(t)

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/enrich", strings.NewReader("{not json")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("EmptyTrack", func(t *testing.T) {
		handler := newHandler(t)

		router := NewBasicRouter()
		router.Handler(handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/enrich", strings.NewReader("{}")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}
