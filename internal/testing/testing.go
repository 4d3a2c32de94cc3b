// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/services"
)

// MockEnricher is a configurable test double for [services.Enricher].
type MockEnricher struct {
	ProviderName string
	SearchFunc   func(ctx context.Context, artist, title string) (string, error)
	ProbeFunc    func(ctx context.Context) (*models.QuotaStatus, error)
	SearchCalls  atomic.Int64
	ProbeCalls   atomic.Int64
}

func (m *MockEnricher) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockEnricher) Search(ctx context.Context, artist, title string) (string, error) {
	m.SearchCalls.Add(1)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, artist, title)
	}
	return `{"results":[]}`, nil
}

func (m *MockEnricher) Probe(ctx context.Context) (*models.QuotaStatus, error) {
	m.ProbeCalls.Add(1)
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return &models.QuotaStatus{Provider: m.Name(), Available: true, Remaining: -1}, nil
}

// MockSource is a configurable test double for [services.PlaylistSource].
type MockSource struct {
	CurrentFunc func(ctx context.Context, station string) (*services.Spin, error)
	RecentFunc  func(ctx context.Context, station string, hours int) ([]services.Spin, error)
}

func (m *MockSource) Current(ctx context.Context, station string) (*services.Spin, error) {
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx, station)
	}
	return nil, nil
}

func (m *MockSource) Recent(ctx context.Context, station string, hours int) ([]services.Spin, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, station, hours)
	}
	return nil, nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// Spin builds a playlist source entry for tests.
func Spin(station, artist, song string, start time.Time) services.Spin {
	return services.Spin{
		Artist:  artist,
		Song:    song,
		Start:   start,
		Raw:     `{"artist":"` + artist + `","song":"` + song + `"}`,
		Station: station,
	}
}

// MustParseTime parses an RFC3339 timestamp or fails the test.
func MustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}
