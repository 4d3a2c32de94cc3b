package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/airwave/internal/shared"
)

func testMixcloud(t *testing.T, tokenHandler, apiHandler http.HandlerFunc) *MixcloudService {
	t.Helper()

	mux := http.NewServeMux()
	if tokenHandler != nil {
		mux.HandleFunc("/oauth/access_token", tokenHandler)
	}
	if apiHandler != nil {
		mux.HandleFunc("/", apiHandler)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc, err := NewMixcloudServiceWithEndpoints(
		"test-id", "test-secret", "http://localhost/callback",
		server.URL+"/oauth/authorize", server.URL+"/oauth/access_token", server.URL,
		server.Client(),
	)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func TestMixcloudService(t *testing.T) {
	t.Run("MissingCredentials", func(t *testing.T) {
		if _, err := NewMixcloudService("", "secret", "uri"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if _, err := NewMixcloudService("id", "", "uri"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("AuthCodeURL", func(t *testing.T) {
		svc := testMixcloud(t, nil, nil)

		authURL := svc.AuthCodeURL("state-123")
		if !strings.Contains(authURL, "state=state-123") {
			t.Errorf("auth URL should embed state: %s", authURL)
		}
		if !strings.Contains(authURL, "client_id=test-id") {
			t.Errorf("auth URL should embed client id: %s", authURL)
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		svc := testMixcloud(t, func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("failed to parse token request: %v", err)
			}
			if code := r.Form.Get("code"); code != "auth-code" {
				t.Errorf("unexpected code %q", code)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
		}, nil)

		token, err := svc.Exchange(context.Background(), "auth-code")
		if err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
		if token.AccessToken != "access" || token.RefreshToken != "refresh" {
			t.Errorf("unexpected token: %+v", token)
		}
	})

	t.Run("RefreshInvalidGrant", func(t *testing.T) {
		svc := testMixcloud(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"refresh token revoked"}`)
		}, nil)

		_, err := svc.Refresh(context.Background(), "revoked-token")
		if !errors.Is(err, shared.ErrReauthRequired) {
			t.Errorf("expected ErrReauthRequired for invalid_grant, got %v", err)
		}
	})

	t.Run("RefreshServerError", func(t *testing.T) {
		svc := testMixcloud(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, nil)

		_, err := svc.Refresh(context.Background(), "refresh-token")
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, shared.ErrReauthRequired) {
			t.Error("5xx token failures must stay transient")
		}
	})

	t.Run("Revoke", func(t *testing.T) {
		revoked := false
		svc := testMixcloud(t, nil, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/oauth/revoke" {
				revoked = true
				w.WriteHeader(http.StatusOK)
				return
			}
			http.NotFound(w, r)
		})

		if err := svc.Revoke(context.Background(), "access-token"); err != nil {
			t.Fatalf("revoke failed: %v", err)
		}
		if !revoked {
			t.Error("revoke endpoint was never called")
		}
	})

	t.Run("Profile", func(t *testing.T) {
		svc := testMixcloud(t, nil, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/" {
				http.NotFound(w, r)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
				t.Errorf("unexpected authorization header %q", got)
			}
			fmt.Fprint(w, `{"username":"djtest","name":"DJ Test","url":"https://example.com/djtest"}`)
		})

		profile, err := svc.Profile(context.Background(), "access-token")
		if err != nil {
			t.Fatalf("profile fetch failed: %v", err)
		}
		if profile.Username != "djtest" {
			t.Errorf("unexpected profile: %+v", profile)
		}
	})

	t.Run("ProfileUnauthorized", func(t *testing.T) {
		svc := testMixcloud(t, nil, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := svc.Profile(context.Background(), "expired")
		if !errors.Is(err, shared.ErrNotAuthorized) {
			t.Errorf("expected ErrNotAuthorized, got %v", err)
		}
	})
}
