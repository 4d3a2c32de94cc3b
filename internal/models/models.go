// package models defines the data model for the airwave integration core
package models

import (
	"time"
)

// CurrentSong is the most recent spin observed from the playlist source for a
// station. Exactly one logical row exists per station; it is overwritten, not
// appended, and only ever moves forward in StartTime.
type CurrentSong struct {
	Station   string    `json:"station"`
	Artist    string    `json:"artist"`
	Song      string    `json:"song"`
	StartTime time.Time `json:"start_time"`
	Raw       string    `json:"raw,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewerOrEqual reports whether s may overwrite the cached record prev.
//
// The ordering key is StartTime, not arrival time: a re-delivered entry is a
// harmless overwrite and an out-of-order older entry is a no-op.
func (s CurrentSong) NewerOrEqual(prev *CurrentSong) bool {
	if prev == nil {
		return true
	}
	return !s.StartTime.Before(prev.StartTime)
}

// StreamStatus is the singleton live-stream record for a station.
// Last writer wins on UpdatedAt.
type StreamStatus struct {
	Station     string    `json:"station"`
	IsLive      bool      `json:"is_live"`
	TrackTitle  string    `json:"track_title"`
	TrackArtist string    `json:"track_artist"`
	ShowTitle   string    `json:"show_title"`
	Listeners   int       `json:"listeners"`
	StreamURL   string    `json:"stream_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OAuthConnection is the stored publishing-platform token pair for one
// application user. ExpiresAt always reflects the provider-reported expiry of
// AccessToken.
type OAuthConnection struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the given
// safety margin from now.
func (c OAuthConnection) ExpiresWithin(margin time.Duration, now time.Time) bool {
	return !c.ExpiresAt.After(now.Add(margin))
}

// OAuthState is a transient CSRF correlation value for the authorization
// callback. Single use: consumed on validation regardless of outcome.
type OAuthState struct {
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Track identifies a song to enrich. ID is derived from artist and title when
// the caller has no stable identifier of its own.
type Track struct {
	ID     string `json:"id"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// EnrichmentResult is one provider's payload for a track, cached per
// (track, provider) pair. Payloads are never merged across providers.
type EnrichmentResult struct {
	TrackID   string    `json:"track_id"`
	Provider  string    `json:"provider"`
	Payload   string    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fresh reports whether the cached result is still within the freshness TTL.
func (r EnrichmentResult) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(r.FetchedAt) < ttl
}

// QuotaStatus is the derived availability of an enrichment provider. It is
// recomputed on demand and cached briefly, never persisted durably.
type QuotaStatus struct {
	Provider  string     `json:"provider"`
	Available bool       `json:"available"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
	Message   string     `json:"message,omitempty"`
}
