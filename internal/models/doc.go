// Package models defines domain entities for the airwave integration core.
//
// Two categories of types live here:
//
// 1. Cached upstream state, persisted by internal/repositories:
//   - [CurrentSong] : latest spin per station, ordered by start time
//   - [StreamStatus] : singleton live-stream record per station
//   - [EnrichmentResult] : per-provider metadata payload for a track
//
// 2. Authorization records owned by internal/vault:
//   - [OAuthConnection] : access/refresh token pair per application user
//   - [OAuthState] : single-use CSRF correlation value with a short TTL
//
// [Track] and [QuotaStatus] are transfer types and are never persisted.
package models
