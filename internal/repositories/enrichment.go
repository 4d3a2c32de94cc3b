package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/airwave/internal/models"
)

// EnrichmentRepository caches provider payloads per (track, provider) pair.
//
// Payloads from different providers are never merged: each row is retained
// separately and combined only at presentation time.
type EnrichmentRepository struct {
	db *sql.DB
}

// NewEnrichmentRepository creates a new [EnrichmentRepository] with the given database connection
func NewEnrichmentRepository(db *sql.DB) *EnrichmentRepository {
	return &EnrichmentRepository{db: db}
}

// GetFresh retrieves a cached result no older than ttl.
// Returns (nil, nil) on a miss or a stale hit.
func (r *EnrichmentRepository) GetFresh(trackID, provider string, ttl time.Duration) (*models.EnrichmentResult, error) {
	query := `
		SELECT track_id, provider, payload, fetched_at
		FROM enrichment_results
		WHERE track_id = ? AND provider = ?
	`

	var result models.EnrichmentResult
	err := r.db.QueryRow(query, trackID, provider).Scan(
		&result.TrackID, &result.Provider, &result.Payload, &result.FetchedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment cache: %w", err)
	}

	if !result.Fresh(ttl, time.Now()) {
		return nil, nil
	}

	return &result, nil
}

// Upsert writes a provider payload for a track, replacing any prior result
// from the same provider.
func (r *EnrichmentRepository) Upsert(result *models.EnrichmentResult) error {
	query := `
		INSERT INTO enrichment_results (track_id, provider, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id, provider) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`

	_, err := r.db.Exec(query, result.TrackID, result.Provider, result.Payload, result.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment result: %w", err)
	}

	return nil
}

// List retrieves all cached provider payloads for a track, regardless of age.
func (r *EnrichmentRepository) List(trackID string) ([]models.EnrichmentResult, error) {
	query := `
		SELECT track_id, provider, payload, fetched_at
		FROM enrichment_results
		WHERE track_id = ?
		ORDER BY provider ASC
	`

	rows, err := r.db.Query(query, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment results: %w", err)
	}
	defer rows.Close()

	var results []models.EnrichmentResult
	for rows.Next() {
		var result models.EnrichmentResult
		if err := rows.Scan(&result.TrackID, &result.Provider, &result.Payload, &result.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}
