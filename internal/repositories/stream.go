package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/airwave/internal/models"
)

// StreamStatusRepository persists the singleton live-stream record per station.
type StreamStatusRepository struct {
	db *sql.DB
}

// NewStreamStatusRepository creates a new [StreamStatusRepository] with the given database connection
func NewStreamStatusRepository(db *sql.DB) *StreamStatusRepository {
	return &StreamStatusRepository{db: db}
}

// Get retrieves the live-stream status for a station.
// Returns (nil, nil) when the station has never reported status.
func (r *StreamStatusRepository) Get(station string) (*models.StreamStatus, error) {
	query := `
		SELECT station, is_live, track_title, track_artist, show_title, listeners, stream_url, updated_at
		FROM stream_status
		WHERE station = ?
	`

	var s models.StreamStatus
	err := r.db.QueryRow(query, station).Scan(
		&s.Station, &s.IsLive, &s.TrackTitle, &s.TrackArtist,
		&s.ShowTitle, &s.Listeners, &s.StreamURL, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stream status: %w", err)
	}

	return &s, nil
}

// Upsert writes the live-stream status for a station. Last writer wins on
// UpdatedAt.
func (r *StreamStatusRepository) Upsert(status *models.StreamStatus) error {
	query := `
		INSERT INTO stream_status (station, is_live, track_title, track_artist, show_title, listeners, stream_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station) DO UPDATE SET
			is_live = excluded.is_live,
			track_title = excluded.track_title,
			track_artist = excluded.track_artist,
			show_title = excluded.show_title,
			listeners = excluded.listeners,
			stream_url = excluded.stream_url,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		status.Station, status.IsLive, status.TrackTitle, status.TrackArtist,
		status.ShowTitle, status.Listeners, status.StreamURL, status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stream status: %w", err)
	}

	return nil
}
