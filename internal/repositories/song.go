package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/airwave/internal/models"
)

// SongRepository persists the per-station current song and the bounded
// spin history.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new [SongRepository] with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// GetCurrent retrieves the cached current song for a station.
// Returns (nil, nil) when the station has no cached record yet.
func (r *SongRepository) GetCurrent(station string) (*models.CurrentSong, error) {
	query := `
		SELECT station, artist, song, start_time, raw, updated_at
		FROM current_songs
		WHERE station = ?
	`

	var s models.CurrentSong
	err := r.db.QueryRow(query, station).Scan(&s.Station, &s.Artist, &s.Song, &s.StartTime, &s.Raw, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current song: %w", err)
	}

	return &s, nil
}

// UpsertCurrent writes the current song for a station, guarded so an entry
// with an older start time than the stored one is a no-op. The guard lives
// in the SQL so concurrent writers cannot regress the cache.
func (r *SongRepository) UpsertCurrent(song *models.CurrentSong) error {
	query := `
		INSERT INTO current_songs (station, artist, song, start_time, raw, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(station) DO UPDATE SET
			artist = excluded.artist,
			song = excluded.song,
			start_time = excluded.start_time,
			raw = excluded.raw,
			updated_at = excluded.updated_at
		WHERE excluded.start_time >= current_songs.start_time
	`

	now := time.Now()
	_, err := r.db.Exec(query, song.Station, song.Artist, song.Song, song.StartTime, song.Raw, now)
	if err != nil {
		return fmt.Errorf("failed to upsert current song: %w", err)
	}

	return nil
}

// UpsertHistory records a spin keyed by (station, start_time). Re-upserting
// the same entry is idempotent.
func (r *SongRepository) UpsertHistory(song *models.CurrentSong) error {
	query := `
		INSERT INTO song_history (station, start_time, artist, song, raw)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station, start_time) DO UPDATE SET
			artist = excluded.artist,
			song = excluded.song,
			raw = excluded.raw
	`

	_, err := r.db.Exec(query, song.Station, song.StartTime, song.Artist, song.Song, song.Raw)
	if err != nil {
		return fmt.Errorf("failed to upsert history entry: %w", err)
	}

	return nil
}

// History retrieves spins for a station since the given time, newest first.
func (r *SongRepository) History(station string, since time.Time) ([]models.CurrentSong, error) {
	query := `
		SELECT station, start_time, artist, song, raw
		FROM song_history
		WHERE station = ? AND start_time >= ?
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(query, station, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var songs []models.CurrentSong
	for rows.Next() {
		var s models.CurrentSong
		if err := rows.Scan(&s.Station, &s.StartTime, &s.Artist, &s.Song, &s.Raw); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		songs = append(songs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}
