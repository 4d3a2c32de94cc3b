package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/airwave/internal/models"
)

// StateRepository persists single-use OAuth CSRF states.
//
// States live in the database rather than process memory so that the begin
// and callback phases of the flow may be handled by different instances.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository creates a new [StateRepository] with the given database connection
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Create stores a state value with the given TTL.
func (r *StateRepository) Create(state string, ttl time.Duration) (*models.OAuthState, error) {
	now := time.Now()
	record := &models.OAuthState{
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	query := "INSERT INTO oauth_states (state, created_at, expires_at) VALUES (?, ?, ?)"
	if _, err := r.db.Exec(query, record.State, record.CreatedAt, record.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store oauth state: %w", err)
	}

	return record, nil
}

// Consume deletes the state row and reports whether it existed and was
// unexpired. The row is removed regardless of outcome, enforcing single use.
func (r *StateRepository) Consume(state string) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var expiresAt time.Time
	err = tx.QueryRow("SELECT expires_at FROM oauth_states WHERE state = ?", state).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, tx.Commit()
	}
	if err != nil {
		return false, fmt.Errorf("failed to query oauth state: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM oauth_states WHERE state = ?", state); err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit state consumption: %w", err)
	}

	return expiresAt.After(time.Now()), nil
}

// PurgeExpired removes expired states and returns how many were dropped.
func (r *StateRepository) PurgeExpired() (int, error) {
	result, err := r.db.Exec("DELETE FROM oauth_states WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge oauth states: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged states: %w", err)
	}
	return int(n), nil
}
