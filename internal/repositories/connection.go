package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/shared"
)

// ConnectionRepository persists one publishing-platform token pair per
// application user.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Get retrieves a user's connection. Returns [shared.ErrNotConnected] when
// no connection exists.
func (r *ConnectionRepository) Get(userID string) (*models.OAuthConnection, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, scope, created_at, updated_at
		FROM oauth_connections
		WHERE user_id = ?
	`

	var c models.OAuthConnection
	err := r.db.QueryRow(query, userID).Scan(
		&c.UserID, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.Scope, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotConnected, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}

	return &c, nil
}

// Upsert writes a user's connection, replacing any existing token pair.
// Whichever refresh response lands last wins.
func (r *ConnectionRepository) Upsert(conn *models.OAuthConnection) error {
	now := time.Now()
	query := `
		INSERT INTO oauth_connections (user_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		conn.UserID, conn.AccessToken, conn.RefreshToken,
		conn.ExpiresAt, conn.Scope, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	return nil
}

// Delete removes a user's connection. Deleting a missing connection is not
// an error; disconnect must be idempotent.
func (r *ConnectionRepository) Delete(userID string) error {
	_, err := r.db.Exec("DELETE FROM oauth_connections WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
