package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"coursebot/internal/domain"
)

// SessionRepo stores sessions as JSONB documents
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Get loads the session of a user
func (r *SessionRepo) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	s.UserID = userID
	s.Normalize()
	return &s, nil
}

// Save upserts the session
func (r *SessionRepo) Save(ctx context.Context, session *domain.Session) error {
	session.Touch()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", session.UserID, err)
	}

	query := `
		INSERT INTO sessions (user_id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, session.UserID, data); err != nil {
		return fmt.Errorf("save session %d: %w", session.UserID, err)
	}
	return nil
}

// Delete removes the session of a user
func (r *SessionRepo) Delete(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}
