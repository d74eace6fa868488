package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coursebot/internal/domain"
)

// UserRepo implements repository.UserRepository
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// EnsureUser creates user if not exists and refreshes the profile names
func (r *UserRepo) EnsureUser(ctx context.Context, user *domain.User) (bool, error) {
	query := `
		INSERT INTO users (user_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query, user.UserID, user.Username, user.FirstName).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ensure user %d: %w", user.UserID, err)
	}
	return inserted, nil
}

// Get loads a user by id
func (r *UserRepo) Get(ctx context.Context, userID int64) (*domain.User, error) {
	query := `
		SELECT user_id, username, first_name, email, is_admin, active,
		       last_lesson, completed, completed_at, created_at
		FROM users WHERE user_id = $1
	`
	var u domain.User
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&u.UserID, &u.Username, &u.FirstName, &u.Email, &u.IsAdmin, &u.Active,
		&u.LastLesson, &u.Completed, &completedAt, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	if completedAt.Valid {
		u.CompletedAt = &completedAt.Time
	}
	return &u, nil
}

// UpdateProgress stores the last delivered lesson index
func (r *UserRepo) UpdateProgress(ctx context.Context, userID int64, lessonIndex int) error {
	query := `UPDATE users SET last_lesson = GREATEST(last_lesson, $2), active = TRUE WHERE user_id = $1`
	return r.exec(ctx, query, userID, lessonIndex)
}

// MarkCompleted flags the course as finished
func (r *UserRepo) MarkCompleted(ctx context.Context, userID int64) error {
	query := `
		UPDATE users SET completed = TRUE, completed_at = COALESCE(completed_at, NOW())
		WHERE user_id = $1
	`
	return r.exec(ctx, query, userID)
}

// SetActive toggles whether the user receives lessons
func (r *UserRepo) SetActive(ctx context.Context, userID int64, active bool) error {
	return r.exec(ctx, `UPDATE users SET active = $2 WHERE user_id = $1`, userID, active)
}

// SetEmail stores the address used for the completion e-mail
func (r *UserRepo) SetEmail(ctx context.Context, userID int64, email string) error {
	return r.exec(ctx, `UPDATE users SET email = $2 WHERE user_id = $1`, userID, email)
}

// SetAdmin grants or revokes admin rights
func (r *UserRepo) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	query := `
		INSERT INTO users (user_id, is_admin)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET is_admin = $2
	`
	_, err := r.db.ExecContext(ctx, query, userID, admin)
	return err
}

// IsAdmin checks if user has admin rights
func (r *UserRepo) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var admin bool
	err := r.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE user_id = $1`, userID).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin, nil
}

// ListActive returns users that should still receive lessons
func (r *UserRepo) ListActive(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, `SELECT user_id FROM users WHERE active = TRUE AND completed = FALSE ORDER BY user_id`)
}

// ListAdmins returns all admin ids
func (r *UserRepo) ListAdmins(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, `SELECT user_id FROM users WHERE is_admin = TRUE ORDER BY user_id`)
}

// Stats counts users for the admin report
func (r *UserRepo) Stats(ctx context.Context) (*domain.UserStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       COUNT(*) FILTER (WHERE completed),
		       COUNT(*) FILTER (WHERE email <> '')
		FROM users
	`
	var s domain.UserStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.Active, &s.Completed, &s.WithEmail); err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return &s, nil
}

func (r *UserRepo) listIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
