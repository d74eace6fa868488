package repository

import (
	"context"

	"coursebot/internal/domain"
)

// SessionRepository stores progression sessions
type SessionRepository interface {
	// Get returns domain.ErrSessionNotFound when the user has no session
	Get(ctx context.Context, userID int64) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, userID int64) error
}

// UserRepository defines user data operations
type UserRepository interface {
	// EnsureUser creates the user if missing and reports whether it was created
	EnsureUser(ctx context.Context, user *domain.User) (bool, error)
	Get(ctx context.Context, userID int64) (*domain.User, error)
	UpdateProgress(ctx context.Context, userID int64, lessonIndex int) error
	MarkCompleted(ctx context.Context, userID int64) error
	SetActive(ctx context.Context, userID int64, active bool) error
	SetEmail(ctx context.Context, userID int64, email string) error
	SetAdmin(ctx context.Context, userID int64, admin bool) error
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	ListActive(ctx context.Context) ([]int64, error)
	ListAdmins(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (*domain.UserStats, error)
}

// CourseRepository provides the ordered lesson sequence
type CourseRepository interface {
	Lessons(ctx context.Context) ([]domain.Lesson, error)
	Invalidate()
}
