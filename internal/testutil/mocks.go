package testutil

import (
	"context"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/scheduler"

	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock for UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) EnsureUser(ctx context.Context, user *domain.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Get(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpdateProgress(ctx context.Context, userID int64, lessonIndex int) error {
	args := m.Called(ctx, userID, lessonIndex)
	return args.Error(0)
}

func (m *MockUserRepository) MarkCompleted(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	args := m.Called(ctx, userID, active)
	return args.Error(0)
}

func (m *MockUserRepository) SetEmail(ctx context.Context, userID int64, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

func (m *MockUserRepository) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	args := m.Called(ctx, userID, admin)
	return args.Error(0)
}

func (m *MockUserRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ListActive(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockUserRepository) ListAdmins(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockUserRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserStats), args.Error(1)
}

// MockSessionRepository is a mock for SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockCourseRepository is a mock for CourseRepository
type MockCourseRepository struct {
	mock.Mock
}

func (m *MockCourseRepository) Lessons(ctx context.Context) ([]domain.Lesson, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Lesson), args.Error(1)
}

func (m *MockCourseRepository) Invalidate() {
	m.Called()
}

// MockTransport is a mock for Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, userID int64, msg domain.Outgoing) error {
	args := m.Called(ctx, userID, msg)
	return args.Error(0)
}

// MockMailer is a mock for Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendCompletion(ctx context.Context, to, name string) error {
	args := m.Called(ctx, to, name)
	return args.Error(0)
}

// MockNotifier is a mock for Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewUser(ctx context.Context, user *domain.User) {
	m.Called(ctx, user)
}

func (m *MockNotifier) NotifyFailure(ctx context.Context, userID int64, err error) {
	m.Called(ctx, userID, err)
}

func (m *MockNotifier) NotifyCompleted(ctx context.Context, userID int64) {
	m.Called(ctx, userID)
}

// MockDelayer is a mock for Delayer
type MockDelayer struct {
	mock.Mock
}

func (m *MockDelayer) Schedule(userID int64, action scheduler.Action, delay time.Duration) string {
	args := m.Called(userID, action, delay)
	return args.String(0)
}

func (m *MockDelayer) CancelAll(userID int64) int {
	args := m.Called(userID)
	return args.Int(0)
}

// MockDispatcher is a mock for Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) ScheduleUserProgress(userID int64) bool {
	args := m.Called(userID)
	return args.Bool(0)
}
