package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"go.uber.org/zap"
)

// RuntimeCounters exposes the load of the scheduling layer
type RuntimeCounters interface {
	ActiveSlots() int
	InFlight() int
	PendingDelayed() int
}

// StatsService handles the admin report and maintenance commands
type StatsService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	course    repository.CourseRepository
	counters  RuntimeCounters
	delayer   Delayer
	transport Transport
	logger    *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	course repository.CourseRepository,
	counters RuntimeCounters,
	delayer Delayer,
	transport Transport,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		users:     users,
		sessions:  sessions,
		course:    course,
		counters:  counters,
		delayer:   delayer,
		transport: transport,
		logger:    logger,
	}
}

// Report sends the runtime and user counters to an admin
func (s *StatsService) Report(ctx context.Context, adminID int64) error {
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return err
	}
	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}

	var b strings.Builder
	b.WriteString("📊 <b>Bot statistics</b>\n\n")
	fmt.Fprintf(&b, "👥 Users: %d\n", stats.Total)
	fmt.Fprintf(&b, "✅ Active: %d\n", stats.Active)
	fmt.Fprintf(&b, "🏆 Completed: %d\n", stats.Completed)
	fmt.Fprintf(&b, "📧 With e-mail: %d\n\n", stats.WithEmail)
	fmt.Fprintf(&b, "📚 Lessons: %d\n", len(lessons))
	fmt.Fprintf(&b, "⚙️ Active slots: %d\n", s.counters.ActiveSlots())
	fmt.Fprintf(&b, "🚦 In flight: %d\n", s.counters.InFlight())
	fmt.Fprintf(&b, "⏰ Pending delayed tasks: %d", s.counters.PendingDelayed())

	s.reply(ctx, adminID, b.String())
	return nil
}

// ReloadCourse drops the cached course and loads it again
func (s *StatsService) ReloadCourse(ctx context.Context, adminID int64) error {
	s.course.Invalidate()
	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		s.logger.Error("Course reload failed", zap.Error(err))
		s.reply(ctx, adminID, "❌ Course reload failed: "+html.EscapeString(err.Error()))
		return nil
	}

	s.logger.Info("Course reloaded", zap.Int("lessons", len(lessons)))
	s.reply(ctx, adminID, fmt.Sprintf("🔄 Course reloaded: %d lessons.", len(lessons)))
	return nil
}

// Kick cancels the pending work of a user and unsticks a sending session
func (s *StatsService) Kick(ctx context.Context, adminID, userID int64) error {
	cancelled := s.delayer.CancelAll(userID)

	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if session.IsProcessing() {
		session.State = domain.StateIdle
		session.SendAttempts = 0
		if err := s.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("save kicked session: %w", err)
		}
	}

	s.logger.Info("User kicked",
		zap.Int64("admin_id", adminID),
		zap.Int64("user_id", userID),
		zap.Int("cancelled_tasks", cancelled),
	)
	s.reply(ctx, adminID, fmt.Sprintf("👢 User %d: %d delayed tasks cancelled, state %s.", userID, cancelled, session.State))
	return nil
}

// LogSnapshot writes the runtime counters to the log
func (s *StatsService) LogSnapshot() {
	s.logger.Info("Runtime snapshot",
		zap.Int("active_slots", s.counters.ActiveSlots()),
		zap.Int("in_flight", s.counters.InFlight()),
		zap.Int("pending_delayed", s.counters.PendingDelayed()),
	)
}

func (s *StatsService) reply(ctx context.Context, userID int64, text string) {
	if err := s.transport.Send(ctx, userID, domain.TextMessage(text)); err != nil {
		s.logger.Warn("Failed to send message", zap.Int64("user_id", userID), zap.Error(err))
	}
}
