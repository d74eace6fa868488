package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"go.uber.org/zap"
)

// CourseService implements the user facing course commands
type CourseService struct {
	sessions  repository.SessionRepository
	users     repository.UserRepository
	course    repository.CourseRepository
	transport Transport
	delayer   Delayer
	dispatch  Dispatcher
	notifier  Notifier
	scheduled bool
	logger    *zap.Logger
}

// CourseDeps groups the collaborators of the course commands
type CourseDeps struct {
	Sessions  repository.SessionRepository
	Users     repository.UserRepository
	Course    repository.CourseRepository
	Transport Transport
	Delayer   Delayer
	Dispatch  Dispatcher
	Notifier  Notifier
	// Scheduled leaves delivery to the daily tick instead of starting it on /start
	Scheduled bool
}

// NewCourseService creates a course command service
func NewCourseService(deps CourseDeps, logger *zap.Logger) *CourseService {
	return &CourseService{
		sessions:  deps.Sessions,
		users:     deps.Users,
		course:    deps.Course,
		transport: deps.Transport,
		delayer:   deps.Delayer,
		dispatch:  deps.Dispatch,
		notifier:  deps.Notifier,
		scheduled: deps.Scheduled,
		logger:    logger,
	}
}

// Start registers the user and sets the course in motion
func (s *CourseService) Start(ctx context.Context, user *domain.User) error {
	created, err := s.users.EnsureUser(ctx, user)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	if created {
		s.logger.Info("New user registered",
			zap.Int64("user_id", user.UserID),
			zap.String("username", user.Username),
		)
		if s.notifier != nil {
			s.notifier.NotifyNewUser(ctx, user)
		}
		if s.scheduled {
			s.reply(ctx, user.UserID, msgWelcomeScheduled)
			return nil
		}
		s.reply(ctx, user.UserID, msgWelcome)
		s.dispatch.ScheduleUserProgress(user.UserID)
		return nil
	}

	if err := s.users.SetActive(ctx, user.UserID, true); err != nil {
		s.logger.Warn("Failed to reactivate user", zap.Int64("user_id", user.UserID), zap.Error(err))
	}

	// a returning user whose session was lost gets it rebuilt from the user record
	if _, err := s.sessions.Get(ctx, user.UserID); errors.Is(err, domain.ErrSessionNotFound) {
		if _, err := s.restore(ctx, user.UserID); err != nil {
			s.logger.Warn("Failed to restore session on start", zap.Int64("user_id", user.UserID), zap.Error(err))
		}
	}

	if s.scheduled {
		s.reply(ctx, user.UserID, msgWelcomeBackScheduled)
		return nil
	}

	// a resume armed before the restart must not run next to the new chain
	s.delayer.CancelAll(user.UserID)
	s.reply(ctx, user.UserID, msgWelcomeBack)
	s.dispatch.ScheduleUserProgress(user.UserID)
	return nil
}

// Pause stops lesson delivery until Resume
func (s *CourseService) Pause(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if session.Paused {
		s.reply(ctx, userID, msgAlreadyPaused)
		return nil
	}

	session.Paused = true
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save paused session: %w", err)
	}
	cancelled := s.delayer.CancelAll(userID)
	s.logger.Info("Course paused", zap.Int64("user_id", userID), zap.Int("cancelled_tasks", cancelled))
	s.reply(ctx, userID, msgPaused)
	return nil
}

// Resume lifts a pause and asks the course to continue
func (s *CourseService) Resume(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}

	if session.Paused {
		session.Paused = false
		if err := s.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("save resumed session: %w", err)
		}
	}

	if session.IsWaitingForNext() {
		s.reply(ctx, userID, msgWaitingForNext)
		return nil
	}

	cancelled := s.delayer.CancelAll(userID)
	s.logger.Info("Course resumed", zap.Int64("user_id", userID), zap.Int("cancelled_tasks", cancelled))
	s.reply(ctx, userID, msgResumed)
	s.dispatch.ScheduleUserProgress(userID)
	return nil
}

// Reset wipes the progress of the user
func (s *CourseService) Reset(ctx context.Context, userID int64) error {
	s.delayer.CancelAll(userID)

	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	session.Reset()
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save reset session: %w", err)
	}

	s.logger.Info("Progress reset", zap.Int64("user_id", userID))
	s.reply(ctx, userID, msgReset)
	return nil
}

// Skip moves past the current lesson without delivering it
func (s *CourseService) Skip(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if session.InSubFlow() {
		s.reply(ctx, userID, msgSkipInSubFlow)
		return nil
	}

	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}
	if session.CurrentLessonIndex >= len(lessons) {
		s.reply(ctx, userID, msgNothingToSkip)
		return nil
	}

	s.delayer.CancelAll(userID)
	session.CurrentLessonIndex++
	session.State = domain.StateIdle
	session.SendAttempts = 0
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save skipped session: %w", err)
	}

	s.logger.Info("Lesson skipped",
		zap.Int64("user_id", userID),
		zap.Int("lesson_index", session.CurrentLessonIndex-1),
	)
	s.reply(ctx, userID, msgSkipped)
	if !session.Paused {
		s.dispatch.ScheduleUserProgress(userID)
	}
	return nil
}

// Restore rebuilds the session from the durable user record
func (s *CourseService) Restore(ctx context.Context, userID int64) error {
	session, err := s.restore(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case session == nil:
		s.reply(ctx, userID, msgNothingToRestore)
	case session.IsFinished():
		s.reply(ctx, userID, msgCourseAlreadyDone)
	default:
		s.reply(ctx, userID, fmt.Sprintf(msgRestored, session.CurrentLessonIndex+1))
		s.dispatch.ScheduleUserProgress(userID)
	}
	return nil
}

// restore returns the rebuilt session, or nil when the record holds no progress
func (s *CourseService) restore(ctx context.Context, userID int64) (*domain.Session, error) {
	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.LastLesson <= 0 && !user.Completed {
		return nil, nil
	}

	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}

	s.delayer.CancelAll(userID)

	session := domain.NewSession(userID)
	next := user.LastLesson + 1
	if next > len(lessons) {
		next = len(lessons)
	}
	if user.Completed {
		next = len(lessons)
		session.State = domain.StateFinished
	}
	for i := 0; i < next; i++ {
		session.MarkCompleted(i)
	}
	session.CurrentLessonIndex = next
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save restored session: %w", err)
	}

	s.logger.Info("Session restored", zap.Int64("user_id", userID), zap.Int("lesson_index", next))
	return session, nil
}

// Progress reports how far the user is
func (s *CourseService) Progress(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}

	s.reply(ctx, userID, progressReport(session, len(lessons)))
	return nil
}

func progressReport(session *domain.Session, total int) string {
	done := len(session.CompletedLessons)
	if done > total {
		done = total
	}
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}

	var b strings.Builder
	b.WriteString("📈 <b>Your progress</b>\n\n")
	fmt.Fprintf(&b, "%s %d%%\n", progressBar(percent), percent)
	fmt.Fprintf(&b, "📚 Lessons: %d/%d\n", done, total)

	switch {
	case session.IsFinished():
		b.WriteString("🏆 Course completed\n")
	case session.Paused:
		b.WriteString("⏸ Paused\n")
	}

	if len(session.QuizResults) > 0 {
		fmt.Fprintf(&b, "🧠 Quizzes passed: %d, average %d%%\n", len(session.QuizResults), averagePercentage(session.QuizResults))
	}
	if n := len(session.AssessmentResults); n > 0 {
		last := session.AssessmentResults[n-1]
		fmt.Fprintf(&b, "🔍 Last self-assessment: %s\n", html.EscapeString(last.Range.Title))
	}
	return strings.TrimRight(b.String(), "\n")
}

func progressBar(percent int) string {
	const width = 10
	filled := percent * width / 100
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

// SetEmail stores the address for the completion e-mail
func (s *CourseService) SetEmail(ctx context.Context, userID int64, address string) error {
	address = strings.TrimSpace(address)
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		s.reply(ctx, userID, msgEmailInvalid)
		return nil
	}

	if err := s.users.SetEmail(ctx, userID, parsed.Address); err != nil {
		return fmt.Errorf("save email: %w", err)
	}
	s.reply(ctx, userID, fmt.Sprintf(msgEmailSaved, html.EscapeString(parsed.Address)))
	return nil
}

func (s *CourseService) reply(ctx context.Context, userID int64, text string) {
	if err := s.transport.Send(ctx, userID, domain.TextMessage(text)); err != nil {
		s.logger.Warn("Failed to send message", zap.Int64("user_id", userID), zap.Error(err))
	}
}
