package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/repository"
	"coursebot/internal/scheduler"

	"go.uber.org/zap"
)

// ProgressConfig tunes retry behaviour of lesson delivery
type ProgressConfig struct {
	// MaxAttempts is the number of delivery attempts of one lesson before giving up
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	DefaultRetryAfter time.Duration
}

// Notifier reports noteworthy events to administrators
type Notifier interface {
	NotifyNewUser(ctx context.Context, user *domain.User)
	NotifyFailure(ctx context.Context, userID int64, err error)
	NotifyCompleted(ctx context.Context, userID int64)
}

// ProgressService is the lesson progression state machine. Advance is its
// only entry point and is driven by the dispatch gate.
type ProgressService struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	course   repository.CourseRepository

	transport Transport
	sender    *LessonSender
	slots     SlotManager
	delayer   Delayer
	dispatch  Dispatcher

	quiz       *QuizService
	assessment *AssessmentService
	notifier   Notifier
	mailer     Mailer

	cfg    ProgressConfig
	logger *zap.Logger
}

// ProgressDeps groups the collaborators of the progression service
type ProgressDeps struct {
	Sessions   repository.SessionRepository
	Users      repository.UserRepository
	Course     repository.CourseRepository
	Transport  Transport
	Slots      SlotManager
	Delayer    Delayer
	Dispatch   Dispatcher
	Quiz       *QuizService
	Assessment *AssessmentService
	Notifier   Notifier
	Mailer     Mailer
}

// NewProgressService creates the progression state machine
func NewProgressService(deps ProgressDeps, cfg ProgressConfig, logger *zap.Logger) *ProgressService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Minute
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 30 * time.Second
	}
	return &ProgressService{
		sessions:   deps.Sessions,
		users:      deps.Users,
		course:     deps.Course,
		transport:  deps.Transport,
		sender:     NewLessonSender(deps.Transport, logger),
		slots:      deps.Slots,
		delayer:    deps.Delayer,
		dispatch:   deps.Dispatch,
		quiz:       deps.Quiz,
		assessment: deps.Assessment,
		notifier:   deps.Notifier,
		mailer:     deps.Mailer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Advance runs the state machine for one user until it has to wait for the
// user, for a delay or for a retry.
func (s *ProgressService) Advance(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}

	if session.Paused {
		s.logger.Debug("Course paused, not advancing", zap.Int64("user_id", userID))
		return nil
	}

	switch session.State {
	case domain.StateWaitingQuiz:
		s.reply(ctx, userID, msgFinishQuizFirst)
		return nil
	case domain.StateWaitingAssessment:
		s.reply(ctx, userID, msgFinishAssessFirst)
		return nil
	case domain.StateWaitingNext:
		s.logger.Debug("Waiting for continue control", zap.Int64("user_id", userID))
		return nil
	}

	if !scheduler.HoldsSlot(ctx, userID) {
		if s.slots.IsProcessing(userID) {
			s.reply(ctx, userID, msgAlreadyProcessing)
			return nil
		}
		if !s.slots.TryAcquire(userID) {
			s.reply(ctx, userID, msgOverloaded)
			return domain.ErrOverloaded
		}
		defer s.slots.Release(userID)
	}

	// a sending state left behind by a crash is overwritten: the slot is ours now
	return s.run(ctx, session)
}

func (s *ProgressService) run(ctx context.Context, session *domain.Session) error {
	userID := session.UserID

	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}

	if session.CurrentLessonIndex >= len(lessons) && session.IsFinished() {
		s.reply(ctx, userID, msgCourseAlreadyDone)
		return nil
	}

	session.State = domain.StateSending
	s.persist(ctx, session)

	for {
		index := session.CurrentLessonIndex
		if index >= len(lessons) {
			return s.finish(ctx, session)
		}
		lesson := lessons[index]

		switch body := lesson.Body.(type) {
		case domain.QuizBody:
			return s.startSubFlow(ctx, session, s.quiz.Opening(lesson, body.Quiz, 1), func() {
				s.quiz.Begin(session, index)
			})
		case domain.AssessmentBody:
			return s.startSubFlow(ctx, session, s.assessment.Opening(lesson, body.Assessment), func() {
				s.assessment.Begin(session, index)
			})
		}

		if err := s.sender.Send(ctx, userID, lesson); err != nil {
			return s.handleSendError(ctx, session, err)
		}

		session.SendAttempts = 0
		if session.MarkCompleted(index) {
			if err := s.users.UpdateProgress(ctx, userID, index); err != nil {
				s.logger.Warn("Failed to update user progress",
					zap.Int64("user_id", userID),
					zap.Int("lesson_index", index),
					zap.Error(err),
				)
			}
		}
		session.CurrentLessonIndex++

		if lesson.HasContinue() {
			session.State = domain.StateWaitingNext
			s.persist(ctx, session)
			return nil
		}

		if lesson.Delay > 0 && session.CurrentLessonIndex < len(lessons) {
			session.State = domain.StateIdle
			s.persist(ctx, session)
			s.scheduleResume(userID, lesson.Delay)
			return nil
		}

		s.persist(ctx, session)
	}
}

// startSubFlow delivers the opening of a quiz or self-assessment and hands
// the conversation over to it. Delivery failures follow the lesson policy.
func (s *ProgressService) startSubFlow(ctx context.Context, session *domain.Session, opening []domain.Outgoing, begin func()) error {
	for _, msg := range opening {
		if err := s.transport.Send(ctx, session.UserID, msg); err != nil {
			return s.handleSendError(ctx, session, err)
		}
	}

	session.SendAttempts = 0
	begin()
	s.persist(ctx, session)
	s.logger.Info("Interactive lesson started",
		zap.Int64("user_id", session.UserID),
		zap.Int("lesson_index", session.CurrentLessonIndex),
		zap.String("state", string(session.State)),
	)
	return nil
}

func (s *ProgressService) finish(ctx context.Context, session *domain.Session) error {
	userID := session.UserID
	session.State = domain.StateFinished
	s.persist(ctx, session)

	s.reply(ctx, userID, msgCourseFinished)
	s.logger.Info("Course finished", zap.Int64("user_id", userID))

	if err := s.users.MarkCompleted(ctx, userID); err != nil {
		s.logger.Warn("Failed to mark course completed", zap.Int64("user_id", userID), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.NotifyCompleted(ctx, userID)
	}
	s.sendCompletionEmail(ctx, userID)
	return nil
}

func (s *ProgressService) sendCompletionEmail(ctx context.Context, userID int64) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil || user.Email == "" {
		return
	}
	if err := s.mailer.SendCompletion(ctx, user.Email, user.DisplayName()); err != nil {
		s.logger.Warn("Failed to send completion email", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// handleSendError applies the failure policy of a lesson delivery. Every
// branch leaves the session out of the sending state.
func (s *ProgressService) handleSendError(ctx context.Context, session *domain.Session, err error) error {
	userID := session.UserID
	kind := domain.Classify(err)

	switch kind {
	case domain.KindUnreachable:
		s.logger.Info("User unreachable, abandoning delivery", zap.Int64("user_id", userID), zap.Error(err))
		session.State = domain.StateIdle
		session.SendAttempts = 0
		s.persist(ctx, session)
		s.delayer.CancelAll(userID)
		if err := s.users.SetActive(ctx, userID, false); err != nil {
			s.logger.Warn("Failed to deactivate user", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil

	case domain.KindUnsupported:
		s.logger.Error("Lesson cannot be delivered",
			zap.Int64("user_id", userID),
			zap.Int("lesson_index", session.CurrentLessonIndex),
			zap.Error(err),
		)
		session.State = domain.StateIdle
		s.persist(ctx, session)
		s.reply(ctx, userID, msgSomethingWrong)
		if s.notifier != nil {
			s.notifier.NotifyFailure(ctx, userID, err)
		}
		return nil
	}

	session.SendAttempts++
	if session.SendAttempts >= s.cfg.MaxAttempts {
		s.logger.Error("Lesson delivery failed, retry budget exhausted",
			zap.Int64("user_id", userID),
			zap.Int("lesson_index", session.CurrentLessonIndex),
			zap.Int("attempts", session.SendAttempts),
			zap.Error(err),
		)
		session.State = domain.StateIdle
		session.SendAttempts = 0
		s.persist(ctx, session)
		s.delayer.CancelAll(userID)
		s.reply(ctx, userID, msgSomethingWrong)
		if s.notifier != nil {
			s.notifier.NotifyFailure(ctx, userID, err)
		}
		return nil
	}

	delay := s.retryDelay(err, session.SendAttempts)
	s.logger.Warn("Lesson delivery failed, retrying later",
		zap.Int64("user_id", userID),
		zap.Int("lesson_index", session.CurrentLessonIndex),
		zap.String("kind", kind.String()),
		zap.Int("attempt", session.SendAttempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	session.State = domain.StateIdle
	s.persist(ctx, session)
	s.scheduleResume(userID, delay)
	return nil
}

// retryDelay is exponential in the attempt number. A transport supplied
// pause is honoured even when it exceeds the cap.
func (s *ProgressService) retryDelay(err error, attempt int) time.Duration {
	backoff := s.cfg.RetryBaseDelay
	for i := 1; i < attempt && backoff < s.cfg.RetryMaxDelay; i++ {
		backoff *= 2
	}
	if backoff > s.cfg.RetryMaxDelay {
		backoff = s.cfg.RetryMaxDelay
	}

	if domain.Classify(err) != domain.KindRateLimited {
		return backoff
	}
	retryAfter, ok := domain.RetryAfter(err)
	if !ok {
		retryAfter = s.cfg.DefaultRetryAfter
	}
	if retryAfter > backoff {
		return retryAfter
	}
	return backoff
}

// scheduleResume arms a delayed continuation. At fire time it only
// dispatches if nothing moved the session out of idle in the meantime.
func (s *ProgressService) scheduleResume(userID int64, delay time.Duration) {
	s.delayer.Schedule(userID, func(ctx context.Context) error {
		session, err := loadSession(ctx, s.sessions, userID)
		if err != nil {
			return err
		}
		if session.State != domain.StateIdle || session.Paused {
			s.logger.Debug("Skipping resume, session moved on",
				zap.Int64("user_id", userID),
				zap.String("state", string(session.State)),
			)
			return nil
		}
		s.dispatch.ScheduleUserProgress(userID)
		return nil
	}, delay)
}

// ContinuePressed handles the continue control of a paused lesson sequence
func (s *ProgressService) ContinuePressed(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if !session.IsWaitingForNext() {
		s.logger.Debug("Continue pressed while not waiting",
			zap.Int64("user_id", userID),
			zap.String("state", string(session.State)),
		)
		return nil
	}

	session.State = domain.StateIdle
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save session before resume: %w", err)
	}
	s.dispatch.ScheduleUserProgress(userID)
	return nil
}

// Recover puts a user back into a resumable state after Advance failed.
// It never clears a waiting state set by a completed step.
func (s *ProgressService) Recover(ctx context.Context, userID int64, cause error) {
	s.logger.Error("Progression failed, recovering", zap.Int64("user_id", userID), zap.Error(cause))

	s.delayer.CancelAll(userID)

	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		s.logger.Error("Failed to load session during recovery", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if session.IsProcessing() {
		session.State = domain.StateIdle
		session.SendAttempts = 0
		s.persist(ctx, session)
	}

	if domain.Classify(cause) == domain.KindUnreachable {
		return
	}
	s.reply(ctx, userID, msgSomethingWrong)
	if s.notifier != nil {
		s.notifier.NotifyFailure(ctx, userID, cause)
	}
}

// CancelUserTasks drops every pending delayed continuation of the user
func (s *ProgressService) CancelUserTasks(userID int64) int {
	return s.delayer.CancelAll(userID)
}

// persist saves best-effort; the in-memory session stays authoritative for the current step
func (s *ProgressService) persist(ctx context.Context, session *domain.Session) {
	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Error("Failed to persist session",
			zap.Int64("user_id", session.UserID),
			zap.String("state", string(session.State)),
			zap.Error(err),
		)
	}
}

func (s *ProgressService) reply(ctx context.Context, userID int64, text string) {
	if err := s.transport.Send(ctx, userID, domain.TextMessage(text)); err != nil {
		s.logger.Warn("Failed to send message", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func loadSession(ctx context.Context, repo repository.SessionRepository, userID int64) (*domain.Session, error) {
	session, err := repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.NewSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", userID, err)
	}
	return session, nil
}
