package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DailyService resumes every active user on a cron schedule
type DailyService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	transport Transport
	dispatch  Dispatcher
	logger    *zap.Logger

	spec     string
	timezone string
	parser   cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

// NewDailyService creates the daily resume job. spec is a standard 5 field cron expression.
func NewDailyService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	transport Transport,
	dispatch Dispatcher,
	spec, timezone string,
	logger *zap.Logger,
) *DailyService {
	return &DailyService{
		users:     users,
		sessions:  sessions,
		transport: transport,
		dispatch:  dispatch,
		logger:    logger,
		spec:      spec,
		timezone:  timezone,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the job and starts the cron runner
func (s *DailyService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := s.location()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.spec, func() { s.Run(ctx) }); err != nil {
		return fmt.Errorf("invalid daily cron %q: %w", s.spec, err)
	}
	s.c = c
	s.c.Start()

	s.logger.Info("Daily schedule started", zap.String("cron", s.spec), zap.String("tz", loc.String()))
	return nil
}

// Stop waits for a running tick to finish
func (s *DailyService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

// Run performs one tick: idle users are dispatched, users waiting for the
// continue control get a reminder.
func (s *DailyService) Run(ctx context.Context) {
	ids, err := s.users.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active users", zap.Error(err))
		return
	}

	dispatched, reminded := 0, 0
	for _, userID := range ids {
		if ctx.Err() != nil {
			return
		}
		session, err := loadSession(ctx, s.sessions, userID)
		if err != nil {
			s.logger.Warn("Failed to load session", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if session.Paused || session.IsFinished() {
			continue
		}

		switch {
		case session.IsWaitingForNext():
			if err := s.transport.Send(ctx, userID, domain.TextMessage(msgDailyReminder)); err != nil {
				s.logger.Warn("Failed to send reminder", zap.Int64("user_id", userID), zap.Error(err))
				continue
			}
			reminded++
		case !session.InSubFlow():
			if s.dispatch.ScheduleUserProgress(userID) {
				dispatched++
			}
		}
	}

	s.logger.Info("Daily tick completed",
		zap.Int("users", len(ids)),
		zap.Int("dispatched", dispatched),
		zap.Int("reminded", reminded),
	)
}

func (s *DailyService) location() *time.Location {
	tz := strings.TrimSpace(s.timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn("Invalid timezone, falling back to local", zap.String("tz", tz), zap.Error(err))
		return time.Local
	}
	return loc
}
