package service

import (
	"context"
	"errors"

	"coursebot/internal/domain"

	"go.uber.org/zap"
)

// ResumeInterrupted dispatches the users whose progression was cut short by a
// restart. Sessions left in the sending state are always picked up; idle ones
// only when includeIdle is set, since their delayed resume lived in memory.
// Users without a stored session are left alone.
func (s *ProgressService) ResumeInterrupted(ctx context.Context, includeIdle bool) int {
	ids, err := s.users.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active users for recovery", zap.Error(err))
		return 0
	}

	dispatched := 0
	for _, userID := range ids {
		if ctx.Err() != nil {
			break
		}

		session, err := s.sessions.Get(ctx, userID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("Failed to load session for recovery", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if session.Paused {
			continue
		}

		switch session.State {
		case domain.StateSending:
		case domain.StateIdle:
			if !includeIdle {
				continue
			}
		default:
			continue
		}

		if s.dispatch.ScheduleUserProgress(userID) {
			dispatched++
		}
	}

	s.logger.Info("Interrupted sessions resumed",
		zap.Int("users", len(ids)),
		zap.Int("dispatched", dispatched),
		zap.Bool("include_idle", includeIdle),
	)
	return dispatched
}
