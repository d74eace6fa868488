package service

import (
	"context"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/scheduler"
)

// Transport delivers messages to a chat
type Transport interface {
	Send(ctx context.Context, userID int64, msg domain.Outgoing) error
}

// Dispatcher asks for a user's course to continue
type Dispatcher interface {
	ScheduleUserProgress(userID int64) bool
}

// Delayer runs actions later and can drop all of a user's pending actions
type Delayer interface {
	Schedule(userID int64, action scheduler.Action, delay time.Duration) string
	CancelAll(userID int64) int
}

// SlotManager hands out per-user concurrency slots
type SlotManager interface {
	IsProcessing(userID int64) bool
	TryAcquire(userID int64) bool
	Release(userID int64)
}

// Mailer sends the course completion e-mail
type Mailer interface {
	SendCompletion(ctx context.Context, to, name string) error
}
