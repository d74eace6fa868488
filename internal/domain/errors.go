package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnreachable means the recipient blocked the bot or deleted the chat
	ErrUnreachable = errors.New("recipient unreachable")

	// ErrOverloaded means no concurrency slot was available
	ErrOverloaded = errors.New("system overloaded")

	// ErrUnsupportedLesson means the lesson cannot be rendered
	ErrUnsupportedLesson = errors.New("unsupported lesson")

	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoActiveQuiz       = errors.New("no active quiz")
	ErrNoActiveAssessment = errors.New("no active assessment")
)

// RateLimitedError is returned when the transport asks to slow down
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// ErrorKind groups failures by how the progression reacts to them
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindUnreachable
	KindRateLimited
	KindOverloaded
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindRateLimited:
		return "rate_limited"
	case KindOverloaded:
		return "overloaded"
	case KindUnsupported:
		return "unsupported"
	default:
		return "transient"
	}
}

// Classify maps an error onto the failure taxonomy. Unknown errors are transient.
func Classify(err error) ErrorKind {
	var rl *RateLimitedError
	switch {
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.As(err, &rl):
		return KindRateLimited
	case errors.Is(err, ErrOverloaded):
		return KindOverloaded
	case errors.Is(err, ErrUnsupportedLesson):
		return KindUnsupported
	default:
		return KindTransient
	}
}

// RetryAfter extracts the transport requested pause from a rate limit error
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
