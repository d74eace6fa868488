package telegram

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"coursebot/internal/domain"

	tele "gopkg.in/telebot.v3"
)

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// unreachableErrors mean the chat will not accept messages until the user acts
var unreachableErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
	tele.ErrChatNotFound,
	tele.ErrKickedFromGroup,
}

// Classify wraps a Bot API error so domain.Classify can tell how to react to it
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &domain.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}

	for _, target := range unreachableErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 403:
			return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
		case 429:
			return &domain.RateLimitedError{RetryAfter: parseRetryAfter(apiErr.Description), Err: err}
		}
	}

	// errors not known to telebot only carry the API description
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many requests"):
		return &domain.RateLimitedError{RetryAfter: parseRetryAfter(msg), Err: err}
	case strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "bot was blocked"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	return err
}

func parseRetryAfter(s string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(s))
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}
