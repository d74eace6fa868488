package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid mailer config")
	ErrSendFailed    = errors.New("failed to send email")
)

const completionSubject = "You have completed the course 🎉"

// Client is the part of the Postmark API client the mailer uses
type Client interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Config holds Postmark credentials and the sender address
type Config struct {
	ServerToken  string
	AccountToken string
	From         string
}

// Postmark sends transactional e-mails through Postmark
type Postmark struct {
	client Client
	from   string
	logger *zap.Logger
}

// NewPostmark creates a Postmark mailer. Both tokens and the sender are required.
func NewPostmark(cfg Config, logger *zap.Logger) (*Postmark, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: account token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	return NewWithClient(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg.From, logger), nil
}

// NewWithClient creates a mailer over an existing client
func NewWithClient(client Client, from string, logger *zap.Logger) *Postmark {
	return &Postmark{client: client, from: from, logger: logger}
}

// SendCompletion congratulates a user on finishing the course
func (p *Postmark) SendCompletion(ctx context.Context, to, name string) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.from,
		To:         to,
		Subject:    completionSubject,
		Tag:        "course-completed",
		HTMLBody:   completionBody(name),
		TextBody:   fmt.Sprintf("Congratulations %s! You have completed the whole course.", name),
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}

	p.logger.Info("Completion email sent", zap.String("message_id", resp.MessageID))
	return nil
}

func completionBody(name string) string {
	return fmt.Sprintf(
		"<h2>Congratulations, %s!</h2><p>You have completed the whole course. Thank you for learning with us.</p>",
		html.EscapeString(name),
	)
}
