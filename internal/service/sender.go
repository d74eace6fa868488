package service

import (
	"context"
	"fmt"

	"coursebot/internal/domain"

	"go.uber.org/zap"
)

// controlsPlaceholder carries the keyboard of lessons whose media cannot hold buttons
const controlsPlaceholder = "======="

// LessonSender renders lessons into transport messages and delivers them in order
type LessonSender struct {
	transport Transport
	logger    *zap.Logger
}

// NewLessonSender creates a lesson sender
func NewLessonSender(transport Transport, logger *zap.Logger) *LessonSender {
	return &LessonSender{transport: transport, logger: logger}
}

// Render converts a lesson into the messages that represent it
func (s *LessonSender) Render(lesson domain.Lesson) ([]domain.Outgoing, error) {
	switch body := lesson.Body.(type) {
	case domain.TextBody:
		return []domain.Outgoing{domain.TextMessage(lesson.Content, lesson.Buttons...)}, nil
	case domain.PhotoBody:
		return []domain.Outgoing{media(domain.MessagePhoto, body.Media, lesson)}, nil
	case domain.VideoBody:
		return []domain.Outgoing{media(domain.MessageVideo, body.Media, lesson)}, nil
	case domain.DocumentBody:
		return []domain.Outgoing{media(domain.MessageDocument, body.Media, lesson)}, nil
	case domain.DocumentsBody:
		out := make([]domain.Outgoing, 0, len(body.Items))
		for i, item := range body.Items {
			msg := domain.Outgoing{Kind: domain.MessageDocument, Media: item}
			if i == 0 {
				msg.Text = lesson.Content
			}
			if i == len(body.Items)-1 {
				msg.Buttons = lesson.Buttons
			}
			out = append(out, msg)
		}
		return out, nil
	case domain.VideoNoteBody:
		out := []domain.Outgoing{{Kind: domain.MessageVideoNote, Media: body.Media}}
		if lesson.Content != "" || len(lesson.Buttons) > 0 {
			text := lesson.Content
			if text == "" {
				text = "⭕️"
			}
			out = append(out, domain.TextMessage(text, lesson.Buttons...))
		}
		return out, nil
	case domain.MediaGroupBody:
		out := []domain.Outgoing{{Kind: domain.MessageAlbum, Text: lesson.Content, Album: body.Items}}
		if len(lesson.Buttons) > 0 {
			out = append(out, domain.TextMessage(controlsPlaceholder, lesson.Buttons...))
		}
		return out, nil
	case domain.QuizBody, domain.AssessmentBody:
		return nil, fmt.Errorf("lesson %d: %w: %s is an interactive lesson", lesson.Index, domain.ErrUnsupportedLesson, body.Kind())
	default:
		return nil, fmt.Errorf("lesson %d: %w", lesson.Index, domain.ErrUnsupportedLesson)
	}
}

func media(kind domain.MessageKind, ref domain.MediaRef, lesson domain.Lesson) domain.Outgoing {
	return domain.Outgoing{Kind: kind, Text: lesson.Content, Media: ref, Buttons: lesson.Buttons}
}

// Send delivers the lesson. The first failing message aborts the rest.
func (s *LessonSender) Send(ctx context.Context, userID int64, lesson domain.Lesson) error {
	msgs, err := s.Render(lesson)
	if err != nil {
		return err
	}
	for i, msg := range msgs {
		if err := s.transport.Send(ctx, userID, msg); err != nil {
			return fmt.Errorf("send lesson %d part %d: %w", lesson.Index, i+1, err)
		}
	}

	s.logger.Debug("Lesson delivered",
		zap.Int64("user_id", userID),
		zap.Int("lesson_index", lesson.Index),
		zap.String("kind", string(lesson.Kind())),
		zap.Int("messages", len(msgs)),
	)
	return nil
}
