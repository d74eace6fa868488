package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"go.uber.org/zap"
)

// AssessmentService runs the yes/no self-assessment sub-flow
type AssessmentService struct {
	sessions  repository.SessionRepository
	course    repository.CourseRepository
	transport Transport
	dispatch  Dispatcher
	logger    *zap.Logger
}

// NewAssessmentService creates an assessment service
func NewAssessmentService(
	sessions repository.SessionRepository,
	course repository.CourseRepository,
	transport Transport,
	dispatch Dispatcher,
	logger *zap.Logger,
) *AssessmentService {
	return &AssessmentService{
		sessions:  sessions,
		course:    course,
		transport: transport,
		dispatch:  dispatch,
		logger:    logger,
	}
}

// Opening returns the lesson text followed by the first question
func (s *AssessmentService) Opening(lesson domain.Lesson, a domain.Assessment) []domain.Outgoing {
	var out []domain.Outgoing
	if lesson.Content != "" {
		out = append(out, domain.TextMessage(lesson.Content))
	}
	return append(out, assessmentQuestion(a, 0))
}

// Begin hands the conversation to the self-assessment of the given lesson
func (s *AssessmentService) Begin(session *domain.Session, lessonIndex int) {
	session.State = domain.StateWaitingAssessment
	session.Assessment = &domain.AssessmentProgress{LessonIndex: lessonIndex}
}

func assessmentQuestion(a domain.Assessment, index int) domain.Outgoing {
	text := fmt.Sprintf(msgAssessQuestion, index+1, len(a.Questions), html.EscapeString(a.Questions[index].Question))
	return domain.TextMessage(text, []domain.Button{
		{Text: "✅ Yes", Data: CallbackAssessYes},
		{Text: "❌ No", Data: CallbackAssessNo},
	})
}

// Answer records a yes/no answer
func (s *AssessmentService) Answer(ctx context.Context, userID int64, yes bool) error {
	session, a, err := s.active(ctx, userID)
	if err != nil || session == nil {
		return err
	}
	p := session.Assessment
	if p.QuestionIndex >= len(a.Questions) {
		return nil
	}

	p.Answers = append(p.Answers, yes)
	p.QuestionIndex++

	if p.QuestionIndex < len(a.Questions) {
		if err := s.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("save assessment answer: %w", err)
		}
		s.send(ctx, userID, assessmentQuestion(a, p.QuestionIndex))
		return nil
	}

	yesCount := p.YesCount()
	r, ok := a.RangeFor(yesCount)
	if !ok {
		s.logger.Error("No assessment range matches",
			zap.Int64("user_id", userID),
			zap.Int("lesson_index", p.LessonIndex),
			zap.Int("yes_count", yesCount),
		)
		p.QuestionIndex = 0
		p.Answers = nil
		if err := s.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("save assessment restart: %w", err)
		}
		s.send(ctx, userID, domain.TextMessage(msgAssessRangeMissing))
		s.send(ctx, userID, assessmentQuestion(a, 0))
		return nil
	}

	session.AssessmentResults = append(session.AssessmentResults, domain.AssessmentResult{
		LessonIndex:    p.LessonIndex,
		QuizTitle:      a.Title,
		YesCount:       yesCount,
		TotalQuestions: len(a.Questions),
		Range:          r,
		CompletedAt:    time.Now(),
	})
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save assessment result: %w", err)
	}

	buttons := []domain.Button{{Text: "▶️ Continue", Data: CallbackAssessContinue}}
	if r.Advice != "" {
		buttons = append([]domain.Button{{Text: "💡 Advice", Data: CallbackAssessAdvice}}, buttons...)
	}
	s.send(ctx, userID, domain.TextMessage(fmt.Sprintf(msgAssessResult,
		html.EscapeString(a.Title), yesCount, len(a.Questions),
		html.EscapeString(r.Title), html.EscapeString(r.Description)), buttons))
	return nil
}

// ShowAdvice sends the advice of the latest result
func (s *AssessmentService) ShowAdvice(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if n := len(session.AssessmentResults); n > 0 && session.AssessmentResults[n-1].Range.Advice != "" {
		s.send(ctx, userID, domain.TextMessage(fmt.Sprintf(msgAssessAdvice,
			html.EscapeString(session.AssessmentResults[n-1].Range.Advice))))
	}
	return nil
}

// Continue closes a finished self-assessment and resumes the course
func (s *AssessmentService) Continue(ctx context.Context, userID int64) error {
	session, a, err := s.active(ctx, userID)
	if err != nil || session == nil {
		return err
	}
	p := session.Assessment
	if p.QuestionIndex < len(a.Questions) {
		return nil
	}

	session.MarkCompleted(p.LessonIndex)
	session.CurrentLessonIndex = p.LessonIndex + 1
	session.Assessment = nil
	session.State = domain.StateIdle
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save assessment continue: %w", err)
	}
	s.dispatch.ScheduleUserProgress(userID)
	return nil
}

// Results lists the completed self-assessments of the user
func (s *AssessmentService) Results(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if len(session.AssessmentResults) == 0 {
		s.send(ctx, userID, domain.TextMessage(msgNoAssessResults))
		return nil
	}

	var b strings.Builder
	b.WriteString("📋 <b>Your self-assessment results:</b>\n\n")
	for i, r := range session.AssessmentResults {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n   ✅ \"Yes\": %d/%d\n   🎯 %s\n   📅 %s\n\n",
			i+1, html.EscapeString(r.QuizTitle), r.YesCount, r.TotalQuestions,
			html.EscapeString(r.Range.Title), r.CompletedAt.Format("2006-01-02"))
	}
	s.send(ctx, userID, domain.TextMessage(strings.TrimRight(b.String(), "\n")))
	return nil
}

func (s *AssessmentService) active(ctx context.Context, userID int64) (*domain.Session, domain.Assessment, error) {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return nil, domain.Assessment{}, err
	}
	if !session.IsWaitingForAssessment() || session.Assessment == nil {
		return nil, domain.Assessment{}, nil
	}

	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return nil, domain.Assessment{}, fmt.Errorf("load course: %w", err)
	}
	idx := session.Assessment.LessonIndex
	if idx < len(lessons) {
		if body, ok := lessons[idx].Body.(domain.AssessmentBody); ok {
			return session, body.Assessment, nil
		}
	}

	s.logger.Warn("Active assessment no longer in course", zap.Int64("user_id", userID), zap.Int("lesson_index", idx))
	session.Assessment = nil
	session.State = domain.StateIdle
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, domain.Assessment{}, err
	}
	return nil, domain.Assessment{}, domain.ErrNoActiveAssessment
}

func (s *AssessmentService) send(ctx context.Context, userID int64, msg domain.Outgoing) {
	if err := s.transport.Send(ctx, userID, msg); err != nil {
		s.logger.Warn("Failed to send assessment message", zap.Int64("user_id", userID), zap.Error(err))
	}
}
