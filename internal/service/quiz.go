package service

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"coursebot/internal/domain"
	"coursebot/internal/repository"

	"go.uber.org/zap"
)

// QuizService runs the graded quiz sub-flow
type QuizService struct {
	sessions  repository.SessionRepository
	course    repository.CourseRepository
	transport Transport
	dispatch  Dispatcher
	logger    *zap.Logger
}

// NewQuizService creates a quiz service
func NewQuizService(
	sessions repository.SessionRepository,
	course repository.CourseRepository,
	transport Transport,
	dispatch Dispatcher,
	logger *zap.Logger,
) *QuizService {
	return &QuizService{
		sessions:  sessions,
		course:    course,
		transport: transport,
		dispatch:  dispatch,
		logger:    logger,
	}
}

// Opening returns the messages that start a quiz: lesson text, intro, first question
func (s *QuizService) Opening(lesson domain.Lesson, quiz domain.Quiz, attempt int) []domain.Outgoing {
	var out []domain.Outgoing
	if lesson.Content != "" {
		out = append(out, domain.TextMessage(lesson.Content))
	}
	out = append(out, domain.TextMessage(fmt.Sprintf(msgQuizIntro,
		html.EscapeString(quiz.Title), len(quiz.Questions), quiz.PassScore, attempt)))
	return append(out, questionMessage(quiz, 0))
}

// Begin hands the conversation to the quiz of the given lesson
func (s *QuizService) Begin(session *domain.Session, lessonIndex int) {
	session.State = domain.StateWaitingQuiz
	session.Quiz = &domain.QuizProgress{LessonIndex: lessonIndex, Attempt: 1}
}

func questionMessage(quiz domain.Quiz, index int) domain.Outgoing {
	q := quiz.Questions[index]
	buttons := make([][]domain.Button, 0, len(q.Options))
	for i, option := range q.Options {
		buttons = append(buttons, []domain.Button{{
			Text: domain.OptionLetter(i) + ") " + option,
			Data: CallbackQuizAnswerPrefix + strconv.Itoa(i),
		}})
	}
	text := fmt.Sprintf(msgQuizQuestion, index+1, len(quiz.Questions), html.EscapeString(q.Question))
	return domain.TextMessage(text, buttons...)
}

// Answer records the chosen option of the current question
func (s *QuizService) Answer(ctx context.Context, userID int64, option int) error {
	session, quiz, err := s.active(ctx, userID)
	if err != nil || session == nil {
		return err
	}
	p := session.Quiz
	if p.QuestionIndex >= len(quiz.Questions) {
		// all answered, waiting for a retry
		return nil
	}
	question := quiz.Questions[p.QuestionIndex]
	if option < 0 || option >= len(question.Options) {
		return nil
	}

	p.Answers = append(p.Answers, option)
	p.QuestionIndex++
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save quiz answer: %w", err)
	}

	s.send(ctx, userID, domain.TextMessage(answerFeedback(question, option)))

	if p.QuestionIndex < len(quiz.Questions) {
		s.send(ctx, userID, questionMessage(quiz, p.QuestionIndex))
		return nil
	}
	return s.finish(ctx, session, quiz)
}

func answerFeedback(q domain.QuizQuestion, option int) string {
	var text string
	if option == q.Correct {
		text = fmt.Sprintf(msgQuizCorrect, domain.OptionLetter(option), html.EscapeString(q.Options[option]))
	} else {
		text = fmt.Sprintf(msgQuizWrong,
			domain.OptionLetter(option), html.EscapeString(q.Options[option]),
			domain.OptionLetter(q.Correct), html.EscapeString(q.Options[q.Correct]))
	}
	if q.Explanation != "" {
		text += fmt.Sprintf(msgQuizExplanation, html.EscapeString(q.Explanation))
	}
	return text
}

func (s *QuizService) finish(ctx context.Context, session *domain.Session, quiz domain.Quiz) error {
	userID := session.UserID
	p := session.Quiz
	result := quiz.Grade(p.LessonIndex, p.Answers)

	s.logger.Info("Quiz finished",
		zap.Int64("user_id", userID),
		zap.Int("lesson_index", p.LessonIndex),
		zap.Int("percentage", result.Percentage),
		zap.Bool("passed", result.Passed),
		zap.Int("attempt", p.Attempt),
	)

	if !result.Passed {
		s.send(ctx, userID, domain.TextMessage(
			fmt.Sprintf(msgQuizFailed, result.Percentage, quiz.PassScore),
			[]domain.Button{{Text: "🔄 Try again", Data: CallbackQuizRetry}},
		))
		s.send(ctx, userID, domain.TextMessage(resultDetails(result)))
		return nil
	}

	session.QuizResults = append(session.QuizResults, result)
	session.MarkCompleted(p.LessonIndex)
	session.CurrentLessonIndex = p.LessonIndex + 1
	session.Quiz = nil
	session.State = domain.StateIdle
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save passed quiz: %w", err)
	}

	s.send(ctx, userID, domain.TextMessage(fmt.Sprintf(msgQuizPassed, result.Percentage)))
	s.send(ctx, userID, domain.TextMessage(resultDetails(result)))
	s.dispatch.ScheduleUserProgress(userID)
	return nil
}

func resultDetails(result domain.QuizResult) string {
	var b strings.Builder
	b.WriteString("📋 <b>Detailed results:</b>\n\n")
	for i, a := range result.Answers {
		icon := "✅"
		if !a.IsCorrect {
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s <b>Question %d:</b>\n%s\n", icon, i+1, html.EscapeString(a.Question))
		if a.Selected >= 0 {
			fmt.Fprintf(&b, "Your answer: %s", domain.OptionLetter(a.Selected))
		} else {
			b.WriteString("Your answer: none")
		}
		if !a.IsCorrect {
			fmt.Fprintf(&b, " | Correct: %s", domain.OptionLetter(a.Correct))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Retry restarts a failed quiz
func (s *QuizService) Retry(ctx context.Context, userID int64) error {
	session, quiz, err := s.active(ctx, userID)
	if err != nil || session == nil {
		return err
	}
	p := session.Quiz
	if p.QuestionIndex < len(quiz.Questions) {
		return nil
	}

	p.QuestionIndex = 0
	p.Answers = nil
	p.Attempt++
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save quiz retry: %w", err)
	}

	s.send(ctx, userID, domain.TextMessage(fmt.Sprintf(msgQuizRetry, p.Attempt)))
	s.send(ctx, userID, questionMessage(quiz, 0))
	return nil
}

// Results lists the passed quizzes of the user
func (s *QuizService) Results(ctx context.Context, userID int64) error {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return err
	}
	if len(session.QuizResults) == 0 {
		s.send(ctx, userID, domain.TextMessage(msgNoQuizResults))
		return nil
	}

	var b strings.Builder
	b.WriteString("📊 <b>Your quiz results:</b>\n\n")
	for i, r := range session.QuizResults {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n   📈 %d%% (%d/%d)\n   📅 %s\n\n",
			i+1, html.EscapeString(r.QuizTitle), r.Percentage, r.Score, r.Total, r.CompletedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "📊 <b>Average: %d%%</b>", averagePercentage(session.QuizResults))
	s.send(ctx, userID, domain.TextMessage(b.String()))
	return nil
}

func averagePercentage(results []domain.QuizResult) int {
	if len(results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range results {
		sum += r.Percentage
	}
	return (sum + len(results)/2) / len(results)
}

// active loads the session and its quiz. A nil session means there is no quiz to act on.
func (s *QuizService) active(ctx context.Context, userID int64) (*domain.Session, domain.Quiz, error) {
	session, err := loadSession(ctx, s.sessions, userID)
	if err != nil {
		return nil, domain.Quiz{}, err
	}
	if !session.IsWaitingForQuiz() || session.Quiz == nil {
		return nil, domain.Quiz{}, nil
	}

	lessons, err := s.course.Lessons(ctx)
	if err != nil {
		return nil, domain.Quiz{}, fmt.Errorf("load course: %w", err)
	}
	idx := session.Quiz.LessonIndex
	if idx < len(lessons) {
		if body, ok := lessons[idx].Body.(domain.QuizBody); ok {
			return session, body.Quiz, nil
		}
	}

	// the course changed under an active quiz, let the state machine pick up again
	s.logger.Warn("Active quiz no longer in course", zap.Int64("user_id", userID), zap.Int("lesson_index", idx))
	session.Quiz = nil
	session.State = domain.StateIdle
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, domain.Quiz{}, err
	}
	return nil, domain.Quiz{}, domain.ErrNoActiveQuiz
}

func (s *QuizService) send(ctx context.Context, userID int64, msg domain.Outgoing) {
	if err := s.transport.Send(ctx, userID, msg); err != nil {
		s.logger.Warn("Failed to send quiz message", zap.Int64("user_id", userID), zap.Error(err))
	}
}
