package domain

import (
	"sort"
	"time"
)

// ProgressState is the persisted position of a user in the progression state machine
type ProgressState string

const (
	StateIdle              ProgressState = "idle"
	StateSending           ProgressState = "sending"
	StateWaitingNext       ProgressState = "waiting_next"
	StateWaitingQuiz       ProgressState = "waiting_quiz"
	StateWaitingAssessment ProgressState = "waiting_assessment"
	StateFinished          ProgressState = "finished"
)

// Valid reports whether s is one of the known states
func (s ProgressState) Valid() bool {
	switch s {
	case StateIdle, StateSending, StateWaitingNext, StateWaitingQuiz, StateWaitingAssessment, StateFinished:
		return true
	}
	return false
}

// Session is the per-user progression record kept in the session store.
// A single State field replaces independent processing/waiting flags, so the
// waiting states are mutually exclusive and never overlap with sending.
type Session struct {
	UserID             int64               `json:"user_id"`
	CurrentLessonIndex int                 `json:"current_lesson_index"`
	CompletedLessons   []int               `json:"completed_lessons"`
	State              ProgressState       `json:"state"`
	Paused             bool                `json:"paused"`
	SendAttempts       int                 `json:"send_attempts"`
	Quiz               *QuizProgress       `json:"quiz,omitempty"`
	Assessment         *AssessmentProgress `json:"assessment,omitempty"`
	QuizResults        []QuizResult        `json:"quiz_results,omitempty"`
	AssessmentResults  []AssessmentResult  `json:"assessment_results,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewSession returns a fresh session positioned at the first lesson
func NewSession(userID int64) *Session {
	return &Session{
		UserID:           userID,
		CompletedLessons: []int{},
		State:            StateIdle,
		UpdatedAt:        time.Now(),
	}
}

func (s *Session) IsProcessing() bool           { return s.State == StateSending }
func (s *Session) IsWaitingForNext() bool       { return s.State == StateWaitingNext }
func (s *Session) IsWaitingForQuiz() bool       { return s.State == StateWaitingQuiz }
func (s *Session) IsWaitingForAssessment() bool { return s.State == StateWaitingAssessment }
func (s *Session) IsFinished() bool             { return s.State == StateFinished }

// InSubFlow reports whether a quiz or self-assessment owns the conversation
func (s *Session) InSubFlow() bool {
	return s.State == StateWaitingQuiz || s.State == StateWaitingAssessment
}

// HasCompleted reports whether the lesson index was already delivered
func (s *Session) HasCompleted(index int) bool {
	for _, i := range s.CompletedLessons {
		if i == index {
			return true
		}
	}
	return false
}

// MarkCompleted records a delivered lesson. It returns false when the index
// was already present and leaves the set untouched.
func (s *Session) MarkCompleted(index int) bool {
	if s.HasCompleted(index) {
		return false
	}
	s.CompletedLessons = append(s.CompletedLessons, index)
	sort.Ints(s.CompletedLessons)
	return true
}

// Reset wipes progress back to the first lesson
func (s *Session) Reset() {
	s.CurrentLessonIndex = 0
	s.CompletedLessons = []int{}
	s.State = StateIdle
	s.Paused = false
	s.SendAttempts = 0
	s.Quiz = nil
	s.Assessment = nil
	s.QuizResults = nil
	s.AssessmentResults = nil
}

// Normalize repairs fields that may be missing in records written by older
// versions or other backends.
func (s *Session) Normalize() {
	if !s.State.Valid() {
		s.State = StateIdle
	}
	if s.CompletedLessons == nil {
		s.CompletedLessons = []int{}
	}
	if s.CurrentLessonIndex < 0 {
		s.CurrentLessonIndex = 0
	}
}

// Touch updates the modification timestamp
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}
