package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QuizQuestion is a single choice question
type QuizQuestion struct {
	Question    string   `json:"question" yaml:"question"`
	Options     []string `json:"options" yaml:"options"`
	Correct     int      `json:"correct" yaml:"correct"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Quiz is a graded test; PassScore is a percentage
type Quiz struct {
	Title     string         `json:"title" yaml:"title"`
	PassScore int            `json:"passScore" yaml:"passScore"`
	Questions []QuizQuestion `json:"questions" yaml:"questions"`
}

// Validate checks the quiz is answerable and gradable
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return errors.New("title is required")
	}
	if q.PassScore <= 0 || q.PassScore > 100 {
		return fmt.Errorf("passScore must be between 1 and 100, got %d", q.PassScore)
	}
	if len(q.Questions) == 0 {
		return errors.New("questions cannot be empty")
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Question) == "" {
			return fmt.Errorf("question %d: text is required", i)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("question %d: must have at least 2 options", i)
		}
		if question.Correct < 0 || question.Correct >= len(question.Options) {
			return fmt.Errorf("question %d: correct answer index %d is invalid", i, question.Correct)
		}
		for j, option := range question.Options {
			if strings.TrimSpace(option) == "" {
				return fmt.Errorf("question %d, option %d: must be non-empty", i, j)
			}
		}
	}
	return nil
}

// QuizProgress is the sub-state of an active quiz
type QuizProgress struct {
	LessonIndex   int   `json:"lesson_index"`
	QuestionIndex int   `json:"question_index"`
	Answers       []int `json:"answers"`
	Attempt       int   `json:"attempt"`
}

// QuizAnswer is one graded answer
type QuizAnswer struct {
	Question    string `json:"question"`
	Selected    int    `json:"selected"`
	Correct     int    `json:"correct"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation,omitempty"`
}

// QuizResult is the outcome of a finished quiz
type QuizResult struct {
	LessonIndex int          `json:"lesson_index"`
	QuizTitle   string       `json:"quiz_title"`
	Score       int          `json:"score"`
	Total       int          `json:"total"`
	Percentage  int          `json:"percentage"`
	Passed      bool         `json:"passed"`
	Answers     []QuizAnswer `json:"answers"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Grade scores the given answers against the quiz
func (q Quiz) Grade(lessonIndex int, answers []int) QuizResult {
	result := QuizResult{
		LessonIndex: lessonIndex,
		QuizTitle:   q.Title,
		Total:       len(q.Questions),
		CompletedAt: time.Now(),
	}
	for i, question := range q.Questions {
		selected := -1
		if i < len(answers) {
			selected = answers[i]
		}
		correct := selected == question.Correct
		if correct {
			result.Score++
		}
		result.Answers = append(result.Answers, QuizAnswer{
			Question:    question.Question,
			Selected:    selected,
			Correct:     question.Correct,
			IsCorrect:   correct,
			Explanation: question.Explanation,
		})
	}
	if result.Total > 0 {
		result.Percentage = result.Score * 100 / result.Total
	}
	result.Passed = result.Percentage >= q.PassScore
	return result
}

// OptionLetter returns A, B, C... for an option index
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// AssessmentQuestion is a yes/no self-assessment question
type AssessmentQuestion struct {
	Question string `json:"question" yaml:"question"`
}

// AssessmentRange maps a count of "yes" answers onto a verdict
type AssessmentRange struct {
	Min         int    `json:"min" yaml:"min"`
	Max         int    `json:"max" yaml:"max"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Advice      string `json:"advice,omitempty" yaml:"advice,omitempty"`
}

// Assessment is an ungraded self-check
type Assessment struct {
	Title       string               `json:"title" yaml:"title"`
	Description string               `json:"description" yaml:"description"`
	Questions   []AssessmentQuestion `json:"questions" yaml:"questions"`
	Ranges      []AssessmentRange    `json:"ranges" yaml:"ranges"`
}

// Validate checks the assessment is complete
func (a Assessment) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("title is required")
	}
	if len(a.Questions) == 0 {
		return errors.New("questions cannot be empty")
	}
	if len(a.Ranges) == 0 {
		return errors.New("ranges cannot be empty")
	}
	for i, r := range a.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("range %d: min %d is greater than max %d", i, r.Min, r.Max)
		}
		if strings.TrimSpace(r.Title) == "" {
			return fmt.Errorf("range %d: title is required", i)
		}
	}
	return nil
}

// RangeFor finds the range that contains the given count of positive answers
func (a Assessment) RangeFor(yes int) (AssessmentRange, bool) {
	for _, r := range a.Ranges {
		if yes >= r.Min && yes <= r.Max {
			return r, true
		}
	}
	return AssessmentRange{}, false
}

// AssessmentProgress is the sub-state of an active self-assessment
type AssessmentProgress struct {
	LessonIndex   int    `json:"lesson_index"`
	QuestionIndex int    `json:"question_index"`
	Answers       []bool `json:"answers"`
}

// YesCount counts positive answers so far
func (p AssessmentProgress) YesCount() int {
	n := 0
	for _, a := range p.Answers {
		if a {
			n++
		}
	}
	return n
}

// AssessmentResult is the outcome of a finished self-assessment
type AssessmentResult struct {
	LessonIndex    int             `json:"lesson_index"`
	QuizTitle      string          `json:"quiz_title"`
	YesCount       int             `json:"yes_count"`
	TotalQuestions int             `json:"total_questions"`
	Range          AssessmentRange `json:"range"`
	CompletedAt    time.Time       `json:"completed_at"`
}
