package domain

import (
	"strings"
	"time"
)

// LessonKind names a lesson variant as written in the course file
type LessonKind string

const (
	KindText       LessonKind = "text"
	KindPhoto      LessonKind = "photo"
	KindVideo      LessonKind = "video"
	KindDocument   LessonKind = "document"
	KindDocuments  LessonKind = "documents"
	KindVideoNote  LessonKind = "video_note"
	KindMediaGroup LessonKind = "media_group"
	KindQuiz       LessonKind = "quiz"
	KindAssessment LessonKind = "assessment_quiz"
)

// Lesson is one step of the course. Content is HTML already reduced to the
// tag subset the transport accepts.
type Lesson struct {
	Index   int
	Day     int
	Title   string
	Content string
	Buttons [][]Button
	Delay   time.Duration
	Body    LessonBody
}

// LessonBody is the closed set of lesson variants. Only types in this
// package implement it.
type LessonBody interface {
	Kind() LessonKind
	lessonBody()
}

type TextBody struct{}

type PhotoBody struct{ Media MediaRef }

type VideoBody struct{ Media MediaRef }

type DocumentBody struct{ Media MediaRef }

// DocumentsBody is a set of files delivered as separate messages
type DocumentsBody struct{ Items []MediaRef }

// VideoNoteBody is a round video; it cannot carry a caption or buttons
type VideoNoteBody struct{ Media MediaRef }

// MediaGroupBody is an album of photos and videos
type MediaGroupBody struct{ Items []MediaRef }

type QuizBody struct{ Quiz Quiz }

type AssessmentBody struct{ Assessment Assessment }

func (TextBody) Kind() LessonKind       { return KindText }
func (PhotoBody) Kind() LessonKind      { return KindPhoto }
func (VideoBody) Kind() LessonKind      { return KindVideo }
func (DocumentBody) Kind() LessonKind   { return KindDocument }
func (DocumentsBody) Kind() LessonKind  { return KindDocuments }
func (VideoNoteBody) Kind() LessonKind  { return KindVideoNote }
func (MediaGroupBody) Kind() LessonKind { return KindMediaGroup }
func (QuizBody) Kind() LessonKind       { return KindQuiz }
func (AssessmentBody) Kind() LessonKind { return KindAssessment }

func (TextBody) lessonBody()       {}
func (PhotoBody) lessonBody()      {}
func (VideoBody) lessonBody()      {}
func (DocumentBody) lessonBody()   {}
func (DocumentsBody) lessonBody()  {}
func (VideoNoteBody) lessonBody()  {}
func (MediaGroupBody) lessonBody() {}
func (QuizBody) lessonBody()       {}
func (AssessmentBody) lessonBody() {}

// Kind returns the variant of the lesson body, or an empty kind when the body is missing
func (l Lesson) Kind() LessonKind {
	if l.Body == nil {
		return ""
	}
	return l.Body.Kind()
}

var continueMarkers = []string{"next", "dalej"}

// HasContinue reports whether one of the lesson buttons is the continue
// control that must be pressed before the course moves on.
func (l Lesson) HasContinue() bool {
	for _, row := range l.Buttons {
		for _, b := range row {
			if b.IsContinue() {
				return true
			}
		}
	}
	return false
}

// IsContinue reports whether the button resumes the lesson sequence
func (b Button) IsContinue() bool {
	if b.URL != "" {
		return false
	}
	data := strings.ToLower(b.Data)
	text := strings.ToLower(b.Text)
	for _, m := range continueMarkers {
		if strings.Contains(data, m) || (data == "" && strings.Contains(text, m)) {
			return true
		}
	}
	return false
}
