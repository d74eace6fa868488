package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"coursebot/internal/domain"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type rawCourse struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Lessons     []rawLesson `json:"lessons" yaml:"lessons"`
}

type rawMedia struct {
	URL   string            `json:"url,omitempty" yaml:"url,omitempty"`
	Path  string            `json:"path,omitempty" yaml:"path,omitempty"`
	Items []domain.MediaRef `json:"items,omitempty" yaml:"items,omitempty"`
}

type rawLesson struct {
	Day        int                `json:"day" yaml:"day"`
	Title      string             `json:"title" yaml:"title"`
	Type       string             `json:"type" yaml:"type"`
	Content    string             `json:"content" yaml:"content"`
	Media      *rawMedia          `json:"media,omitempty" yaml:"media,omitempty"`
	Medias     []rawMedia         `json:"medias,omitempty" yaml:"medias,omitempty"`
	Buttons    [][]domain.Button  `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	DelayMs    int64              `json:"delay,omitempty" yaml:"delay,omitempty"`
	Quiz       *domain.Quiz       `json:"quiz,omitempty" yaml:"quiz,omitempty"`
	Assessment *domain.Assessment `json:"assessment,omitempty" yaml:"assessment,omitempty"`
}

// CourseRepo loads the course from a JSON or YAML file and caches it until Invalidate
type CourseRepo struct {
	path   string
	policy *bluemonday.Policy
	logger *zap.Logger

	mu      sync.RWMutex
	lessons []domain.Lesson
}

// NewCourseRepo creates a course repository reading path
func NewCourseRepo(path string, logger *zap.Logger) *CourseRepo {
	return &CourseRepo{
		path:   path,
		policy: telegramPolicy(),
		logger: logger,
	}
}

// telegramPolicy keeps only the HTML subset Telegram renders
func telegramPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote", "tg-spoiler")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "span")
	p.AllowElements("span")
	p.AllowURLSchemes("http", "https", "tg", "mailto")
	p.RequireParseableURLs(true)
	return p
}

// Lessons returns the ordered lesson sequence, loading it on first use
func (r *CourseRepo) Lessons(ctx context.Context) ([]domain.Lesson, error) {
	r.mu.RLock()
	cached := r.lessons
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lessons != nil {
		return r.lessons, nil
	}

	lessons, err := r.load()
	if err != nil {
		return nil, err
	}
	r.lessons = lessons
	return lessons, nil
}

// Invalidate drops the cached course so the next call reloads the file
func (r *CourseRepo) Invalidate() {
	r.mu.Lock()
	r.lessons = nil
	r.mu.Unlock()
	r.logger.Info("Course cache cleared", zap.String("path", r.path))
}

func (r *CourseRepo) load() ([]domain.Lesson, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read course: %w", err)
	}

	var raw rawCourse
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode course %s: %w", r.path, err)
	}

	lessons := make([]domain.Lesson, 0, len(raw.Lessons))
	quizzes, assessments := 0, 0
	for i, rl := range raw.Lessons {
		lesson, err := r.buildLesson(i, rl)
		if err != nil {
			return nil, err
		}
		switch lesson.Body.(type) {
		case domain.QuizBody:
			quizzes++
		case domain.AssessmentBody:
			assessments++
		}
		lessons = append(lessons, lesson)
	}

	r.logger.Info("Course loaded",
		zap.String("name", raw.Name),
		zap.Int("lessons", len(lessons)),
		zap.Int("quizzes", quizzes),
		zap.Int("assessments", assessments),
	)
	return lessons, nil
}

func (r *CourseRepo) buildLesson(index int, rl rawLesson) (domain.Lesson, error) {
	lesson := domain.Lesson{
		Index:   index,
		Day:     rl.Day,
		Title:   rl.Title,
		Content: r.policy.Sanitize(rl.Content),
		Buttons: rl.Buttons,
		Delay:   time.Duration(rl.DelayMs) * time.Millisecond,
	}

	single := func(kind domain.MediaKind) (domain.MediaRef, error) {
		if rl.Media == nil || (rl.Media.URL == "" && rl.Media.Path == "") {
			return domain.MediaRef{}, fmt.Errorf("lesson %d: %s lesson requires media url or path", index, rl.Type)
		}
		return domain.MediaRef{Kind: kind, URL: rl.Media.URL, Path: rl.Media.Path}, nil
	}

	var err error
	switch domain.LessonKind(rl.Type) {
	case domain.KindText:
		lesson.Body = domain.TextBody{}
	case domain.KindPhoto:
		var m domain.MediaRef
		m, err = single(domain.MediaPhoto)
		lesson.Body = domain.PhotoBody{Media: m}
	case domain.KindVideo:
		var m domain.MediaRef
		m, err = single(domain.MediaVideo)
		lesson.Body = domain.VideoBody{Media: m}
	case domain.KindDocument:
		var m domain.MediaRef
		m, err = single(domain.MediaDocument)
		lesson.Body = domain.DocumentBody{Media: m}
	case domain.KindVideoNote:
		var m domain.MediaRef
		m, err = single(domain.MediaVideoNote)
		lesson.Body = domain.VideoNoteBody{Media: m}
	case domain.KindDocuments:
		var items []domain.MediaRef
		for _, m := range rl.Medias {
			if m.URL == "" && m.Path == "" {
				continue
			}
			items = append(items, domain.MediaRef{Kind: domain.MediaDocument, URL: m.URL, Path: m.Path})
		}
		if len(items) == 0 {
			err = fmt.Errorf("lesson %d: documents lesson requires medias", index)
		}
		lesson.Body = domain.DocumentsBody{Items: items}
	case domain.KindMediaGroup:
		var items []domain.MediaRef
		if rl.Media != nil {
			items = rl.Media.Items
		}
		if len(items) < 2 || len(items) > 10 {
			err = fmt.Errorf("lesson %d: media group needs 2 to 10 items, got %d", index, len(items))
		}
		for j, it := range items {
			if it.Kind != domain.MediaPhoto && it.Kind != domain.MediaVideo {
				err = fmt.Errorf("lesson %d: media group item %d has type %q", index, j, it.Kind)
			}
		}
		lesson.Body = domain.MediaGroupBody{Items: items}
	case domain.KindQuiz:
		if rl.Quiz == nil {
			return lesson, fmt.Errorf("lesson %d: quiz lesson missing quiz data", index)
		}
		if verr := rl.Quiz.Validate(); verr != nil {
			return lesson, fmt.Errorf("lesson %d: quiz: %w", index, verr)
		}
		lesson.Body = domain.QuizBody{Quiz: *rl.Quiz}
	case domain.KindAssessment:
		if rl.Assessment == nil {
			return lesson, fmt.Errorf("lesson %d: assessment lesson missing assessment data", index)
		}
		if verr := rl.Assessment.Validate(); verr != nil {
			return lesson, fmt.Errorf("lesson %d: assessment: %w", index, verr)
		}
		lesson.Body = domain.AssessmentBody{Assessment: *rl.Assessment}
	default:
		return lesson, fmt.Errorf("lesson %d: %w: type %q", index, domain.ErrUnsupportedLesson, rl.Type)
	}
	return lesson, err
}
