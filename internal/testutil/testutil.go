package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/scheduler"

	"go.uber.org/zap"
)

// NewTestLogger creates a no-op logger for tests
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

// NewTestUser creates a test user
func NewTestUser(userID int64, username string) *domain.User {
	return &domain.User{
		UserID:    userID,
		Username:  username,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// NewTestSession creates a session positioned at the given lesson
func NewTestSession(userID int64, index int, state domain.ProgressState) *domain.Session {
	s := domain.NewSession(userID)
	s.CurrentLessonIndex = index
	s.State = state
	for i := 0; i < index; i++ {
		s.MarkCompleted(i)
	}
	return s
}

// TextLesson creates a plain text lesson
func TextLesson(index int, content string, buttons ...domain.Button) domain.Lesson {
	l := domain.Lesson{Index: index, Content: content, Body: domain.TextBody{}}
	if len(buttons) > 0 {
		l.Buttons = [][]domain.Button{buttons}
	}
	return l
}

// TextLessons creates n plain lessons without delays or controls
func TextLessons(n int) []domain.Lesson {
	lessons := make([]domain.Lesson, n)
	for i := range lessons {
		lessons[i] = TextLesson(i, "lesson")
	}
	return lessons
}

// NextButton is a continue control
func NextButton() domain.Button {
	return domain.Button{Text: "Next ➡️", Data: "next"}
}

// QuizLesson creates a quiz lesson with two questions whose correct answer is option 0
func QuizLesson(index, passScore int) domain.Lesson {
	return domain.Lesson{
		Index: index,
		Body: domain.QuizBody{Quiz: domain.Quiz{
			Title:     "Check",
			PassScore: passScore,
			Questions: []domain.QuizQuestion{
				{Question: "Q1", Options: []string{"right", "wrong"}, Correct: 0, Explanation: "because"},
				{Question: "Q2", Options: []string{"right", "wrong"}, Correct: 0},
			},
		}},
	}
}

// AssessmentLesson creates a three question self-assessment with two ranges
func AssessmentLesson(index int) domain.Lesson {
	return domain.Lesson{
		Index: index,
		Body: domain.AssessmentBody{Assessment: domain.Assessment{
			Title: "Self check",
			Questions: []domain.AssessmentQuestion{
				{Question: "A1"}, {Question: "A2"}, {Question: "A3"},
			},
			Ranges: []domain.AssessmentRange{
				{Min: 0, Max: 1, Title: "Low", Description: "low", Advice: "rest"},
				{Min: 2, Max: 3, Title: "High", Description: "high"},
			},
		}},
	}
}

// MemorySessions is an in-memory SessionRepository. Records are deep-copied
// so callers cannot mutate stored state.
type MemorySessions struct {
	mu    sync.Mutex
	data  map[int64][]byte
	saves int
	// SaveErr, when set, fails every Save
	SaveErr error
}

// NewMemorySessions creates an empty session store
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{data: make(map[int64][]byte)}
}

func (m *MemorySessions) Get(_ context.Context, userID int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[userID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

func (m *MemorySessions) Save(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	m.data[session.UserID] = raw
	m.saves++
	return nil
}

func (m *MemorySessions) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}

// Saves returns the number of successful saves
func (m *MemorySessions) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Put stores a session directly
func (m *MemorySessions) Put(session *domain.Session) {
	_ = m.Save(context.Background(), session)
}

// Must returns the stored session or panics
func (m *MemorySessions) Must(userID int64) *domain.Session {
	s, err := m.Get(context.Background(), userID)
	if err != nil {
		panic(err)
	}
	return s
}

// StaticCourse is a CourseRepository over a fixed lesson list
type StaticCourse struct {
	mu          sync.Mutex
	lessons     []domain.Lesson
	invalidated int
}

// NewStaticCourse creates a course repository returning the given lessons
func NewStaticCourse(lessons []domain.Lesson) *StaticCourse {
	return &StaticCourse{lessons: lessons}
}

func (c *StaticCourse) Lessons(context.Context) ([]domain.Lesson, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lessons, nil
}

func (c *StaticCourse) Invalidate() {
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
}

// Invalidated returns how often Invalidate was called
func (c *StaticCourse) Invalidated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated
}

// SentMessage is one message captured by RecordingTransport
type SentMessage struct {
	UserID int64
	Msg    domain.Outgoing
}

// RecordingTransport records delivered messages. Errors queued with
// FailNext are returned by the next sends, in order, without recording.
type RecordingTransport struct {
	mu       sync.Mutex
	sent     []SentMessage
	failures []error
}

// FailNext queues errors for the following Send calls
func (t *RecordingTransport) FailNext(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, errs...)
}

func (t *RecordingTransport) Send(_ context.Context, userID int64, msg domain.Outgoing) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.failures) > 0 {
		err := t.failures[0]
		t.failures = t.failures[1:]
		return err
	}
	t.sent = append(t.sent, SentMessage{UserID: userID, Msg: msg})
	return nil
}

// Sent returns a copy of every delivered message
func (t *RecordingTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// Texts returns the texts delivered to one user
func (t *RecordingTransport) Texts(userID int64) []string {
	var out []string
	for _, s := range t.Sent() {
		if s.UserID == userID {
			out = append(out, s.Msg.Text)
		}
	}
	return out
}

// Last returns the last message delivered to the user
func (t *RecordingTransport) Last(userID int64) (domain.Outgoing, bool) {
	sent := t.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].UserID == userID {
			return sent[i].Msg, true
		}
	}
	return domain.Outgoing{}, false
}

// ScheduledAction is an action captured by FakeDelayer
type ScheduledAction struct {
	UserID int64
	Action scheduler.Action
	Delay  time.Duration
}

// FakeDelayer captures scheduled actions and runs them on demand
type FakeDelayer struct {
	mu        sync.Mutex
	pending   []ScheduledAction
	cancelled int
}

func (d *FakeDelayer) Schedule(userID int64, action scheduler.Action, delay time.Duration) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, ScheduledAction{UserID: userID, Action: action, Delay: delay})
	return "task"
}

func (d *FakeDelayer) CancelAll(userID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.pending[:0]
	n := 0
	for _, a := range d.pending {
		if a.UserID == userID {
			n++
			continue
		}
		kept = append(kept, a)
	}
	d.pending = kept
	d.cancelled += n
	return n
}

// Pending returns the armed actions
func (d *FakeDelayer) Pending() []ScheduledAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ScheduledAction(nil), d.pending...)
}

// FireAll runs and removes every armed action
func (d *FakeDelayer) FireAll(ctx context.Context) []error {
	d.mu.Lock()
	due := d.pending
	d.pending = nil
	d.mu.Unlock()

	var errs []error
	for _, a := range due {
		if err := a.Action(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// FakeDispatcher records dispatch requests and optionally runs them inline
type FakeDispatcher struct {
	mu    sync.Mutex
	calls []int64
	// Run, when set, is called synchronously for every dispatch
	Run func(userID int64)
}

func (d *FakeDispatcher) ScheduleUserProgress(userID int64) bool {
	d.mu.Lock()
	d.calls = append(d.calls, userID)
	run := d.Run
	d.mu.Unlock()
	if run != nil {
		run(userID)
	}
	return true
}

// Calls returns the dispatched user ids
func (d *FakeDispatcher) Calls() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.calls...)
}

// FakeSlots is a SlotManager with a fixed capacity
type FakeSlots struct {
	mu       sync.Mutex
	Capacity int
	held     map[int64]bool
}

func (s *FakeSlots) IsProcessing(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[userID]
}

func (s *FakeSlots) TryAcquire(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = make(map[int64]bool)
	}
	if s.held[userID] || len(s.held) >= s.Capacity {
		return false
	}
	s.held[userID] = true
	return true
}

func (s *FakeSlots) Release(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, userID)
}

// Hold marks users as processing
func (s *FakeSlots) Hold(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = make(map[int64]bool)
	}
	for _, id := range ids {
		s.held[id] = true
	}
}

// Held returns the processing users in ascending order
func (s *FakeSlots) Held() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := range s.held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
