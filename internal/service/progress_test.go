package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type progressFixture struct {
	sessions  *testutil.MemorySessions
	users     *testutil.MockUserRepository
	course    *testutil.StaticCourse
	transport *testutil.RecordingTransport
	slots     *testutil.FakeSlots
	delayer   *testutil.FakeDelayer
	dispatch  *testutil.FakeDispatcher
	notifier  *testutil.MockNotifier
	svc       *ProgressService
}

func newProgressFixture(lessons []domain.Lesson, cfg ProgressConfig) *progressFixture {
	f := &progressFixture{
		sessions:  testutil.NewMemorySessions(),
		users:     new(testutil.MockUserRepository),
		course:    testutil.NewStaticCourse(lessons),
		transport: &testutil.RecordingTransport{},
		slots:     &testutil.FakeSlots{Capacity: 10},
		delayer:   &testutil.FakeDelayer{},
		dispatch:  &testutil.FakeDispatcher{},
		notifier:  new(testutil.MockNotifier),
	}
	f.users.On("UpdateProgress", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.users.On("MarkCompleted", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.users.On("SetActive", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything).Maybe()
	f.notifier.On("NotifyCompleted", mock.Anything, mock.Anything).Maybe()

	logger := testutil.NewTestLogger()
	f.svc = NewProgressService(ProgressDeps{
		Sessions:   f.sessions,
		Users:      f.users,
		Course:     f.course,
		Transport:  f.transport,
		Slots:      f.slots,
		Delayer:    f.delayer,
		Dispatch:   f.dispatch,
		Quiz:       NewQuizService(f.sessions, f.course, f.transport, f.dispatch, logger),
		Assessment: NewAssessmentService(f.sessions, f.course, f.transport, f.dispatch, logger),
		Notifier:   f.notifier,
	}, cfg, logger)
	return f
}

// runDispatches makes every dispatch advance the user inline
func (f *progressFixture) runDispatches() {
	f.dispatch.Run = func(userID int64) {
		_ = f.svc.Advance(context.Background(), userID)
	}
}

func TestProgressService_Advance_DeliversWholeCourse(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(5), ProgressConfig{})

	err := f.svc.Advance(context.Background(), 1)
	require.NoError(t, err)

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateFinished, session.State)
	assert.Equal(t, 5, session.CurrentLessonIndex)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, session.CompletedLessons)

	texts := f.transport.Texts(1)
	require.Len(t, texts, 6)
	assert.Equal(t, msgCourseFinished, texts[5])

	f.users.AssertNumberOfCalls(t, "UpdateProgress", 5)
	f.users.AssertNumberOfCalls(t, "MarkCompleted", 1)
	f.notifier.AssertCalled(t, "NotifyCompleted", mock.Anything, int64(1))
	assert.Empty(t, f.slots.Held())
	assert.Empty(t, f.delayer.Pending())
}

func TestProgressService_Advance_StopsAtContinueControl(t *testing.T) {
	lessons := testutil.TextLessons(5)
	lessons[2] = testutil.TextLesson(2, "lesson", testutil.NextButton())
	f := newProgressFixture(lessons, ProgressConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, 1))

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateWaitingNext, session.State)
	assert.Equal(t, 3, session.CurrentLessonIndex)
	assert.Len(t, f.transport.Texts(1), 3)

	// nothing moves until the control is pressed
	require.NoError(t, f.svc.Advance(ctx, 1))
	assert.Len(t, f.transport.Texts(1), 3)

	f.runDispatches()
	require.NoError(t, f.svc.ContinuePressed(ctx, 1))

	session = f.sessions.Must(1)
	assert.Equal(t, domain.StateFinished, session.State)
	assert.Len(t, f.transport.Texts(1), 6)
	assert.Equal(t, []int64{1}, f.dispatch.Calls())
}

func TestProgressService_ContinuePressed_IgnoredWhenNotWaiting(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.sessions.Put(testutil.NewTestSession(1, 1, domain.StateIdle))

	require.NoError(t, f.svc.ContinuePressed(context.Background(), 1))

	assert.Empty(t, f.dispatch.Calls())
	assert.Equal(t, domain.StateIdle, f.sessions.Must(1).State)
}

func TestProgressService_ContinuePressed_SaveFailure(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.sessions.Put(testutil.NewTestSession(1, 1, domain.StateWaitingNext))
	f.sessions.SaveErr = errors.New("db down")

	err := f.svc.ContinuePressed(context.Background(), 1)

	assert.Error(t, err)
	assert.Empty(t, f.dispatch.Calls())
}

func TestProgressService_Advance_RetriesRateLimitedSend(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.runDispatches()
	ctx := context.Background()

	rl := &domain.RateLimitedError{RetryAfter: 5 * time.Second}
	f.transport.FailNext(rl, rl, rl)

	require.NoError(t, f.svc.Advance(ctx, 1))

	for i := 1; i <= 3; i++ {
		session := f.sessions.Must(1)
		assert.Equal(t, domain.StateIdle, session.State)
		assert.Equal(t, i, session.SendAttempts)

		pending := f.delayer.Pending()
		require.Len(t, pending, 1, "attempt %d", i)
		assert.Equal(t, 5*time.Second, pending[0].Delay)
		assert.Empty(t, f.delayer.FireAll(ctx))
	}

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateFinished, session.State)
	assert.Equal(t, 0, session.SendAttempts)
	assert.Equal(t, []string{"lesson", "lesson", msgCourseFinished}, f.transport.Texts(1))
	f.users.AssertNumberOfCalls(t, "UpdateProgress", 2)
	assert.Empty(t, f.delayer.Pending())
}

func TestProgressService_Advance_UnreachableUser(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(3), ProgressConfig{})
	f.transport.FailNext(fmt.Errorf("send: %w", domain.ErrUnreachable))

	err := f.svc.Advance(context.Background(), 1)
	require.NoError(t, err)

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateIdle, session.State)
	assert.Equal(t, 0, session.SendAttempts)
	assert.Equal(t, 0, session.CurrentLessonIndex)
	assert.Empty(t, f.delayer.Pending())
	assert.Empty(t, f.transport.Texts(1))
	f.users.AssertCalled(t, "SetActive", mock.Anything, int64(1), false)
	f.notifier.AssertNotCalled(t, "NotifyFailure", mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressService_Advance_RetryBudgetExhausted(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{MaxAttempts: 3})
	f.runDispatches()
	ctx := context.Background()

	timeout := errors.New("i/o timeout")
	f.transport.FailNext(timeout, timeout, timeout)

	require.NoError(t, f.svc.Advance(ctx, 1))
	f.delayer.FireAll(ctx)
	f.delayer.FireAll(ctx)

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateIdle, session.State)
	assert.Equal(t, 0, session.SendAttempts)
	assert.Equal(t, 0, session.CurrentLessonIndex)
	assert.Empty(t, f.delayer.Pending())
	assert.Equal(t, []string{msgSomethingWrong}, f.transport.Texts(1))
	f.notifier.AssertNumberOfCalls(t, "NotifyFailure", 1)
}

func TestProgressService_Advance_Overloaded(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.slots.Capacity = 0

	err := f.svc.Advance(context.Background(), 1)

	assert.ErrorIs(t, err, domain.ErrOverloaded)
	assert.Equal(t, []string{msgOverloaded}, f.transport.Texts(1))
}

func TestProgressService_Advance_AlreadyProcessing(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.slots.Hold(1)

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	assert.Equal(t, []string{msgAlreadyProcessing}, f.transport.Texts(1))
	assert.Equal(t, []int64{1}, f.slots.Held())
}

func TestProgressService_Advance_WaitingStates(t *testing.T) {
	tests := []struct {
		name     string
		state    domain.ProgressState
		paused   bool
		expected []string
	}{
		{name: "paused", state: domain.StateIdle, paused: true},
		{name: "waiting for quiz", state: domain.StateWaitingQuiz, expected: []string{msgFinishQuizFirst}},
		{name: "waiting for assessment", state: domain.StateWaitingAssessment, expected: []string{msgFinishAssessFirst}},
		{name: "waiting for continue", state: domain.StateWaitingNext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProgressFixture(testutil.TextLessons(3), ProgressConfig{})
			session := testutil.NewTestSession(1, 1, tt.state)
			session.Paused = tt.paused
			f.sessions.Put(session)

			require.NoError(t, f.svc.Advance(context.Background(), 1))

			assert.Equal(t, tt.expected, f.transport.Texts(1))
			assert.Equal(t, 1, f.sessions.Must(1).CurrentLessonIndex)
		})
	}
}

func TestProgressService_Advance_AlreadyFinished(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	f.sessions.Put(testutil.NewTestSession(1, 2, domain.StateFinished))

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	assert.Equal(t, []string{msgCourseAlreadyDone}, f.transport.Texts(1))
	f.users.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
}

func TestProgressService_Advance_DelayedLesson(t *testing.T) {
	tests := []struct {
		name           string
		pauseBefore    bool
		expectDispatch bool
	}{
		{name: "resumes after delay", expectDispatch: true},
		{name: "pause cancels resume", pauseBefore: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lessons := testutil.TextLessons(2)
			lessons[0].Delay = time.Second
			f := newProgressFixture(lessons, ProgressConfig{})
			ctx := context.Background()

			require.NoError(t, f.svc.Advance(ctx, 1))

			session := f.sessions.Must(1)
			assert.Equal(t, domain.StateIdle, session.State)
			assert.Equal(t, 1, session.CurrentLessonIndex)
			pending := f.delayer.Pending()
			require.Len(t, pending, 1)
			assert.Equal(t, time.Second, pending[0].Delay)

			if tt.pauseBefore {
				session.Paused = true
				f.sessions.Put(session)
			}
			assert.Empty(t, f.delayer.FireAll(ctx))

			if tt.expectDispatch {
				assert.Equal(t, []int64{1}, f.dispatch.Calls())
			} else {
				assert.Empty(t, f.dispatch.Calls())
			}
		})
	}
}

func TestProgressService_Advance_DelayOnLastLessonFinishes(t *testing.T) {
	lessons := testutil.TextLessons(2)
	lessons[1].Delay = time.Minute
	f := newProgressFixture(lessons, ProgressConfig{})

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	assert.Equal(t, domain.StateFinished, f.sessions.Must(1).State)
	assert.Empty(t, f.delayer.Pending())
}

func TestProgressService_Advance_StartsQuiz(t *testing.T) {
	lessons := []domain.Lesson{testutil.TextLesson(0, "intro"), testutil.QuizLesson(1, 50)}
	f := newProgressFixture(lessons, ProgressConfig{})

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateWaitingQuiz, session.State)
	require.NotNil(t, session.Quiz)
	assert.Equal(t, 1, session.Quiz.LessonIndex)
	assert.Equal(t, 1, session.Quiz.Attempt)

	last, ok := f.transport.Last(1)
	require.True(t, ok)
	require.Len(t, last.Buttons, 2)
	assert.Equal(t, "quiz_answer_0", last.Buttons[0][0].Data)
	assert.Equal(t, "B) wrong", last.Buttons[1][0].Text)
}

func TestProgressService_Advance_StartsAssessment(t *testing.T) {
	f := newProgressFixture([]domain.Lesson{testutil.AssessmentLesson(0)}, ProgressConfig{})

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateWaitingAssessment, session.State)
	require.NotNil(t, session.Assessment)
	assert.Equal(t, 0, session.Assessment.LessonIndex)
}

func TestProgressService_Advance_QuizOpeningFailureRetries(t *testing.T) {
	f := newProgressFixture([]domain.Lesson{testutil.QuizLesson(0, 50)}, ProgressConfig{})
	f.transport.FailNext(errors.New("connection reset"))

	require.NoError(t, f.svc.Advance(context.Background(), 1))

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateIdle, session.State)
	assert.Nil(t, session.Quiz)
	assert.Equal(t, 1, session.SendAttempts)
	assert.Len(t, f.delayer.Pending(), 1)
}

func TestProgressService_Recover(t *testing.T) {
	tests := []struct {
		name          string
		state         domain.ProgressState
		cause         error
		expectedState domain.ProgressState
		expectReply   bool
	}{
		{
			name:          "sending becomes idle",
			state:         domain.StateSending,
			cause:         errors.New("boom"),
			expectedState: domain.StateIdle,
			expectReply:   true,
		},
		{
			name:          "waiting for continue is kept",
			state:         domain.StateWaitingNext,
			cause:         errors.New("boom"),
			expectedState: domain.StateWaitingNext,
			expectReply:   true,
		},
		{
			name:          "unreachable is silent",
			state:         domain.StateSending,
			cause:         domain.ErrUnreachable,
			expectedState: domain.StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProgressFixture(testutil.TextLessons(3), ProgressConfig{})
			session := testutil.NewTestSession(1, 1, tt.state)
			session.SendAttempts = 2
			f.sessions.Put(session)
			f.delayer.Schedule(1, func(context.Context) error { return nil }, time.Minute)

			f.svc.Recover(context.Background(), 1, tt.cause)

			assert.Equal(t, tt.expectedState, f.sessions.Must(1).State)
			assert.Empty(t, f.delayer.Pending())
			if tt.expectReply {
				assert.Equal(t, []string{msgSomethingWrong}, f.transport.Texts(1))
				f.notifier.AssertCalled(t, "NotifyFailure", mock.Anything, int64(1), tt.cause)
			} else {
				assert.Empty(t, f.transport.Texts(1))
			}
		})
	}
}

func TestProgressService_RetryDelay(t *testing.T) {
	svc := NewProgressService(ProgressDeps{}, ProgressConfig{
		RetryBaseDelay:    time.Second,
		RetryMaxDelay:     10 * time.Second,
		DefaultRetryAfter: 30 * time.Second,
	}, testutil.NewTestLogger())

	tests := []struct {
		name     string
		err      error
		attempt  int
		expected time.Duration
	}{
		{name: "first transient", err: errors.New("x"), attempt: 1, expected: time.Second},
		{name: "third transient", err: errors.New("x"), attempt: 3, expected: 4 * time.Second},
		{name: "capped transient", err: errors.New("x"), attempt: 10, expected: 10 * time.Second},
		{name: "retry after wins", err: &domain.RateLimitedError{RetryAfter: 5 * time.Second}, attempt: 1, expected: 5 * time.Second},
		{name: "backoff wins", err: &domain.RateLimitedError{RetryAfter: 5 * time.Second}, attempt: 4, expected: 8 * time.Second},
		{name: "default retry after", err: &domain.RateLimitedError{}, attempt: 1, expected: 30 * time.Second},
		{name: "retry after above cap", err: &domain.RateLimitedError{RetryAfter: time.Minute}, attempt: 1, expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.retryDelay(tt.err, tt.attempt))
		})
	}
}

func TestProgressService_Finish_CompletionEmail(t *testing.T) {
	withEmail := &domain.User{UserID: 1, Username: "ann", Email: "ann@example.com"}

	tests := []struct {
		name       string
		user       *domain.User
		mailErr    error
		expectMail bool
	}{
		{name: "user with e-mail", user: withEmail, expectMail: true},
		{name: "mail failure does not block finishing", user: withEmail, mailErr: errors.New("postmark down"), expectMail: true},
		{name: "user without e-mail", user: &domain.User{UserID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProgressFixture(testutil.TextLessons(1), ProgressConfig{})
			mailer := new(testutil.MockMailer)
			f.svc.mailer = mailer
			f.users.On("Get", mock.Anything, int64(1)).Return(tt.user, nil)
			if tt.expectMail {
				mailer.On("SendCompletion", mock.Anything, "ann@example.com", "@ann").Return(tt.mailErr)
			}

			require.NoError(t, f.svc.Advance(context.Background(), 1))

			assert.Equal(t, domain.StateFinished, f.sessions.Must(1).State)
			mailer.AssertExpectations(t)
			if !tt.expectMail {
				mailer.AssertNotCalled(t, "SendCompletion", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestProgressService_Advance_SessionStoreFailure(t *testing.T) {
	dbErr := errors.New("connection refused")
	sessions := new(testutil.MockSessionRepository)
	sessions.On("Get", mock.Anything, int64(1)).Return(nil, dbErr)
	transport := &testutil.RecordingTransport{}

	svc := NewProgressService(ProgressDeps{
		Sessions:  sessions,
		Course:    testutil.NewStaticCourse(testutil.TextLessons(2)),
		Transport: transport,
		Slots:     &testutil.FakeSlots{Capacity: 1},
		Delayer:   &testutil.FakeDelayer{},
		Dispatch:  &testutil.FakeDispatcher{},
	}, ProgressConfig{}, testutil.NewTestLogger())

	err := svc.Advance(context.Background(), 1)

	assert.ErrorIs(t, err, dbErr)
	assert.Empty(t, transport.Sent())
	sessions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestProgressService_CancelUserTasks(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(2), ProgressConfig{})
	noop := func(context.Context) error { return nil }
	f.delayer.Schedule(1, noop, time.Minute)
	f.delayer.Schedule(1, noop, time.Hour)
	f.delayer.Schedule(2, noop, time.Minute)

	assert.Equal(t, 2, f.svc.CancelUserTasks(1))

	pending := f.delayer.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].UserID)
}

func TestProgressService_ResumeInterrupted(t *testing.T) {
	tests := []struct {
		name        string
		includeIdle bool
		expected    []int64
	}{
		{name: "instant mode resumes idle and sending", includeIdle: true, expected: []int64{1, 2}},
		{name: "scheduled mode resumes sending only", expected: []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProgressFixture(testutil.TextLessons(5), ProgressConfig{})
			f.sessions.Put(testutil.NewTestSession(1, 2, domain.StateIdle))
			f.sessions.Put(testutil.NewTestSession(2, 3, domain.StateSending))
			f.sessions.Put(testutil.NewTestSession(3, 2, domain.StateWaitingNext))
			f.sessions.Put(testutil.NewTestSession(4, 2, domain.StateWaitingQuiz))
			f.sessions.Put(testutil.NewTestSession(5, 5, domain.StateFinished))
			paused := testutil.NewTestSession(6, 1, domain.StateIdle)
			paused.Paused = true
			f.sessions.Put(paused)
			f.users.On("ListActive", mock.Anything).Return([]int64{1, 2, 3, 4, 5, 6, 7}, nil)

			n := f.svc.ResumeInterrupted(context.Background(), tt.includeIdle)

			// user 7 has no stored session and is not restarted from the first lesson
			assert.Equal(t, tt.expected, f.dispatch.Calls())
			assert.Equal(t, len(tt.expected), n)
		})
	}
}

func TestProgressService_ResumeInterrupted_FinishesCrashedDelivery(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(3), ProgressConfig{})
	f.runDispatches()
	f.sessions.Put(testutil.NewTestSession(1, 1, domain.StateSending))
	f.users.On("ListActive", mock.Anything).Return([]int64{1}, nil)

	assert.Equal(t, 1, f.svc.ResumeInterrupted(context.Background(), true))

	session := f.sessions.Must(1)
	assert.Equal(t, domain.StateFinished, session.State)
	assert.Equal(t, []int{0, 1, 2}, session.CompletedLessons)
}

func TestProgressService_ResumeInterrupted_ListFails(t *testing.T) {
	f := newProgressFixture(testutil.TextLessons(3), ProgressConfig{})
	f.users.On("ListActive", mock.Anything).Return(nil, errors.New("db down"))

	assert.Zero(t, f.svc.ResumeInterrupted(context.Background(), true))
	assert.Empty(t, f.dispatch.Calls())
}
