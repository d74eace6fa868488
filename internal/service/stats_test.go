package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"coursebot/internal/domain"
	"coursebot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeCounters struct {
	active, inFlight, pending int
}

func (c fakeCounters) ActiveSlots() int    { return c.active }
func (c fakeCounters) InFlight() int       { return c.inFlight }
func (c fakeCounters) PendingDelayed() int { return c.pending }

func TestStatsService_Report(t *testing.T) {
	tests := []struct {
		name          string
		stats         *domain.UserStats
		mockError     error
		expectedError bool
	}{
		{
			name:  "successful report",
			stats: &domain.UserStats{Total: 10, Active: 7, Completed: 2, WithEmail: 3},
		},
		{
			name:          "database error",
			mockError:     fmt.Errorf("db error"),
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(testutil.MockUserRepository)
			mockRepo.On("Stats", mock.Anything).Return(tt.stats, tt.mockError)
			transport := &testutil.RecordingTransport{}

			logger := testutil.NewTestLogger()
			service := NewStatsService(mockRepo, nil, testutil.NewStaticCourse(testutil.TextLessons(12)),
				fakeCounters{active: 4, inFlight: 5, pending: 6}, nil, transport, logger)

			err := service.Report(context.Background(), 1)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Empty(t, transport.Sent())
			} else {
				assert.NoError(t, err)
				texts := transport.Texts(1)
				require.Len(t, texts, 1)
				assert.Contains(t, texts[0], "Users: 10")
				assert.Contains(t, texts[0], "Lessons: 12")
				assert.Contains(t, texts[0], "Active slots: 4")
				assert.Contains(t, texts[0], "In flight: 5")
				assert.Contains(t, texts[0], "Pending delayed tasks: 6")
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestStatsService_ReloadCourse(t *testing.T) {
	course := testutil.NewStaticCourse(testutil.TextLessons(3))
	transport := &testutil.RecordingTransport{}
	service := NewStatsService(nil, nil, course, fakeCounters{}, nil, transport, testutil.NewTestLogger())

	require.NoError(t, service.ReloadCourse(context.Background(), 1))

	assert.Equal(t, 1, course.Invalidated())
	assert.Equal(t, []string{"🔄 Course reloaded: 3 lessons."}, transport.Texts(1))
}

func TestStatsService_ReloadCourse_Failure(t *testing.T) {
	course := new(testutil.MockCourseRepository)
	course.On("Invalidate").Return()
	course.On("Lessons", mock.Anything).Return(nil, errors.New("unknown lesson type <gif>"))
	transport := &testutil.RecordingTransport{}
	service := NewStatsService(nil, nil, course, fakeCounters{}, nil, transport, testutil.NewTestLogger())

	require.NoError(t, service.ReloadCourse(context.Background(), 1))

	course.AssertExpectations(t)
	assert.Equal(t, []string{"❌ Course reload failed: unknown lesson type &lt;gif&gt;"}, transport.Texts(1))
}

func TestStatsService_Kick(t *testing.T) {
	tests := []struct {
		name          string
		state         domain.ProgressState
		expectedState domain.ProgressState
	}{
		{name: "sending is reset", state: domain.StateSending, expectedState: domain.StateIdle},
		{name: "waiting is kept", state: domain.StateWaitingNext, expectedState: domain.StateWaitingNext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := testutil.NewMemorySessions()
			sessions.Put(testutil.NewTestSession(42, 1, tt.state))
			delayer := &testutil.FakeDelayer{}
			delayer.Schedule(42, func(context.Context) error { return nil }, 0)
			delayer.Schedule(43, func(context.Context) error { return nil }, 0)
			transport := &testutil.RecordingTransport{}
			service := NewStatsService(nil, sessions, nil, fakeCounters{}, delayer, transport, testutil.NewTestLogger())

			require.NoError(t, service.Kick(context.Background(), 1, 42))

			assert.Equal(t, tt.expectedState, sessions.Must(42).State)
			pending := delayer.Pending()
			require.Len(t, pending, 1)
			assert.Equal(t, int64(43), pending[0].UserID)
			require.Len(t, transport.Texts(1), 1)
			assert.Contains(t, transport.Texts(1)[0], "1 delayed tasks cancelled")
		})
	}
}
