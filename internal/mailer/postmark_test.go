package mailer

import (
	"context"
	"errors"
	"testing"

	"coursebot/internal/testutil"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(postmark.EmailResponse), args.Error(1)
}

func TestNewPostmark_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains string
	}{
		{name: "missing server token", cfg: Config{AccountToken: "a", From: "bot@example.com"}, contains: "server token"},
		{name: "missing account token", cfg: Config{ServerToken: "s", From: "bot@example.com"}, contains: "account token"},
		{name: "missing sender", cfg: Config{ServerToken: "s", AccountToken: "a"}, contains: "sender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPostmark(tt.cfg, testutil.NewTestLogger())

			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNewPostmark_Valid(t *testing.T) {
	m, err := NewPostmark(Config{ServerToken: "s", AccountToken: "a", From: "bot@example.com"}, testutil.NewTestLogger())

	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestPostmark_SendCompletion(t *testing.T) {
	tests := []struct {
		name      string
		resp      postmark.EmailResponse
		clientErr error
		wantErr   bool
	}{
		{name: "sent", resp: postmark.EmailResponse{MessageID: "m-1"}},
		{name: "client error", clientErr: errors.New("timeout"), wantErr: true},
		{name: "api error code", resp: postmark.EmailResponse{ErrorCode: 406, Message: "inactive recipient"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockClient)
			client.On("SendEmail", mock.Anything, mock.MatchedBy(func(e postmark.Email) bool {
				return e.To == "alice@example.com" &&
					e.From == "bot@example.com" &&
					e.Tag == "course-completed" &&
					e.TrackLinks == "HtmlOnly"
			})).Return(tt.resp, tt.clientErr)

			m := NewWithClient(client, "bot@example.com", testutil.NewTestLogger())
			err := m.SendCompletion(context.Background(), "alice@example.com", "<Alice>")

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSendFailed)
			} else {
				assert.NoError(t, err)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestCompletionBody_EscapesName(t *testing.T) {
	assert.Contains(t, completionBody("<Alice>"), "&lt;Alice&gt;")
}
