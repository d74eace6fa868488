package middleware

import (
	"context"
	"errors"
	"testing"

	"coursebot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type staticAdmins struct {
	admins map[int64]bool
	err    error
}

func (s staticAdmins) IsAdmin(_ context.Context, userID int64) (bool, error) {
	return s.admins[userID], s.err
}

// fakeContext records replies of a handler
type fakeContext struct {
	tele.Context
	sender *tele.User
	sent   []interface{}
}

func (c *fakeContext) Sender() *tele.User { return c.sender }
func (c *fakeContext) Text() string       { return "/stats" }
func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func TestAdminMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		checker    staticAdmins
		userID     int64
		expectNext bool
		expectSent bool
	}{
		{name: "admin passes", checker: staticAdmins{admins: map[int64]bool{1: true}}, userID: 1, expectNext: true},
		{name: "regular user rejected", checker: staticAdmins{}, userID: 2, expectSent: true},
		{name: "check failure rejected", checker: staticAdmins{err: errors.New("db")}, userID: 1, expectSent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := func(tele.Context) error {
				called = true
				return nil
			}
			c := &fakeContext{sender: &tele.User{ID: tt.userID}}

			err := AdminMiddleware(tt.checker, testutil.NewTestLogger())(next)(c)

			require.NoError(t, err)
			assert.Equal(t, tt.expectNext, called)
			assert.Equal(t, tt.expectSent, len(c.sent) == 1)
		})
	}
}
