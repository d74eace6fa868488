package middleware

import (
	"context"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const msgNotAdmin = "🚫 This command is for administrators. Use /admin &lt;password&gt; to log in."

// AdminChecker decides whether a user may run admin commands
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AdminMiddleware lets only administrators through
func AdminMiddleware(admins AdminChecker, logger *zap.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil {
				return nil
			}
			userID := c.Sender().ID

			admin, err := admins.IsAdmin(context.Background(), userID)
			if err != nil {
				logger.Error("Failed to check admin rights in middleware", zap.Int64("user_id", userID), zap.Error(err))
				return c.Send("⚠️ Something went wrong. Please try again later.")
			}

			if !admin {
				logger.Warn("Admin command rejected", zap.Int64("user_id", userID), zap.String("text", c.Text()))
				return c.Send(msgNotAdmin, tele.ModeHTML)
			}

			return next(c)
		}
	}
}
