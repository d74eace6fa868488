package handler

import (
	"context"
	"strconv"
	"strings"

	"coursebot/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// userFromSender builds the profile stored on /start
func userFromSender(sender *tele.User) *domain.User {
	return &domain.User{
		UserID:    sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		Active:    true,
	}
}

// handleStart handles /start command
func (h *Handler) handleStart(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	user := userFromSender(c.Sender())

	h.logger.Info("User started bot",
		zap.Int64("user_id", user.UserID),
		zap.String("username", user.Username),
	)

	h.enqueue(user.UserID, "start", func(ctx context.Context) error {
		return h.services.Course.Start(ctx, user)
	})
	return nil
}

// command enqueues a per-user action for a parameterless command
func (h *Handler) command(name string, action func(ctx context.Context, userID int64) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil {
			return nil
		}
		userID := c.Sender().ID
		h.logger.Debug("Command received", zap.String("command", name), zap.Int64("user_id", userID))
		h.enqueue(userID, name, func(ctx context.Context) error {
			return action(ctx, userID)
		})
		return nil
	}
}

func (h *Handler) handleResume(c tele.Context) error {
	return h.command("resume", h.services.Course.Resume)(c)
}

func (h *Handler) handlePause(c tele.Context) error {
	return h.command("pause", h.services.Course.Pause)(c)
}

func (h *Handler) handleReset(c tele.Context) error {
	return h.command("reset", h.services.Course.Reset)(c)
}

func (h *Handler) handleSkip(c tele.Context) error {
	return h.command("skip", h.services.Course.Skip)(c)
}

func (h *Handler) handleRestore(c tele.Context) error {
	return h.command("restore", h.services.Course.Restore)(c)
}

func (h *Handler) handleProgress(c tele.Context) error {
	return h.command("progress", h.services.Course.Progress)(c)
}

func (h *Handler) handleQuizResults(c tele.Context) error {
	return h.command("quizresults", h.services.Quiz.Results)(c)
}

func (h *Handler) handleAssessments(c tele.Context) error {
	return h.command("assessments", h.services.Assessment.Results)(c)
}

// handleEmail stores the address for the completion e-mail
func (h *Handler) handleEmail(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	address := strings.TrimSpace(c.Message().Payload)
	if address == "" {
		return c.Send(msgEmailUsage)
	}

	userID := c.Sender().ID
	h.enqueue(userID, "email", func(ctx context.Context) error {
		return h.services.Course.SetEmail(ctx, userID, address)
	})
	return nil
}

// handleAdminLogin checks the admin password
func (h *Handler) handleAdminLogin(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	password := strings.TrimSpace(c.Message().Payload)
	if password == "" {
		return c.Send(msgAdminUsage, tele.ModeHTML)
	}

	// Keep the password out of the chat history
	if err := c.Delete(); err != nil {
		h.logger.Debug("Failed to delete password message", zap.Error(err))
	}

	userID := c.Sender().ID
	h.enqueue(userID, "admin", func(ctx context.Context) error {
		return h.services.Admin.Login(ctx, userID, password)
	})
	return nil
}

func (h *Handler) handleStats(c tele.Context) error {
	return h.command("stats", h.services.Stats.Report)(c)
}

func (h *Handler) handleReload(c tele.Context) error {
	return h.command("reload", h.services.Stats.ReloadCourse)(c)
}

// handleKick cancels the pending work of another user. It runs on the
// target's queue so it cannot interleave with that user's delivery.
func (h *Handler) handleKick(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	target, ok := parseUserID(c.Message().Payload)
	if !ok {
		return c.Send(msgKickUsage, tele.ModeHTML)
	}

	adminID := c.Sender().ID
	h.logger.Info("Kick requested", zap.Int64("admin_id", adminID), zap.Int64("user_id", target))
	h.enqueue(target, "kick", func(ctx context.Context) error {
		return h.services.Stats.Kick(ctx, adminID, target)
	})
	return nil
}

// handleText treats text containing a continue marker as the continue control
func (h *Handler) handleText(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	userID := c.Sender().ID

	if !isContinueText(c.Text()) {
		h.logger.Debug("Ignoring text message", zap.Int64("user_id", userID))
		return nil
	}

	h.enqueue(userID, "continue", func(ctx context.Context) error {
		return h.services.Progress.ContinuePressed(ctx, userID)
	})
	return nil
}

func isContinueText(text string) bool {
	text = strings.TrimSpace(text)
	return text != "" && domain.Button{Text: text}.IsContinue()
}

func parseUserID(payload string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
