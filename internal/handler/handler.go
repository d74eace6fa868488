package handler

import (
	"context"

	"coursebot/internal/middleware"
	"coursebot/internal/scheduler"
	"coursebot/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const (
	msgEmailUsage = "📧 Usage: /email you@example.com"
	msgAdminUsage = "🔑 Usage: /admin &lt;password&gt;"
	msgKickUsage  = "👢 Usage: /kick &lt;user id&gt;"
)

// Enqueuer runs actions one after another per user
type Enqueuer interface {
	Enqueue(userID int64, task scheduler.Action)
}

// Services groups everything the handlers talk to
type Services struct {
	Course     *service.CourseService
	Progress   *service.ProgressService
	Quiz       *service.QuizService
	Assessment *service.AssessmentService
	Admin      *service.AdminService
	Stats      *service.StatsService
}

// Handler manages all bot interactions
type Handler struct {
	bot      *tele.Bot
	queue    Enqueuer
	services Services
	cooldown *middleware.Cooldown
	logger   *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(
	bot *tele.Bot,
	queue Enqueuer,
	services Services,
	cooldown *middleware.Cooldown,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:      bot,
		queue:    queue,
		services: services,
		cooldown: cooldown,
		logger:   logger,
	}
}

// RegisterHandlers registers all bot handlers
func (h *Handler) RegisterHandlers() {
	// Learner commands
	h.bot.Handle("/start", h.handleStart, h.cooldown.Middleware())
	h.bot.Handle("/resume", h.handleResume)
	h.bot.Handle("/pause", h.handlePause)
	h.bot.Handle("/reset", h.handleReset)
	h.bot.Handle("/skip", h.handleSkip)
	h.bot.Handle("/restore", h.handleRestore)
	h.bot.Handle("/progress", h.handleProgress)
	h.bot.Handle("/email", h.handleEmail)
	h.bot.Handle("/quizresults", h.handleQuizResults)
	h.bot.Handle("/assessments", h.handleAssessments)
	h.bot.Handle("/admin", h.handleAdminLogin)

	// Admin commands
	admin := h.bot.Group()
	admin.Use(middleware.AdminMiddleware(h.services.Admin, h.logger))
	admin.Handle("/stats", h.handleStats)
	admin.Handle("/reload", h.handleReload)
	admin.Handle("/kick", h.handleKick)

	// Text messages
	h.bot.Handle(tele.OnText, h.handleText)

	// Callback queries (inline buttons)
	h.bot.Handle(tele.OnCallback, h.handleCallback)
}

// enqueue runs the action on the user's queue so it never overlaps with
// lesson delivery for the same user
func (h *Handler) enqueue(userID int64, name string, action func(ctx context.Context) error) {
	h.queue.Enqueue(userID, func(ctx context.Context) error {
		if err := action(ctx); err != nil {
			h.logger.Error("Action failed",
				zap.String("action", name),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}
