package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursebot/internal/config"
	"coursebot/internal/handler"
	"coursebot/internal/mailer"
	"coursebot/internal/middleware"
	"coursebot/internal/repository"
	"coursebot/internal/repository/file"
	"coursebot/internal/repository/firebase"
	"coursebot/internal/repository/postgres"
	redisrepo "coursebot/internal/repository/redis"
	"coursebot/internal/scheduler"
	"coursebot/internal/service"
	"coursebot/internal/telegram"

	"github.com/golang-migrate/migrate/v4"
	postgresdb "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Course Bot")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded successfully",
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("mode", cfg.Course.Mode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database with retries
	db, err := connectDatabase(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Run migrations
	if err := runMigrations(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Database migrations completed")

	// Initialize repositories
	userRepo := postgres.NewUserRepo(db)
	sessionRepo, closeSessions, err := newSessionRepo(ctx, cfg, db)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer closeSessions()

	courseRepo := file.NewCourseRepo(cfg.Course.Path, logger)
	lessons, err := courseRepo.Lessons(ctx)
	if err != nil {
		logger.Fatal("Failed to load course", zap.String("path", cfg.Course.Path), zap.Error(err))
	}
	logger.Info("Course loaded", zap.Int("lessons", len(lessons)))

	if cfg.Course.Watch {
		go func() {
			if err := courseRepo.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Course watcher stopped", zap.Error(err))
			}
		}()
	}

	// Initialize Telegram bot
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Sender() != nil {
				fields = append(fields, zap.Int64("user_id", c.Sender().ID))
			}
			logger.Error("Telegram handler error", fields...)
		},
	})
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	logger.Info("Telegram bot initialized")

	transport := telegram.NewTransport(bot, cfg.Course.MediaDir, logger)

	// Initialize scheduling
	delayed := scheduler.NewDelayed(cfg.Scheduler.Tick, logger)
	queue := scheduler.NewQueueManager(scheduler.QueueConfig{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		TaskDelay:     cfg.Scheduler.DelayBetweenTasks,
		AdmitBackoff:  cfg.Scheduler.AdmitBackoff,
	}, logger)
	gate := scheduler.NewGate(scheduler.GateConfig{
		Concurrency:  cfg.Scheduler.GateConcurrency,
		RateCap:      cfg.Scheduler.RateCap,
		RateInterval: cfg.Scheduler.RateInterval,
	}, queue, logger)

	// Initialize services
	var mail service.Mailer
	if cfg.Mail.Enabled() {
		pm, err := mailer.NewPostmark(mailer.Config{
			ServerToken:  cfg.Mail.ServerToken,
			AccountToken: cfg.Mail.AccountToken,
			From:         cfg.Mail.From,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize mailer", zap.Error(err))
		}
		mail = pm
	} else {
		logger.Info("Completion e-mails disabled")
	}

	adminService := service.NewAdminService(userRepo, transport, cfg.AdminPassword, cfg.AdminIDs, logger)
	quizService := service.NewQuizService(sessionRepo, courseRepo, transport, gate, logger)
	assessmentService := service.NewAssessmentService(sessionRepo, courseRepo, transport, gate, logger)
	progressService := service.NewProgressService(service.ProgressDeps{
		Sessions:   sessionRepo,
		Users:      userRepo,
		Course:     courseRepo,
		Transport:  transport,
		Slots:      queue,
		Delayer:    delayed,
		Dispatch:   gate,
		Quiz:       quizService,
		Assessment: assessmentService,
		Notifier:   adminService,
		Mailer:     mail,
	}, service.ProgressConfig{
		MaxAttempts:       cfg.Progress.MaxAttempts,
		RetryBaseDelay:    cfg.Progress.RetryBaseDelay,
		RetryMaxDelay:     cfg.Progress.RetryMaxDelay,
		DefaultRetryAfter: cfg.Progress.DefaultRetryAfter,
	}, logger)
	gate.SetRunner(progressService)

	courseService := service.NewCourseService(service.CourseDeps{
		Sessions:  sessionRepo,
		Users:     userRepo,
		Course:    courseRepo,
		Transport: transport,
		Delayer:   delayed,
		Dispatch:  gate,
		Notifier:  adminService,
		Scheduled: cfg.Course.Mode == config.ModeScheduled,
	}, logger)
	statsService := service.NewStatsService(
		userRepo,
		sessionRepo,
		courseRepo,
		scheduler.NewCounters(queue, gate, delayed),
		delayed,
		transport,
		logger,
	)

	// Initialize handler
	h := handler.NewHandler(bot, queue, handler.Services{
		Course:     courseService,
		Progress:   progressService,
		Quiz:       quizService,
		Assessment: assessmentService,
		Admin:      adminService,
		Stats:      statsService,
	}, middleware.NewCooldown(cfg.StartCooldown, logger), logger)
	h.RegisterHandlers()

	logger.Info("Handlers registered")

	delayed.Start(ctx)

	var daily *service.DailyService
	if cfg.Course.Mode == config.ModeScheduled {
		daily = service.NewDailyService(userRepo, sessionRepo, transport, gate, cfg.Course.Cron, cfg.Course.Timezone, logger)
		if err := daily.Start(ctx); err != nil {
			logger.Fatal("Failed to start daily job", zap.Error(err))
		}
	}

	// Pick up users whose delivery was cut short by the previous run.
	// In scheduled mode idle users wait for the next daily tick.
	go progressService.ResumeInterrupted(ctx, cfg.Course.Mode == config.ModeInstant)

	// Start stats job in background
	go runStatsJob(ctx, statsService, logger)

	// Start bot in background
	go func() {
		logger.Info("Bot started successfully")
		bot.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info("Shutdown signal received, stopping bot...")

	// Graceful shutdown: stop intake first, then the schedulers
	bot.Stop()
	if daily != nil {
		daily.Stop()
	}
	gate.Close()
	delayed.Stop()
	queue.Clear()
	cancel()

	logger.Info("Bot stopped gracefully")
}

// newSessionRepo builds the configured session store and its cleanup
func newSessionRepo(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, func(), error) {
	noop := func() {}

	switch cfg.Session.Backend {
	case config.BackendRedis:
		client, err := redisrepo.Connect(ctx, cfg.Session.RedisURL, 10, 2*time.Second)
		if err != nil {
			return nil, noop, err
		}
		return redisrepo.NewSessionRepo(client, cfg.Session.RedisTTL), func() { _ = client.Close() }, nil
	case config.BackendFirebase:
		store, err := firebase.Connect(ctx, cfg.Session.FirebaseCreds, cfg.Session.FirebaseBaseURL)
		if err != nil {
			return nil, noop, err
		}
		return firebase.NewSessionRepo(store), noop, nil
	case config.BackendPostgres:
		return postgres.NewSessionRepo(db), noop, nil
	}
	return nil, noop, errors.New("unknown session backend " + cfg.Session.Backend)
}

// connectDatabase connects to PostgreSQL with retries
func connectDatabase(dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Warn("Failed to open database connection",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(retryDelay)
			continue
		}

		// Test connection
		if err = db.Ping(); err != nil {
			logger.Warn("Failed to ping database",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			db.Close()
			time.Sleep(retryDelay)
			continue
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgresdb.WithInstance(db, &postgresdb.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied successfully")
	}

	return nil
}

// runStatsJob logs the runtime counters once a minute
func runStatsJob(ctx context.Context, statsService *service.StatsService, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stats job stopped")
			return
		case <-ticker.C:
			statsService.LogSnapshot()
		}
	}
}
