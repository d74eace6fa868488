package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFirebase = "firebase"
)

// Course delivery modes
const (
	ModeInstant   = "instant"
	ModeScheduled = "scheduled"
)

// Config holds all application configuration
type Config struct {
	BotToken      string        `env:"BOT_TOKEN"`
	AdminIDs      []int64       `env:"ADMIN_IDS" envSeparator:","`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	StartCooldown time.Duration `env:"START_COOLDOWN" envDefault:"10s"`

	Course    CourseConfig
	Scheduler SchedulerConfig
	Progress  ProgressConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Mail      MailConfig
}

// CourseConfig describes where lessons come from and how they are paced
type CourseConfig struct {
	Path     string `env:"COURSE_PATH" envDefault:"data/course.json"`
	MediaDir string `env:"MEDIA_DIR" envDefault:"data/media"`
	Watch    bool   `env:"COURSE_WATCH" envDefault:"true"`
	Mode     string `env:"COURSE_MODE" envDefault:"instant"`
	Cron     string `env:"DAILY_CRON" envDefault:"0 10 * * *"`
	Timezone string `env:"TIMEZONE" envDefault:"Europe/Warsaw"`
}

// SchedulerConfig tunes the queue, the dispatch gate and the delayed task loop
type SchedulerConfig struct {
	MaxConcurrent     int           `env:"MAX_CONCURRENT" envDefault:"10"`
	RateCap           int           `env:"RATE_CAP" envDefault:"25"`
	RateInterval      time.Duration `env:"RATE_INTERVAL" envDefault:"1s"`
	GateConcurrency   int           `env:"GATE_CONCURRENCY" envDefault:"10"`
	DelayBetweenTasks time.Duration `env:"DELAY_BETWEEN_TASKS" envDefault:"0s"`
	AdmitBackoff      time.Duration `env:"ADMIT_BACKOFF" envDefault:"50ms"`
	Tick              time.Duration `env:"SCHEDULER_TICK" envDefault:"100ms"`
}

// ProgressConfig holds lesson delivery retry settings
type ProgressConfig struct {
	MaxAttempts       int           `env:"SEND_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5m"`
	DefaultRetryAfter time.Duration `env:"DEFAULT_RETRY_AFTER" envDefault:"30s"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	Name     string `env:"DB_NAME" envDefault:"coursebot"`
	User     string `env:"DB_USER" envDefault:"coursebot"`
	Password string `env:"DB_PASSWORD"`
}

// SessionConfig selects and configures the session store
type SessionConfig struct {
	Backend         string        `env:"SESSION_BACKEND" envDefault:"postgres"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisTTL        time.Duration `env:"REDIS_SESSION_TTL" envDefault:"0s"`
	FirebaseCreds   string        `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseBaseURL string        `env:"FIREBASE_DATABASE_URL"`
}

// MailConfig holds Postmark settings. Mail is off when the tokens are empty.
type MailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	From         string `env:"MAIL_FROM"`
}

// Enabled reports whether completion e-mails can be sent
func (m MailConfig) Enabled() bool {
	return m.ServerToken != "" && m.AccountToken != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	return parse(env.ToMap(os.Environ()))
}

func parse(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if c.Database.Password == "" {
		return errors.New("DB_PASSWORD is required")
	}

	switch c.Session.Backend {
	case BackendPostgres:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session backend")
		}
	case BackendFirebase:
		if c.Session.FirebaseCreds == "" || c.Session.FirebaseBaseURL == "" {
			return errors.New("FIREBASE_CREDENTIALS_FILE and FIREBASE_DATABASE_URL are required for the firebase session backend")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be one of postgres, redis, firebase, got %q", c.Session.Backend)
	}

	if c.Course.Mode != ModeInstant && c.Course.Mode != ModeScheduled {
		return fmt.Errorf("COURSE_MODE must be instant or scheduled, got %q", c.Course.Mode)
	}

	s := c.Scheduler
	if s.MaxConcurrent <= 0 || s.RateCap <= 0 || s.GateConcurrency <= 0 {
		return errors.New("MAX_CONCURRENT, RATE_CAP and GATE_CONCURRENCY must be positive")
	}
	if s.RateInterval <= 0 || s.Tick <= 0 {
		return errors.New("RATE_INTERVAL and SCHEDULER_TICK must be positive")
	}
	if c.Progress.MaxAttempts <= 0 {
		return errors.New("SEND_MAX_ATTEMPTS must be positive")
	}

	if c.Mail.Enabled() && c.Mail.From == "" {
		return errors.New("MAIL_FROM is required when Postmark is configured")
	}
	return nil
}

// DSN returns PostgreSQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
