package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"BOT_TOKEN":   "test_token",
		"DB_PASSWORD": "test_db_password",
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
		},
	}

	dsn := cfg.DSN()
	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, dsn)
}

func TestParse_WithDefaults(t *testing.T) {
	cfg, err := parse(requiredEnv())
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.BotToken)
	assert.Empty(t, cfg.AdminIDs)
	assert.Equal(t, 10*time.Second, cfg.StartCooldown)

	assert.Equal(t, "data/course.json", cfg.Course.Path)
	assert.True(t, cfg.Course.Watch)
	assert.Equal(t, ModeInstant, cfg.Course.Mode)
	assert.Equal(t, "0 10 * * *", cfg.Course.Cron)
	assert.Equal(t, "Europe/Warsaw", cfg.Course.Timezone)

	assert.Equal(t, 10, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 25, cfg.Scheduler.RateCap)
	assert.Equal(t, time.Second, cfg.Scheduler.RateInterval)
	assert.Equal(t, 10, cfg.Scheduler.GateConcurrency)
	assert.Equal(t, time.Duration(0), cfg.Scheduler.DelayBetweenTasks)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.AdmitBackoff)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.Tick)

	assert.Equal(t, 5, cfg.Progress.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Progress.RetryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Progress.RetryMaxDelay)
	assert.Equal(t, 30*time.Second, cfg.Progress.DefaultRetryAfter)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "coursebot", cfg.Database.Name)
	assert.Equal(t, "coursebot", cfg.Database.User)

	assert.Equal(t, BackendPostgres, cfg.Session.Backend)
	assert.False(t, cfg.Mail.Enabled())
}

func TestParse_Overrides(t *testing.T) {
	environment := requiredEnv()
	environment["ADMIN_IDS"] = "1,2,3"
	environment["COURSE_MODE"] = "scheduled"
	environment["RATE_INTERVAL"] = "2s"
	environment["SESSION_BACKEND"] = "redis"
	environment["REDIS_URL"] = "redis://localhost:6379/0"
	environment["REDIS_SESSION_TTL"] = "720h"

	cfg, err := parse(environment)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, cfg.AdminIDs)
	assert.Equal(t, ModeScheduled, cfg.Course.Mode)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RateInterval)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Session.RedisURL)
	assert.Equal(t, 720*time.Hour, cfg.Session.RedisTTL)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]string
		contains string
	}{
		{name: "missing bot token", override: map[string]string{"BOT_TOKEN": ""}, contains: "BOT_TOKEN"},
		{name: "missing db password", override: map[string]string{"DB_PASSWORD": ""}, contains: "DB_PASSWORD"},
		{name: "unknown backend", override: map[string]string{"SESSION_BACKEND": "mongo"}, contains: "SESSION_BACKEND"},
		{name: "redis without url", override: map[string]string{"SESSION_BACKEND": "redis"}, contains: "REDIS_URL"},
		{name: "firebase without credentials", override: map[string]string{"SESSION_BACKEND": "firebase"}, contains: "FIREBASE_CREDENTIALS_FILE"},
		{name: "unknown mode", override: map[string]string{"COURSE_MODE": "weekly"}, contains: "COURSE_MODE"},
		{name: "zero concurrency", override: map[string]string{"MAX_CONCURRENT": "0"}, contains: "MAX_CONCURRENT"},
		{name: "negative attempts", override: map[string]string{"SEND_MAX_ATTEMPTS": "-1"}, contains: "SEND_MAX_ATTEMPTS"},
		{name: "mail without sender", override: map[string]string{"POSTMARK_SERVER_TOKEN": "s", "POSTMARK_ACCOUNT_TOKEN": "a"}, contains: "MAIL_FROM"},
		{name: "bad duration", override: map[string]string{"RATE_INTERVAL": "soon"}, contains: "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environment := requiredEnv()
			for k, v := range tt.override {
				environment[k] = v
			}

			cfg, err := parse(environment)
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	// Save original env
	originalBotToken := os.Getenv("BOT_TOKEN")

	// Clean up after test
	defer func() {
		if originalBotToken != "" {
			os.Setenv("BOT_TOKEN", originalBotToken)
		} else {
			os.Unsetenv("BOT_TOKEN")
		}
	}()

	os.Unsetenv("BOT_TOKEN")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
}
