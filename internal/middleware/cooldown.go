package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// Cooldown allows one call per user per interval
type Cooldown struct {
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	limiters  map[int64]*rate.Limiter
	lastPrune time.Time
}

// NewCooldown creates a per-user cooldown
func NewCooldown(interval time.Duration, logger *zap.Logger) *Cooldown {
	return &Cooldown{
		interval:  interval,
		logger:    logger,
		limiters:  make(map[int64]*rate.Limiter),
		lastPrune: time.Now(),
	}
}

// Allow reports whether the user is outside the cooldown and consumes it
func (c *Cooldown) Allow(userID int64) bool {
	if c.interval <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if now := time.Now(); now.Sub(c.lastPrune) >= c.interval {
		c.pruneLocked()
		c.lastPrune = now
	}

	lim, ok := c.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.interval), 1)
		c.limiters[userID] = lim
	}
	return lim.Allow()
}

// pruneLocked drops limiters idle for at least one interval, i.e. fully refilled
func (c *Cooldown) pruneLocked() {
	for id, lim := range c.limiters {
		if lim.Tokens() >= 1 {
			delete(c.limiters, id)
		}
	}
}

// Middleware silently drops calls made during the cooldown
func (c *Cooldown) Middleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(ctx tele.Context) error {
			if ctx.Sender() == nil {
				return nil
			}
			if !c.Allow(ctx.Sender().ID) {
				c.logger.Debug("Call dropped by cooldown", zap.Int64("user_id", ctx.Sender().ID), zap.String("text", ctx.Text()))
				return nil
			}
			return next(ctx)
		}
	}
}
