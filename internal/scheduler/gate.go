package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coursebot/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Runner is the progression entry point the gate drives
type Runner interface {
	Advance(ctx context.Context, userID int64) error
	Recover(ctx context.Context, userID int64, err error)
}

// Enqueuer accepts per-user serialized work
type Enqueuer interface {
	Enqueue(userID int64, task Action)
}

// GateConfig bounds the dispatch rate independently of the queue slots
type GateConfig struct {
	Concurrency  int
	RateCap      int
	RateInterval time.Duration
}

// Gate deduplicates progress requests and pushes them through a rate
// limited pool into the queue manager.
type Gate struct {
	mu       sync.Mutex
	inFlight map[int64]struct{}
	runner   Runner

	queue   Enqueuer
	limiter *rate.Limiter
	sem     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewGate creates a dispatch gate in front of queue
func NewGate(cfg GateConfig, queue Enqueuer, logger *zap.Logger) *Gate {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.RateCap <= 0 {
		cfg.RateCap = 25
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		inFlight: make(map[int64]struct{}),
		queue:    queue,
		limiter:  rate.NewLimiter(rate.Every(cfg.RateInterval/time.Duration(cfg.RateCap)), cfg.RateCap),
		sem:      make(chan struct{}, cfg.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// SetRunner wires the progression engine. It must be called before the first dispatch.
func (g *Gate) SetRunner(r Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runner = r
}

// ScheduleUserProgress asks for the user's course to continue. It returns
// false without side effects when the user is already in flight.
func (g *Gate) ScheduleUserProgress(userID int64) bool {
	g.mu.Lock()
	if g.runner == nil {
		g.mu.Unlock()
		g.logger.Error("Dispatch gate has no runner", zap.Int64("user_id", userID))
		return false
	}
	if g.ctx.Err() != nil {
		g.mu.Unlock()
		return false
	}
	if _, ok := g.inFlight[userID]; ok {
		g.mu.Unlock()
		g.logger.Debug("User already in flight, skipping", zap.Int64("user_id", userID))
		return false
	}
	g.inFlight[userID] = struct{}{}
	runner := g.runner
	g.wg.Add(1)
	g.mu.Unlock()

	go g.job(userID, runner)
	return true
}

// InFlight reports whether a dispatch for the user has not completed yet
func (g *Gate) InFlight(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[userID]
	return ok
}

// InFlightCount returns the number of users being dispatched
func (g *Gate) InFlightCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

// Wait blocks until every dispatched job has finished
func (g *Gate) Wait() {
	g.wg.Wait()
}

// Close stops accepting work and abandons jobs still waiting for a permit
func (g *Gate) Close() {
	g.cancel()
	g.wg.Wait()
}

func (g *Gate) job(userID int64, runner Runner) {
	defer g.wg.Done()
	defer func() {
		g.mu.Lock()
		delete(g.inFlight, userID)
		g.mu.Unlock()
	}()

	select {
	case g.sem <- struct{}{}:
	case <-g.ctx.Done():
		return
	}
	defer func() { <-g.sem }()

	if err := g.limiter.Wait(g.ctx); err != nil {
		g.logger.Warn("Dispatch abandoned while waiting for rate window",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}

	done := make(chan error, 1)
	g.queue.Enqueue(userID, func(ctx context.Context) error {
		err := advanceSafely(ctx, runner, userID)
		if err != nil && !errors.Is(err, domain.ErrOverloaded) {
			runner.Recover(ctx, userID, err)
		}
		done <- err
		return nil
	})

	select {
	case err := <-done:
		if err != nil {
			g.logger.Warn("Progress step failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	case <-g.ctx.Done():
	}
}

func advanceSafely(ctx context.Context, runner Runner, userID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("advance panicked: %v", r)
		}
	}()
	return runner.Advance(ctx, userID)
}
