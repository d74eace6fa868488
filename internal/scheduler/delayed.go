package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is a unit of work run by the schedulers
type Action func(ctx context.Context) error

type delayedTask struct {
	id     string
	userID int64
	runAt  time.Time
	action Action
	gen    uint64
}

// Delayed fires one-shot actions after a delay. Tasks are keyed by id and
// grouped by user so that all of a user's pending work can be dropped at once.
type Delayed struct {
	mu    sync.Mutex
	tasks map[string]*delayedTask
	// gens is bumped by CancelAll; a task collected with an older generation is skipped
	gens map[int64]uint64

	tick   time.Duration
	logger *zap.Logger
	now    func() time.Time

	runCtx  context.Context
	cancel  context.CancelFunc
	loopEnd chan struct{}
	running sync.WaitGroup
}

// NewDelayed creates a scheduler polling for due tasks every tick
func NewDelayed(tick time.Duration, logger *zap.Logger) *Delayed {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Delayed{
		tasks:  make(map[string]*delayedTask),
		gens:   make(map[int64]uint64),
		tick:   tick,
		logger: logger,
		now:    time.Now,
	}
}

// Schedule registers action to run for userID after delay and returns the task id
func (d *Delayed) Schedule(userID int64, action Action, delay time.Duration) string {
	if delay < 0 {
		delay = 0
	}
	t := &delayedTask{
		id:     uuid.NewString(),
		userID: userID,
		runAt:  d.now().Add(delay),
		action: action,
	}

	d.mu.Lock()
	t.gen = d.gens[userID]
	d.tasks[t.id] = t
	d.mu.Unlock()

	d.logger.Debug("Delayed task scheduled",
		zap.Int64("user_id", userID),
		zap.String("task_id", t.id),
		zap.Duration("delay", delay),
	)
	return t.id
}

// Cancel removes a single task. It reports whether the task was still pending.
func (d *Delayed) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tasks[id]; !ok {
		return false
	}
	delete(d.tasks, id)
	return true
}

// CancelAll drops every pending task of the user. No task scheduled before
// the call starts running after it returns.
func (d *Delayed) CancelAll(userID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, t := range d.tasks {
		if t.userID == userID {
			delete(d.tasks, id)
			removed++
		}
	}
	d.gens[userID]++

	if removed > 0 {
		d.logger.Info("Cancelled delayed tasks",
			zap.Int64("user_id", userID),
			zap.Int("count", removed),
		)
	}
	return removed
}

// PendingCount returns the number of tasks waiting to fire
func (d *Delayed) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// UserTaskCount returns the number of pending tasks of one user
func (d *Delayed) UserTaskCount(userID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, t := range d.tasks {
		if t.userID == userID {
			n++
		}
	}
	return n
}

// Start launches the polling loop. Calling Start on a running scheduler is a no-op.
func (d *Delayed) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.loopEnd = make(chan struct{})
	runCtx, loopEnd := d.runCtx, d.loopEnd
	d.mu.Unlock()

	go d.loop(runCtx, loopEnd)
	d.logger.Info("Delayed scheduler started", zap.Duration("tick", d.tick))
}

// Stop halts the polling loop and waits for actions that already started.
// Pending tasks stay registered and fire after the next Start.
func (d *Delayed) Stop() {
	d.mu.Lock()
	cancel, loopEnd := d.cancel, d.loopEnd
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-loopEnd
	d.running.Wait()
	d.logger.Info("Delayed scheduler stopped")
}

func (d *Delayed) loop(ctx context.Context, loopEnd chan struct{}) {
	defer close(loopEnd)

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.fireDue(ctx)
		}
	}
}

// fireDue moves due tasks out of the map and runs each on its own goroutine
// so a slow action never delays the tick for other users.
func (d *Delayed) fireDue(ctx context.Context) {
	now := d.now()

	d.mu.Lock()
	var due []*delayedTask
	for id, t := range d.tasks {
		if !t.runAt.After(now) {
			due = append(due, t)
			delete(d.tasks, id)
		}
	}
	d.running.Add(len(due))
	d.mu.Unlock()

	for _, t := range due {
		go d.run(ctx, t)
	}
}

func (d *Delayed) run(ctx context.Context, t *delayedTask) {
	defer d.running.Done()

	d.mu.Lock()
	stale := d.gens[t.userID] != t.gen
	d.mu.Unlock()
	if stale {
		d.logger.Debug("Skipping cancelled delayed task",
			zap.Int64("user_id", t.userID),
			zap.String("task_id", t.id),
		)
		return
	}

	if err := safeRun(ctx, t.action); err != nil {
		d.logger.Error("Delayed task failed",
			zap.Int64("user_id", t.userID),
			zap.String("task_id", t.id),
			zap.Error(err),
		)
	}
}

// safeRun executes an action and turns a panic into an error
func safeRun(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}
