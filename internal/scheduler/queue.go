package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueueConfig holds the queue manager limits
type QueueConfig struct {
	// MaxConcurrent is the number of users that may drain at the same time
	MaxConcurrent int
	// TaskDelay is slept between two consecutive tasks of the same user
	TaskDelay time.Duration
	// AdmitBackoff is how long a user waits before retrying admission when all slots are taken
	AdmitBackoff time.Duration
}

// QueueManager keeps a private FIFO per user and admits at most
// MaxConcurrent users at a time. A user's tasks never run concurrently.
type QueueManager struct {
	mu       sync.Mutex
	queues   map[int64][]Action
	active   map[int64]struct{}
	retrying map[int64]struct{}
	epoch    uint64

	baseCtx context.Context
	cancel  context.CancelFunc

	cfg    QueueConfig
	logger *zap.Logger
}

type slotKey struct{}

// NewQueueManager creates a queue manager
func NewQueueManager(cfg QueueConfig, logger *zap.Logger) *QueueManager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.AdmitBackoff <= 0 {
		cfg.AdmitBackoff = 50 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QueueManager{
		queues:   make(map[int64][]Action),
		active:   make(map[int64]struct{}),
		retrying: make(map[int64]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
	}
}

// HoldsSlot reports whether ctx belongs to a task running inside the drain of userID
func HoldsSlot(ctx context.Context, userID int64) bool {
	id, ok := ctx.Value(slotKey{}).(int64)
	return ok && id == userID
}

// Enqueue appends a task to the user's queue and tries to admit the user
func (q *QueueManager) Enqueue(userID int64, task Action) {
	q.mu.Lock()
	q.queues[userID] = append(q.queues[userID], task)
	q.mu.Unlock()

	q.tryProcess(userID)
}

// IsProcessing reports whether the user currently holds a slot
func (q *QueueManager) IsProcessing(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[userID]
	return ok
}

// ActiveCount returns the number of occupied slots
func (q *QueueManager) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// PendingCount returns the number of queued tasks of one user
func (q *QueueManager) PendingCount(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[userID])
}

// TryAcquire takes a slot for work that runs outside the drain loop.
// It fails when the user already holds a slot or the cap is reached.
func (q *QueueManager) TryAcquire(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, busy := q.active[userID]; busy {
		return false
	}
	if len(q.active) >= q.cfg.MaxConcurrent {
		return false
	}
	q.active[userID] = struct{}{}
	return true
}

// Release frees a slot taken with TryAcquire. Work queued meanwhile is drained.
func (q *QueueManager) Release(userID int64) {
	q.mu.Lock()
	delete(q.active, userID)
	pending := len(q.queues[userID]) > 0
	q.mu.Unlock()

	if pending {
		q.tryProcess(userID)
	}
}

// Clear drops all queues and slots. Running tasks see their context cancelled.
func (q *QueueManager) Clear() {
	q.mu.Lock()
	q.queues = make(map[int64][]Action)
	q.active = make(map[int64]struct{})
	q.retrying = make(map[int64]struct{})
	q.epoch++
	q.cancel()
	q.baseCtx, q.cancel = context.WithCancel(context.Background())
	q.mu.Unlock()

	q.logger.Info("Queue manager cleared")
}

func (q *QueueManager) tryProcess(userID int64) {
	q.mu.Lock()
	if _, busy := q.active[userID]; busy {
		// the running drain picks the task up
		q.mu.Unlock()
		return
	}
	if len(q.queues[userID]) == 0 {
		q.mu.Unlock()
		return
	}
	if len(q.active) >= q.cfg.MaxConcurrent {
		if _, scheduled := q.retrying[userID]; !scheduled {
			q.retrying[userID] = struct{}{}
			epoch := q.epoch
			time.AfterFunc(q.cfg.AdmitBackoff, func() {
				q.mu.Lock()
				if q.epoch != epoch {
					q.mu.Unlock()
					return
				}
				delete(q.retrying, userID)
				q.mu.Unlock()
				q.tryProcess(userID)
			})
		}
		q.mu.Unlock()
		return
	}

	q.active[userID] = struct{}{}
	epoch := q.epoch
	ctx := context.WithValue(q.baseCtx, slotKey{}, userID)
	q.mu.Unlock()

	go q.drain(ctx, userID, epoch)
}

// drain runs the user's tasks in order and releases the slot once the queue is
// empty. The emptiness check and the release happen under one lock so a
// concurrent Enqueue either lands in this drain or admits the user again.
func (q *QueueManager) drain(ctx context.Context, userID int64, epoch uint64) {
	for first := true; ; first = false {
		q.mu.Lock()
		if q.epoch != epoch {
			q.mu.Unlock()
			return
		}
		tasks := q.queues[userID]
		if len(tasks) == 0 {
			delete(q.queues, userID)
			delete(q.active, userID)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		tasks[0] = nil
		q.queues[userID] = tasks[1:]
		q.mu.Unlock()

		if !first && q.cfg.TaskDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(q.cfg.TaskDelay):
			}
		}

		if err := safeRun(ctx, task); err != nil {
			q.logger.Error("Queued task failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}
}
