package scheduler

// Counters reports the load of the scheduling layer
type Counters struct {
	queue   *QueueManager
	gate    *Gate
	delayed *Delayed
}

// NewCounters creates a counters view over the three schedulers
func NewCounters(queue *QueueManager, gate *Gate, delayed *Delayed) *Counters {
	return &Counters{queue: queue, gate: gate, delayed: delayed}
}

// ActiveSlots is the number of users being processed right now
func (c *Counters) ActiveSlots() int { return c.queue.ActiveCount() }

// InFlight is the number of dispatched users not yet done
func (c *Counters) InFlight() int { return c.gate.InFlightCount() }

// PendingDelayed is the number of armed delayed tasks
func (c *Counters) PendingDelayed() int { return c.delayed.PendingCount() }
