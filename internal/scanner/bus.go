package scanner

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus is the bounded candidate channel every scanner publishes into and
// the AlertDispatcher consumes from (spec §4.I). When full, Publish
// applies the priority-preserving drop policy: CRITICAL is never
// dropped (it bumps the lowest-priority queued item instead); LOW is
// dropped first.
type Bus struct {
	mu       sync.Mutex
	capacity int
	queue    []Candidate
	notify   chan struct{}
	log      zerolog.Logger
}

func NewBus(capacity int, log zerolog.Logger) *Bus {
	return &Bus{capacity: capacity, notify: make(chan struct{}, 1), log: log}
}

// Publish enqueues c, applying back-pressure policy when full.
func (b *Bus) Publish(c Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) < b.capacity {
		b.queue = append(b.queue, c)
		b.wake()
		return
	}

	lowestIdx, lowest := -1, PriorityCritical+1
	for i, q := range b.queue {
		if q.Priority < lowest {
			lowest, lowestIdx = q.Priority, i
		}
	}
	if c.Priority == PriorityCritical || (lowestIdx >= 0 && c.Priority > lowest) {
		if lowestIdx >= 0 {
			dropped := b.queue[lowestIdx]
			b.log.Warn().Str("symbol", dropped.Symbol).Str("kind", string(dropped.Kind)).Msg("candidate dropped by back-pressure policy")
			b.queue[lowestIdx] = c
			b.wake()
			return
		}
	}
	b.log.Warn().Str("symbol", c.Symbol).Str("kind", string(c.Kind)).Msg("candidate dropped, bus full and not higher priority than queued items")
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Drain pops every currently queued candidate, ordered by descending
// priority then FIFO within a priority tier (spec §5: "across symbols
// the dispatcher may reorder by priority").
func (b *Bus) Drain() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	out := make([]Candidate, len(b.queue))
	copy(out, b.queue)
	b.queue = b.queue[:0]
	stableSortByPriorityDesc(out)
	return out
}

// Notify signals when at least one candidate has been published since
// the last drain; callers (AlertDispatcher) select on it.
func (b *Bus) Notify() <-chan struct{} { return b.notify }

func stableSortByPriorityDesc(c []Candidate) {
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && c[j-1].Priority < c[j].Priority {
			c[j-1], c[j] = c[j], c[j-1]
			j--
		}
	}
}
