package streamable

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget bounds the number of loads whose payload bytes are in flight.
type Budget struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewBudget creates a budget with n slots. n <= 0 falls back to a single slot.
func NewBudget(n int) *Budget {
	if n <= 0 {
		n = 1
	}
	return &Budget{sem: semaphore.NewWeighted(int64(n)), size: int64(n)}
}

// TryAcquire takes a slot without blocking.
func (b *Budget) TryAcquire() (*Slot, bool) {
	return b.TryAcquireFor(TopPriority)
}

// TryAcquireFor takes a slot for a load of the given partition. Loads that are
// behind the consumer never take the last free slot of a budget with more than one slot.
func (b *Budget) TryAcquireFor(p Partition) (*Slot, bool) {
	if p.Behind && b.size > 1 && b.size-b.inFlight.Load() <= 1 {
		return nil, false
	}
	if !b.sem.TryAcquire(1) {
		return nil, false
	}
	current := b.inFlight.Add(1)
	for {
		peak := b.peak.Load()
		if current <= peak || b.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	BudgetInFlightGauge.Inc()
	return &Slot{budget: b}, true
}

// Size returns the number of slots.
func (b *Budget) Size() int { return int(b.size) }

// InFlight returns the number of slots currently held.
func (b *Budget) InFlight() int { return int(b.inFlight.Load()) }

// Peak returns the highest number of slots ever held at the same time.
func (b *Budget) Peak() int { return int(b.peak.Load()) }

// Slot is a held budget slot. Release may be called any number of times,
// only the first call gives the slot back.
type Slot struct {
	budget *Budget
	once   sync.Once
}

func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.budget.inFlight.Add(-1)
		s.budget.sem.Release(1)
		BudgetInFlightGauge.Dec()
	})
}
