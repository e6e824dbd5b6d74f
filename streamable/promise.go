package streamable

import (
	"context"
	"sync"
)

// State is the lifecycle state of a Promise.
type State int

const (
	// StateCreated means the intention is known but no load was started yet.
	StateCreated State = iota
	// StateLoading means a load runs or was joined.
	StateLoading
	// StateResolved means the result is stored and waits to be consumed.
	StateResolved
	// StateConsumed means the result was handed out.
	StateConsumed
	// StateForgotten means the promise was cancelled before it resolved.
	StateForgotten
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateLoading:
		return "Loading"
	case StateResolved:
		return "Resolved"
	case StateConsumed:
		return "Consumed"
	case StateForgotten:
		return "Forgotten"
	default:
		return "Unknown"
	}
}

// Promise is a one-shot handle on a single load. All methods are non-blocking
// and safe for concurrent use; every call that looks at the state advances it first.
type Promise[T any] struct {
	loader    *Loader[T]
	intention Intention
	partition Partition
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	state  State
	flight *flight[T]
	result Result[T]
}

// NewDeferred creates a promise that is not backed by a loader. Its owner
// resolves it with Resolve.
func NewDeferred[T any](ctx context.Context, intention Intention, partition Partition) *Promise[T] {
	pctx, cancel := context.WithCancel(ctx)
	return &Promise[T]{
		intention: intention,
		partition: partition,
		ctx:       pctx,
		cancel:    cancel,
		state:     StateCreated,
	}
}

// Resolve stores the result of a deferred promise. It reports false if the
// promise was resolved, consumed or forgotten before.
func (p *Promise[T]) Resolve(result Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateCreated && p.state != StateLoading {
		return false
	}
	p.settle(result)
	return true
}

// TryConsume hands out the result exactly once. It returns false while the load
// runs and on every call after the result was handed out.
func (p *Promise[T]) TryConsume() (Result[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.poll()
	if p.state != StateResolved {
		return Result[T]{}, false
	}
	p.state = StateConsumed
	return p.result, true
}

// Consume hands out the result and fails if it is not available or was
// consumed already.
func (p *Promise[T]) Consume() (Result[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.poll()
	switch p.state {
	case StateResolved:
		p.state = StateConsumed
		return p.result, nil
	case StateConsumed:
		return Result[T]{}, ErrAlreadyConsumed
	case StateForgotten:
		return Result[T]{}, &CancelledError{Key: p.intention.Key(), Cause: context.Cause(p.ctx)}
	default:
		return Result[T]{}, ErrNotResolved
	}
}

// Peek returns the result without consuming it.
func (p *Promise[T]) Peek() (Result[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.poll()
	if p.state != StateResolved && p.state != StateConsumed {
		return Result[T]{}, false
	}
	return p.result, true
}

// Poll advances the promise and returns its state.
func (p *Promise[T]) Poll() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.poll()
	return p.state
}

// State returns the state without advancing the promise.
func (p *Promise[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel signals the promise context. The next poll moves a created or loading
// promise to forgotten. A resolved promise keeps its result.
func (p *Promise[T]) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateCreated || p.state == StateLoading {
		p.cancel()
	}
}

// Forget abandons the promise right away. A resolved but unconsumed success
// gives its cache reference back.
func (p *Promise[T]) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateCreated, StateLoading:
		p.abandon()
	case StateResolved:
		if p.result.Succeeded() && p.loader != nil {
			p.loader.Release(p.intention)
		}
		p.state = StateForgotten
	}
	p.cancel()
}

// Abandoned reports whether the promise was cancelled before it resolved.
func (p *Promise[T]) Abandoned() bool {
	return p.Poll() == StateForgotten
}

// IsConsumed reports whether the result was handed out.
func (p *Promise[T]) IsConsumed() bool {
	return p.State() == StateConsumed
}

// Intention returns the intention of the promise.
func (p *Promise[T]) Intention() Intention { return p.intention }

// Key returns the key of the intention.
func (p *Promise[T]) Key() string { return p.intention.Key() }

// Partition returns the scheduling priority of the promise.
func (p *Promise[T]) Partition() Partition { return p.partition }

// Context returns the cancellation handle of the promise.
func (p *Promise[T]) Context() context.Context { return p.ctx }

func (p *Promise[T]) poll() {
	switch p.state {
	case StateCreated:
		if p.ctx.Err() != nil {
			p.abandon()
			return
		}
		if p.loader != nil {
			p.loader.start(p)
		}
	case StateLoading:
		if p.ctx.Err() != nil {
			p.abandon()
			return
		}
		select {
		case <-p.flight.done:
		default:
			return
		}
		result := p.flight.result
		p.flight = nil
		if result.Category() == CategoryCancelled {
			// the joined load was abandoned by everyone else, start over
			p.state = StateCreated
			p.loader.start(p)
			return
		}
		if result.Succeeded() && p.loader.Cache != nil {
			p.loader.Cache.AddReference(p.intention.Key())
		}
		p.settle(result)
	}
}

func (p *Promise[T]) settle(result Result[T]) {
	p.result = result
	p.state = StateResolved
	p.flight = nil
	p.cancel()
}

func (p *Promise[T]) abandon() {
	if p.flight != nil {
		p.loader.leave(p.flight)
		p.flight = nil
	}
	p.state = StateForgotten
	p.cancel()
}
