package streamable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Strategy implements how one kind of asset is fetched and decoded.
type Strategy[T any] interface {
	// Fetch obtains the raw payload. It runs while a budget slot is held.
	Fetch(ctx context.Context, intention Intention) ([]byte, error)
	// Decode turns a payload into the asset. It runs after the budget slot was released.
	Decode(ctx context.Context, intention Intention, payload []byte) (T, error)
}

// LoaderOptions configures a Loader.
type LoaderOptions[T any] struct {
	// Name labels logs and metrics.
	Name string
	// Strategy fetches and decodes assets.
	Strategy Strategy[T]
	// Cache stores completed loads. Nil disables caching, in-flight loads are still shared.
	Cache *Cache[T]
	// Budget bounds concurrent fetches. Loaders may share a budget.
	Budget *Budget
	// Decoder runs decode work. Nil decodes on the load goroutine.
	Decoder *DecodePool
	// Logger for the loader.
	Logger logr.Logger
}

// flight is one running load. Promises for the same key share it.
type flight[T any] struct {
	key     string
	done    chan struct{}
	result  Result[T]
	cancel  context.CancelFunc
	slot    *Slot
	waiters int
}

// Loader creates promises for one kind of asset and runs their loads.
type Loader[T any] struct {
	LoaderOptions[T]
	mu      sync.Mutex
	flights map[string]*flight[T]
}

// NewLoader creates a new loader.
func NewLoader[T any](opts LoaderOptions[T]) *Loader[T] {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Budget == nil {
		opts.Budget = NewBudget(8)
	}
	opts.Logger = opts.Logger.WithValues("loader", opts.Name)

	return &Loader[T]{
		LoaderOptions: opts,
		flights:       make(map[string]*flight[T]),
	}
}

// Create returns a promise for the intention. A cached value or a remembered
// irrecoverable failure resolves the promise right away; a cached value gains
// a reference that the consumer gives back with Release.
func (l *Loader[T]) Create(ctx context.Context, intention Intention, partition Partition) *Promise[T] {
	pctx, cancel := context.WithCancel(ctx)
	p := &Promise[T]{
		loader:    l,
		intention: intention,
		partition: partition,
		ctx:       pctx,
		cancel:    cancel,
		state:     StateCreated,
	}

	if result, ok := l.fromCache(intention.Key()); ok {
		p.settle(result)
	}

	return p
}

// Release gives back a reference obtained through a successful promise.
func (l *Loader[T]) Release(intention Intention) {
	if l.Cache != nil {
		l.Cache.Dereference(intention.Key())
	}
}

// InFlight returns the number of running loads.
func (l *Loader[T]) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.flights)
}

func (l *Loader[T]) fromCache(key string) (Result[T], bool) {
	if l.Cache == nil {
		return Result[T]{}, false
	}
	if err := l.Cache.IrrecoverableFailure(key); err != nil {
		l.Logger.V(1).Info("key recorded as irrecoverable failure", "key", key)
		return Failure[T](err), true
	}
	if value, ok := l.Cache.TryGet(key); ok {
		l.Cache.AddReference(key)
		CacheHitCounterTotal.WithLabelValues(l.Name).Inc()
		return Success(value), true
	}
	return Result[T]{}, false
}

// start moves a created promise to loading, either by joining a running load or
// by starting a new one when a budget slot is free. Without a free slot the
// promise stays created and tries again on the next poll.
func (l *Loader[T]) start(p *Promise[T]) {
	key := p.intention.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.flights[key]; ok {
		f.waiters++
		p.flight = f
		p.state = StateLoading
		CacheShareCounterTotal.WithLabelValues(l.Name).Inc()
		l.Logger.V(1).Info("load already in progress, joining", "key", key, "waiters", f.waiters)
		return
	}

	// a load of the same key may have completed since the promise was created
	if result, ok := l.fromCache(key); ok {
		p.settle(result)
		return
	}

	slot, ok := l.Budget.TryAcquireFor(p.partition)
	if !ok {
		return
	}

	CacheMissCounterTotal.WithLabelValues(l.Name).Inc()
	InProgressGauge.WithLabelValues(l.Name).Inc()

	// the load outlives the promise that started it as long as other promises wait for it
	fctx, cancel := context.WithCancel(context.WithoutCancel(p.ctx))
	f := &flight[T]{
		key:     key,
		done:    make(chan struct{}),
		cancel:  cancel,
		slot:    slot,
		waiters: 1,
	}
	l.flights[key] = f
	p.flight = f
	p.state = StateLoading

	l.Logger.V(1).Info("started load", "key", key, "partition", p.partition.String())
	go l.run(fctx, f, p.intention)
}

// leave detaches a waiter from a flight. The last waiter to leave abandons the load.
func (l *Loader[T]) leave(f *flight[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	select {
	case <-f.done:
		return
	default:
	}
	f.cancel()
	f.slot.Release()
	if l.flights[f.key] == f {
		delete(l.flights, f.key)
	}
	l.Logger.V(1).Info("abandoned load", "key", f.key)
}

func (l *Loader[T]) run(ctx context.Context, f *flight[T], intention Intention) {
	defer f.cancel()

	start := time.Now()
	result := l.load(ctx, f, intention)
	duration := time.Since(start).Seconds()

	switch {
	case result.Succeeded():
		if l.Cache != nil {
			result = Success(l.Cache.Add(f.key, result.Asset()))
		}
		l.Logger.V(1).Info("loaded", "key", f.key, "duration", duration)
	case result.Category() == CategoryCancelled:
		l.Logger.V(1).Info("load cancelled", "key", f.key, "duration", duration)
	default:
		if l.Cache != nil && IsIrrecoverable(result.Err()) {
			l.Cache.AddIrrecoverableFailure(f.key, result.Err())
		}
		l.Logger.Error(result.Err(), "failed to load", "key", f.key, "duration", duration)
	}

	LoadDurationHistogram.WithLabelValues(l.Name, result.Category().String()).Observe(duration)
	InProgressGauge.WithLabelValues(l.Name).Dec()

	l.mu.Lock()
	f.result = result
	if l.flights[f.key] == f {
		delete(l.flights, f.key)
	}
	l.mu.Unlock()

	close(f.done)
}

func (l *Loader[T]) load(ctx context.Context, f *flight[T], intention Intention) Result[T] {
	payload, err := l.Strategy.Fetch(ctx, intention)
	// the payload is here, child loads must be able to get a slot
	f.slot.Release()
	if ctx.Err() != nil {
		return Failure[T](&CancelledError{Key: f.key, Cause: context.Cause(ctx)})
	}
	if err != nil {
		return Failure[T](asFetchError(f.key, err))
	}

	value, err := Decode(ctx, l.Decoder, f.key, func(ctx context.Context) (T, error) {
		return l.Strategy.Decode(ctx, intention, payload)
	})
	if ctx.Err() != nil {
		return Failure[T](&CancelledError{Key: f.key, Cause: context.Cause(ctx)})
	}
	if err != nil {
		return Failure[T](asDecodeError(f.key, err))
	}
	return Success(value)
}

func asFetchError(key string, err error) error {
	var fetchErr *FetchError
	var dependencyErr *DependencyFailedError
	if errors.As(err, &fetchErr) || errors.As(err, &dependencyErr) {
		return err
	}
	return &FetchError{URL: key, Err: err}
}

func asDecodeError(key string, err error) error {
	if errors.Is(err, ErrDecodePoolStopped) {
		return err
	}
	switch CategoryOf(err) {
	case CategoryDecode, CategoryDependency:
		return err
	default:
		return &DecodeError{Key: key, Err: err}
	}
}
