package streamable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// ErrDecodePoolStopped is returned for work submitted after the pool shut down.
var ErrDecodePoolStopped = errors.New("decode pool stopped")

// decodeFunc is the signature for functions that process decode items.
type decodeFunc func(ctx context.Context) (any, error)

type decodeResult struct {
	value any
	err   error
}

// decodeItem represents a single decode job processed by the pool.
type decodeItem struct {
	Key     string
	Fn      decodeFunc
	Context context.Context
	done    chan decodeResult
}

// PoolOptions configures the decode pool.
type PoolOptions struct {
	// WorkerCount is the number of concurrent workers.
	WorkerCount int
	// QueueSize is the size of the work queue buffer.
	QueueSize int
	// Logger for the decode pool.
	Logger logr.Logger
}

// DecodePool runs CPU bound decode work on a fixed number of workers so that
// payload parsing never runs on the poll loop.
type DecodePool struct {
	PoolOptions
	workQueue   chan *decodeItem
	stopped     chan struct{}
	stopOnce    sync.Once
	workersDone sync.WaitGroup
}

// NewDecodePool creates a new decode pool.
func NewDecodePool(opts PoolOptions) *DecodePool {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 4
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}

	return &DecodePool{
		PoolOptions: opts,
		workQueue:   make(chan *decodeItem, opts.QueueSize),
		stopped:     make(chan struct{}),
	}
}

// Start begins the decode pool.
// This method blocks until the context is cancelled to implement graceful shutdown.
func (p *DecodePool) Start(ctx context.Context) error {
	p.Logger.Info("starting decode pool", "workers", p.WorkerCount, "queueSize", p.QueueSize)

	for i := range p.WorkerCount {
		p.workersDone.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.Logger.Info("decode pool shutting down")
	p.stopOnce.Do(func() { close(p.stopped) })

	p.workersDone.Wait()

	p.Logger.Info("decode pool shutdown complete")
	return nil
}

// Decode runs fn on the pool and waits for its result.
func Decode[T any](ctx context.Context, p *DecodePool, key string, fn func(ctx context.Context) (T, error)) (result T, _ error) {
	if p == nil {
		return fn(ctx)
	}
	value, err := p.do(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		return result, err
	}
	res, ok := value.(T)
	if !ok && value != nil {
		return result, fmt.Errorf("unable to assert decode result for key %s", key)
	}
	return res, nil
}

func (p *DecodePool) do(ctx context.Context, key string, fn decodeFunc) (any, error) {
	item := &decodeItem{Key: key, Fn: fn, Context: ctx, done: make(chan decodeResult, 1)}

	select {
	case p.workQueue <- item:
		DecodeQueueSizeGauge.Set(float64(len(p.workQueue)))
		p.Logger.V(1).Info("enqueued decode", "key", key)
	case <-p.stopped:
		return nil, ErrDecodePoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-item.done:
		return res.value, res.err
	case <-p.stopped:
		return nil, ErrDecodePoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker is the main worker loop that processes decode items.
func (p *DecodePool) worker(ctx context.Context, id int) {
	defer p.workersDone.Done()
	logger := p.Logger.WithValues("worker", id)
	logger.V(1).Info("worker started")
	defer logger.V(1).Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.workQueue:
			DecodeQueueSizeGauge.Set(float64(len(p.workQueue)))
			p.handle(logger, item)
		}
	}
}

func (p *DecodePool) handle(logger logr.Logger, item *decodeItem) {
	if err := item.Context.Err(); err != nil {
		item.done <- decodeResult{err: err}
		return
	}

	start := time.Now()
	value, err := item.Fn(item.Context)
	duration := time.Since(start).Seconds()
	if err != nil {
		logger.V(1).Info("decode failed", "key", item.Key, "duration", duration, "error", err.Error())
	} else {
		logger.V(1).Info("decoded", "key", item.Key, "duration", duration)
	}
	item.done <- decodeResult{value: value, err: err}
}
