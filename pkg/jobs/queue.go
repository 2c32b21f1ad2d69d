package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// ErrQueueStopped is returned when enqueueing before Start or after Stop.
var ErrQueueStopped = errors.New("queue not running")

// Handler processes one item.
type Handler[T any] func(context.Context, T) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type envelope[T any] struct {
	item    T
	attempt int
}

// Queue dispatches typed items to a fixed pool of goroutines. Items still
// buffered when Stop is called are handled before Stop returns.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     QueueConfig

	items chan envelope[T]
	wg    sync.WaitGroup
	mu    sync.RWMutex
	state int
}

const (
	stateIdle = iota
	stateRunning
	stateStopped
)

// NewQueue builds a queue for handler.
func NewQueue[T any](name string, handler Handler[T], cfg QueueConfig) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		items:   make(chan envelope[T], cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue[T]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.state = stateRunning
	q.cfg.Logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.cfg.Workers))
}

// Stop refuses new items, drains the buffer and waits for workers or ctx.
func (q *Queue[T]) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return nil
	}
	q.state = stateStopped
	close(q.items)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cfg.Logger.Info("queue stopped", zap.String("queue", q.name))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s drain: %w", q.name, ctx.Err())
	}
}

// TryEnqueue buffers item without blocking.
func (q *Queue[T]) TryEnqueue(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state != stateRunning {
		return ErrQueueStopped
	}
	select {
	case q.items <- envelope[T]{item: item}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for env := range q.items {
		q.process(env)
	}
}

// process retries inline so a draining queue never re-enqueues into a closed channel.
func (q *Queue[T]) process(env envelope[T]) {
	for {
		err := q.handler(context.Background(), env.item)
		if err == nil {
			return
		}
		env.attempt++
		if env.attempt > q.cfg.MaxRetries {
			q.cfg.Logger.Error("job exceeded retries", zap.String("queue", q.name), zap.Int("attempts", env.attempt), zap.Error(err))
			return
		}
		q.cfg.Logger.Warn("job failed, retrying", zap.String("queue", q.name), zap.Int("attempt", env.attempt), zap.Error(err))
		time.Sleep(q.cfg.RetryDelay)
	}
}
