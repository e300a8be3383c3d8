// Package bus is the background task bus. API handlers publish tasks and
// return; a pool of workers consumes them with an at-least-once guarantee.
// The broker backend is picked from the JOBS_BROKER_URL scheme: memory://
// keeps tasks in-process, redis:// moves them through a Redis list so any
// pod can drain them.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
)

// Handler processes one task payload. Returning an error triggers a retry
// unless the error is fatal (apperr.IsFatal).
type Handler func(ctx context.Context, payload []byte) error

// envelope is the wire form of a queued task.
type envelope struct {
	Name       string          `json:"task_name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// broker moves opaque task bytes. Implementations must make dequeue block
// until a task arrives or the context ends.
type broker interface {
	enqueue(ctx context.Context, msg []byte) error
	dequeue(ctx context.Context) ([]byte, error)
	close() error
}

// maxRetries is the number of re-executions after a failed first attempt,
// so a task runs at most 1+maxRetries times.
const maxRetries = 3

// Bus owns the handler registry and the worker pool draining the broker.
type Bus struct {
	cfg       config.BrokerConfig
	broker    broker
	logger    *slog.Logger
	retryBase time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// Option customizes a Bus.
type Option func(*Bus)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithRetryBaseDelay overrides the first retry delay. Mostly for tests.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(b *Bus) { b.retryBase = d }
}

// New builds a Bus with the broker selected by the configured URL scheme.
func New(cfg config.BrokerConfig, opts ...Option) (*Bus, error) {
	b := &Bus{
		cfg:       cfg,
		logger:    slog.Default(),
		retryBase: 500 * time.Millisecond,
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}

	switch {
	case strings.HasPrefix(cfg.URL, "memory://"):
		b.broker = newMemoryBroker()
	case strings.HasPrefix(cfg.URL, "redis://"), strings.HasPrefix(cfg.URL, "rediss://"):
		redisOpts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing broker url: %w", err)
		}
		b.broker = newRedisBroker(redis.NewClient(redisOpts))
	default:
		return nil, fmt.Errorf("unsupported broker url %q", cfg.URL)
	}
	return b, nil
}

// Register binds a handler to a task name. Registering a duplicate name
// panics: it is a wiring bug, not a runtime condition.
func (b *Bus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		panic(fmt.Sprintf("bus: handler %q registered twice", name))
	}
	b.handlers[name] = h
}

// Publish enqueues a task. The payload is marshalled to JSON.
func (b *Bus) Publish(ctx context.Context, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling task %q payload: %w", name, err)
	}
	msg, err := json.Marshal(envelope{Name: name, Payload: raw, EnqueuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshalling task %q envelope: %w", name, err)
	}
	if err := b.broker.enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueueing task %q: %w", name, err)
	}
	return nil
}

// Start spawns the worker goroutines. Safe to call once; subsequent calls
// are no-ops.
func (b *Bus) Start(ctx context.Context) {
	if b.started {
		b.logger.Warn("Task bus already started, ignoring duplicate Start call")
		return
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.logger.Info("Starting task bus", "concurrency", b.cfg.Concurrency)

	for i := 0; i < b.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("bus-worker-%d", i)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.run(ctx, workerID)
		}()
	}
}

// Stop signals workers to stop and waits for in-flight tasks to finish.
// Safe to call multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
		if err := b.broker.close(); err != nil {
			b.logger.Warn("Closing task broker failed", "error", err)
		}
		b.logger.Info("Task bus stopped")
	})
}

// run is the main worker loop.
func (b *Bus) run(ctx context.Context, workerID string) {
	log := b.logger.With("worker_id", workerID)
	log.Info("Bus worker started")

	for {
		msg, err := b.broker.dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Bus worker shutting down")
				return
			}
			log.Error("Dequeue failed", "error", err)
			b.sleep(ctx, time.Second)
			continue
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Error("Discarding undecodable task", "error", err)
			continue
		}
		b.execute(ctx, env, log)
	}
}

// execute runs one task through the retry budget. Fatal errors and
// exhausted budgets end up in sentry; the task is then dropped.
func (b *Bus) execute(ctx context.Context, env envelope, log *slog.Logger) {
	b.mu.RLock()
	handler, ok := b.handlers[env.Name]
	b.mu.RUnlock()
	if !ok {
		log.Error("No handler registered for task", "task_name", env.Name)
		return
	}

	start := time.Now()
	var err error
	for retry := 0; retry <= maxRetries; retry++ {
		err = b.runAttempt(ctx, handler, env.Payload)
		if err == nil {
			break
		}
		if apperr.IsFatal(err) {
			log.Error("Task failed fatally", "task_name", env.Name, "error", err)
			break
		}
		if retry == maxRetries || ctx.Err() != nil {
			break
		}
		jobRetries.WithLabelValues(env.Name).Inc()
		delay := b.backoff(retry + 1)
		log.Warn("Task failed, retrying",
			"task_name", env.Name, "attempt", retry+1, "delay", delay, "error", err)
		b.sleep(ctx, delay)
	}

	jobExecutionTime.WithLabelValues(env.Name, fmt.Sprintf("%t", err != nil)).
		Set(time.Since(start).Seconds())

	if err != nil {
		log.Error("Task failed permanently", "task_name", env.Name, "error", err)
		sentry.CaptureException(fmt.Errorf("task %s: %w", env.Name, err))
		return
	}
	log.Debug("Task completed", "task_name", env.Name, "duration", time.Since(start))
}

// runAttempt bounds one handler invocation by the task timeout.
func (b *Bus) runAttempt(ctx context.Context, handler Handler, payload []byte) (err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal(nil, "task handler panicked: %v", r).AsFatal()
		}
	}()
	return handler(attemptCtx, payload)
}

// backoff returns the delay before the given retry, exponential with
// jitter in [base, 2*base) per step.
func (b *Bus) backoff(attempt int) time.Duration {
	base := b.retryBase << (attempt - 1)
	return base + time.Duration(rand.Int64N(int64(base)))
}

// sleep waits for d or until the bus is stopped.
func (b *Bus) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
