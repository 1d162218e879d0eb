// Package shardqueue runs jobs on a fixed set of workers. Jobs submitted
// under the same key share a worker and run one at a time in submission
// order; different keys may run in parallel.
//
// Callers must serialise Submit calls for one key themselves; ordering is
// defined by the order in which Submit returns.
package shardqueue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultName = "default"

type task struct {
	ctx context.Context
	job Job
}

// ShardExecutor owns one buffered queue and one worker goroutine per shard.
type ShardExecutor struct {
	cfg    Config
	name   string
	logger zerolog.Logger
	shards []chan task

	stopping chan struct{}
	stopped  atomic.Bool
	stopOnce sync.Once
	workers  sync.WaitGroup
}

// NewShardExecutor applies defaults to cfg and starts the workers.
func NewShardExecutor(cfg Config) *ShardExecutor {
	cfg = cfg.withDefaults()

	e := &ShardExecutor{
		cfg:      cfg,
		name:     cfg.Name,
		logger:   log.Logger,
		shards:   make([]chan task, cfg.Shards),
		stopping: make(chan struct{}),
	}
	if cfg.Logger != nil {
		e.logger = *cfg.Logger
	}
	e.logger = e.logger.With().Str("executor", e.name).Logger()

	e.workers.Add(cfg.Shards)
	for i := range e.shards {
		e.shards[i] = make(chan task, cfg.QueueSize)
		go e.work(i, e.shards[i])
	}
	return e
}

// Submit queues job on the shard that owns key. It waits at most
// EnqueueTimeout for room; a shard that stays full yields a
// *QueueFullError. A stopped executor yields ErrExecutorClosed and a
// cancelled ctx yields ctx.Err(). ctx is also handed to the job, which is
// skipped if ctx ends before it starts.
func (e *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if e.stopped.Load() {
		return ErrExecutorClosed
	}
	idx := e.shardOf(key)
	q := e.shards[idx]

	wait := time.NewTimer(e.cfg.EnqueueTimeout)
	defer wait.Stop()

	select {
	case q <- task{ctx: ctx, job: job}:
		pending.WithLabelValues(e.name).Inc()
		return nil
	case <-e.stopping:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-wait.C:
		rejectedTotal.WithLabelValues(e.name).Inc()
		return &QueueFullError{Shard: idx, Length: len(q), Capacity: cap(q)}
	}
}

// Barrier returns once every job submitted for key before the call has
// finished.
func (e *ShardExecutor) Barrier(ctx context.Context, key string) error {
	reached := make(chan struct{})
	err := e.Submit(ctx, key, JobFunc(func(context.Context) error {
		close(reached)
		return nil
	}))
	if err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work, lets each worker run what is still queued (jobs
// whose context has ended are dropped) and waits for the workers to exit.
// It may be called more than once and from several goroutines.
func (e *ShardExecutor) Stop() {
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		close(e.stopping)
		e.workers.Wait()
		e.logger.Debug().Int("shards", len(e.shards)).Msg("executor stopped")
	})
}

// Close implements io.Closer.
func (e *ShardExecutor) Close() error {
	e.Stop()
	return nil
}

func (e *ShardExecutor) work(idx int, q <-chan task) {
	defer e.workers.Done()
	for {
		select {
		case t := <-q:
			pending.WithLabelValues(e.name).Dec()
			if interrupted := e.execute(t); interrupted {
				return
			}
		case <-e.stopping:
			e.flush(idx, q)
			return
		}
	}
}

// execute runs t with retries. It reports true when Stop interrupted a
// backoff wait.
func (e *ShardExecutor) execute(t task) bool {
	if t.job == nil {
		return false
	}
	if err := t.ctx.Err(); err != nil {
		e.finish(outcomeCanceled, err)
		return false
	}

	var delays backoff.BackOff = &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxInterval,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	delays.Reset()

	for attempt := 1; ; attempt++ {
		err := e.attempt(t)
		switch {
		case err == nil:
			e.finish(outcomeOK, nil)
			return false
		case errors.Is(err, errJobPanicked):
			e.finish(outcomePanicked, err)
			return false
		case attempt >= e.cfg.MaxAttempts || !e.cfg.Retryable(err):
			e.finish(outcomeFailed, err)
			return false
		}

		e.logger.Debug().Err(err).Int("attempt", attempt).Msg("job failed, retrying")
		pause := time.NewTimer(delays.NextBackOff())
		select {
		case <-pause.C:
		case <-t.ctx.Done():
			pause.Stop()
			e.finish(outcomeCanceled, t.ctx.Err())
			return false
		case <-e.stopping:
			pause.Stop()
			return true
		}
	}
}

var errJobPanicked = errors.New("job panicked")

// attempt runs the job once, turning a panic into an error.
func (e *ShardExecutor) attempt(t task) (err error) {
	start := time.Now()
	defer func() {
		attemptSeconds.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("job panicked")
			err = fmt.Errorf("%w: %v", errJobPanicked, r)
		}
	}()
	return t.job.Run(t.ctx)
}

// flush runs the jobs left in q once each, without retries.
func (e *ShardExecutor) flush(idx int, q <-chan task) {
	ran := 0
	for {
		select {
		case t := <-q:
			pending.WithLabelValues(e.name).Dec()
			if t.job == nil || t.ctx.Err() != nil {
				continue
			}
			if err := e.attempt(t); err != nil {
				e.finish(outcomeFailed, err)
			} else {
				e.finish(outcomeOK, nil)
			}
			ran++
		default:
			if ran > 0 {
				e.logger.Debug().Int("shard", idx).Int("ran", ran).Msg("flushed queued jobs on stop")
			}
			return
		}
	}
}

// finish records the outcome and passes errors to the ErrorHandler, which
// is not allowed to take the worker down.
func (e *ShardExecutor) finish(outcome string, err error) {
	jobsTotal.WithLabelValues(e.name, outcome).Inc()
	if err == nil || e.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("error handler panicked")
		}
	}()
	e.cfg.ErrorHandler(err)
}

func (e *ShardExecutor) shardOf(key string) int {
	if len(e.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(e.shards)))
}

func isTransient(err error) bool {
	var perm *backoff.PermanentError
	return !errors.As(err, &perm)
}
