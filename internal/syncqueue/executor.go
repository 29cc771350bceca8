// Package syncqueue provides a lightweight sharded work-queue that
// guarantees FIFO order *per key* while allowing parallelism across
// shards. The note cache uses it with note identities as keys, so writes
// to the same note are serialized while unrelated notes proceed
// independently.
//
// **Contract**: Callers **must not** invoke Submit concurrently for the
// *same* key. FIFO ordering relies on that external serialisation.
package syncqueue

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/dairynotes/dairy-client/internal/apierr"
)

type queuedJob struct {
	ctx context.Context
	job Job
}

// Executor runs Jobs on worker goroutines partitioned by a stable hash of
// the key. Retryable failures (see apierr.IsRetryable) are retried with
// exponential backoff; anything else is abandoned immediately via the
// job's OnAbandon callback.
type Executor struct {
	cfg    Config
	queues []chan queuedJob // len == cfg.Shards

	done   chan struct{} // closed in Stop()
	closed uint32        // 0 → running, 1 → closed

	wg sync.WaitGroup
}

// New constructs the executor and starts its shard workers.
func New(cfg Config) *Executor {
	// Apply zero-value defaults.
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	p := &Executor{
		cfg:    cfg,
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job for the shard derived from key.
//
//   - Returns nil on success.
//   - Returns ErrExecutorClosed if the executor is stopped.
//   - Returns a *QueueFullError if the shard is still full after
//     EnqueueTimeout elapses.
//   - Returns ctx.Err() if the caller-provided context is cancelled first.
func (p *Executor) Submit(ctx context.Context, key string, job Job) error {
	// Fast checks to avoid accepting work after Stop().
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}
	select {
	case <-p.done:
		return ErrExecutorClosed
	default:
	}

	qj := queuedJob{ctx: ctx, job: job}
	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- qj:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil

	case <-p.done: // Stop() may be called while waiting for space
		return ErrExecutorClosed

	case <-ctx.Done():
		return ctx.Err()

	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{
			Shard:    shard,
			Length:   len(ch),
			Capacity: cap(ch),
		}
	}
}

// Barrier enqueues a no-op job on the shard for key and waits until it
// runs, ensuring all previously submitted jobs for that key have
// completed.
func (p *Executor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	j := Job{Run: func(context.Context) error {
		close(done)
		return nil
	}}
	if err := p.Submit(ctx, key, j); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop signals every worker to finish draining its current queue, waits
// for them to terminate, and then returns. It is idempotent and safe for
// concurrent use.
func (p *Executor) Stop() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return // already closed
	}
	close(p.done)
	p.wg.Wait()
}

// Close lets Executor satisfy io.Closer.
func (p *Executor) Close() error {
	p.Stop()
	return nil
}

// ------------------------- internals -------------------------

func (p *Executor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()

	// Protect the worker from crashing the entire executor.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("shard", idx).Interface("panic", r).Msg("syncqueue: worker panic")
		}
	}()

	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			if qj.job.Run == nil {
				continue
			}

			// Honour caller context so a cancelled job doesn't stall the shard.
			select {
			case <-qj.ctx.Done():
				p.abandon(qj.job, qj.ctx.Err())
			default:
				p.runWithRetry(qj, label)
			}

			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			// Drain remaining jobs, preserving FIFO, then exit. Drained
			// jobs run exactly once; there is no time left for retries.
			for {
				select {
				case qj := <-ch:
					if qj.job.Run == nil {
						continue
					}
					if err := qj.job.Run(qj.ctx); err != nil {
						p.abandon(qj.job, err)
					}
				default:
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

func (p *Executor) runWithRetry(qj queuedJob, label string) {
	attempts := 0
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	for {
		start := time.Now()
		err := qj.job.Run(qj.ctx)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

		if err == nil {
			return
		}

		// Fail fast on errors a retry cannot fix (auth, validation,
		// protocol) so rollback paths run promptly.
		if !apierr.IsRetryable(err) {
			p.abandon(qj.job, err)
			return
		}

		if attempts >= p.cfg.MaxAttempts-1 {
			p.abandon(qj.job, err) // max retries exceeded
			return
		}

		attempts++
		wait := exp.NextBackOff()
		select {
		case <-time.After(wait):
		case <-p.done:
			p.abandon(qj.job, err)
			return
		case <-qj.ctx.Done():
			p.abandon(qj.job, qj.ctx.Err())
			return
		}
	}
}

func (p *Executor) abandon(job Job, err error) {
	if err == nil {
		return
	}
	// Guard against panics in caller-supplied callbacks.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("syncqueue: abandon callback panic")
		}
	}()
	job.abandon(err)
	if p.cfg.ErrorHandler != nil {
		p.cfg.ErrorHandler(err)
	}
}

func (p *Executor) shardFor(key string) int {
	h := fnv.New32a() // fast and sufficient at our scale
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % p.cfg.Shards
}
