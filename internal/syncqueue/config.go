package syncqueue

import "time"

// Config tunes an Executor. Zero values fall back to the defaults applied
// in New.
type Config struct {
	// Shards is the number of worker goroutines. Jobs with the same key
	// always land on the same shard.
	Shards int

	// QueueSize is the per-shard buffer capacity.
	QueueSize int

	// EnqueueTimeout bounds how long Submit blocks on a full shard before
	// returning a QueueFullError.
	EnqueueTimeout time.Duration

	// MaxAttempts caps executions of a single job, first run included.
	MaxAttempts int

	// BaseBackoff is the initial delay between retries of a retryable
	// failure; it doubles up to MaxInterval.
	BaseBackoff time.Duration

	// MaxInterval caps the retry delay.
	MaxInterval time.Duration

	// ErrorHandler, when set, observes every abandoned error. It runs
	// after the job's own OnAbandon callback.
	ErrorHandler func(error)
}
