package syncqueue

import "context"

// Job is a unit of remote work executed by an Executor.
type Job struct {
	// Run performs the remote call. A Job with a nil Run is skipped.
	Run func(ctx context.Context) error

	// OnAbandon is invoked once the executor will not run the job again:
	// the error was not retryable, attempts were exhausted, or the caller
	// context was cancelled. Rollback logic belongs here.
	OnAbandon func(err error)
}

func (j Job) abandon(err error) {
	if j.OnAbandon != nil {
		j.OnAbandon(err)
	}
}
