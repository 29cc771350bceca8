package dairy

import (
	"context"

	"github.com/dairynotes/dairy-client/internal/syncqueue"
)

// executor abstracts the per-note remote write queue used by NoteCache.
// Keys are note identities, so writes to the same note run in FIFO order
// while unrelated notes proceed in parallel.
type executor interface {
	Submit(ctx context.Context, key string, job syncqueue.Job) error
	Stop()
}

// newDefaultExecutor constructs the syncqueue executor with sane defaults.
func newDefaultExecutor() *syncqueue.Executor {
	return syncqueue.New(syncqueue.Config{Shards: 4, QueueSize: 256})
}
