package dairy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dairynotes/dairy-client/internal/apierr"
	"github.com/dairynotes/dairy-client/internal/syncqueue"
)

// provisionalPrefix tags locally minted note identities that the backend
// has not confirmed yet.
const provisionalPrefix = "temp-"

func provisionalID() string { return provisionalPrefix + uuid.NewString() }

// IsProvisional reports whether id is a locally assigned identity awaiting
// backend confirmation.
func IsProvisional(id string) bool { return strings.HasPrefix(id, provisionalPrefix) }

// CacheEventKind enumerates the change notifications a NoteCache emits.
type CacheEventKind string

const (
	// EventNotesChanged fires when records are added, replaced or removed.
	EventNotesChanged CacheEventKind = "notes"
	// EventSelectionChanged fires when the current selection moves.
	EventSelectionChanged CacheEventKind = "selection"
	// EventCacheReset fires when the whole cache is discarded, e.g. on
	// credential revocation.
	EventCacheReset CacheEventKind = "reset"
)

// CacheEvent is a change notification. NoteID is set when the change is
// attributable to a single record.
type CacheEvent struct {
	Kind   CacheEventKind
	NoteID string
}

// CacheSnapshot is a consistent read-only copy of cache state for UI
// consumption.
type CacheSnapshot struct {
	Notes     []Note
	CurrentID string
	Loading   bool
	Creating  bool
	Deleting  []string // ids with deletes in flight
}

// NoteCache is the single source of truth the UI reads: an ordered
// collection of note records plus the current selection. Mutations apply
// optimistically and reconcile (or roll back) when the backend answers.
//
// Remote writes flow through a per-note FIFO queue, so operations on the
// same note are serialized while unrelated notes proceed independently.
type NoteCache struct {
	remote   *Client
	creds    CredentialSource
	exec     executor
	debounce time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	notes     []Note
	currentID string
	loading   bool
	creating  bool
	deleting  map[string]bool

	// Exactly one debounce timer exists per cache; a new update replaces
	// both the timer and its target. saveGen guards against a stale
	// timer that fired just before being replaced.
	saveTimer *time.Timer
	saveID    string
	saveGen   uint64

	subs []chan CacheEvent

	// SavedHook, when set, observes every note save confirmed by the
	// backend. It runs on an executor worker goroutine.
	SavedHook func(Note)
}

// NewNoteCache constructs a cache backed by remote, drawing credentials
// from creds and debouncing saves per cfg.
func NewNoteCache(remote *Client, creds CredentialSource, cfg Config) *NoteCache {
	debounce := cfg.SaveDebounce
	if debounce <= 0 {
		debounce = time.Second
	}
	return &NoteCache{
		remote:   remote,
		creds:    creds,
		exec:     newDefaultExecutor(),
		debounce: debounce,
		deleting: make(map[string]bool),
		log:      log.With().Str("component", "notecache").Logger(),
	}
}

// Close flushes nothing: a pending debounced save is dropped, matching
// the single-window offline model. The write queue drains jobs already
// submitted.
func (c *NoteCache) Close() error {
	c.mu.Lock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
		c.saveID = ""
	}
	c.mu.Unlock()
	c.exec.Stop()
	return nil
}

// --------------------------------------------------------------------
// Read surface
// --------------------------------------------------------------------

// Snapshot returns a consistent copy of the cache for rendering.
func (c *NoteCache) Snapshot() CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := CacheSnapshot{
		Notes:     make([]Note, len(c.notes)),
		CurrentID: c.currentID,
		Loading:   c.loading,
		Creating:  c.creating,
	}
	copy(snap.Notes, c.notes)
	for id := range c.deleting {
		snap.Deleting = append(snap.Deleting, id)
	}
	return snap
}

// Current returns the currently selected note, if any.
func (c *NoteCache) Current() (Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(c.currentID); idx >= 0 {
		return c.notes[idx], true
	}
	return Note{}, false
}

// Watch returns a channel of change notifications. Slow consumers lose
// events rather than blocking mutations; treat a received event as "take
// a fresh Snapshot", not as a delta.
func (c *NoteCache) Watch() <-chan CacheEvent {
	ch := make(chan CacheEvent, 16)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *NoteCache) notify(ev CacheEvent) {
	c.mu.Lock()
	subs := make([]chan CacheEvent, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// --------------------------------------------------------------------
// Bulk fetch
// --------------------------------------------------------------------

// Load fetches canonical records and replaces the local collection.
// Fails soft: on error the existing cache is kept untouched.
func (c *NoteCache) Load(ctx context.Context) error { return c.reload(ctx) }

// Refresh re-fetches canonical state, reconciling the current selection
// by identity lookup.
func (c *NoteCache) Refresh(ctx context.Context) error { return c.reload(ctx) }

func (c *NoteCache) reload(ctx context.Context) error {
	if _, ok := c.creds.Token(); !ok {
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	c.mu.Unlock()
	c.notify(CacheEvent{Kind: EventNotesChanged})

	notes, err := c.remote.ListNotes(ctx)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("note list fetch failed; keeping cached notes")
		if apierr.IsAuth(err) {
			c.authFailure()
		}
		c.notify(CacheEvent{Kind: EventNotesChanged})
		return err
	}
	c.notes = notes
	// Keep the selection when the record survived the refresh, otherwise
	// fall back to the first record by collection order.
	if c.indexLocked(c.currentID) < 0 {
		if len(c.notes) > 0 {
			c.currentID = c.notes[0].ID
		} else {
			c.currentID = ""
		}
	}
	c.mu.Unlock()

	c.notify(CacheEvent{Kind: EventNotesChanged})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})
	return nil
}

// CurrentID returns the identity of the selected note, or "".
func (c *NoteCache) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// --------------------------------------------------------------------
// Create
// --------------------------------------------------------------------

// Create inserts a blank note with a provisional identity at the front of
// the collection and selects it, then asks the backend for a durable
// record. The returned snapshot carries the provisional identity.
//
// A second Create while one is still in flight is rejected with
// ErrCreateInFlight so rapid repeated invocation cannot produce duplicate
// provisional rows.
func (c *NoteCache) Create(ctx context.Context) (Note, error) {
	if _, ok := c.creds.Token(); !ok {
		return Note{}, ErrNoCredential
	}

	c.mu.Lock()
	if c.creating {
		c.mu.Unlock()
		return Note{}, ErrCreateInFlight
	}
	c.creating = true
	now := time.Now().UTC()
	n := Note{ID: provisionalID(), CreatedAt: now, UpdatedAt: now}
	c.notes = append([]Note{n}, c.notes...)
	c.currentID = n.ID
	c.mu.Unlock()

	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: n.ID})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: n.ID})

	job := syncqueue.Job{
		Run: func(jctx context.Context) error {
			created, err := c.remote.CreateNote(jctx, CreateNoteRequest{Title: n.Title, Content: n.Content})
			if err != nil {
				return err
			}
			c.confirmCreate(n.ID, *created)
			return nil
		},
		OnAbandon: func(err error) { c.abandonCreate(n.ID, err) },
	}
	if err := c.exec.Submit(ctx, n.ID, job); err != nil {
		c.abandonCreate(n.ID, err)
		return Note{}, err
	}
	return n, nil
}

// confirmCreate swaps the provisional record for the durable one, in
// place, and re-points the selection if it referred to the provisional
// identity.
func (c *NoteCache) confirmCreate(tempID string, created Note) {
	c.mu.Lock()
	c.creating = false
	idx := c.indexLocked(tempID)
	if idx < 0 {
		// The user deleted the provisional row before the backend
		// confirmed it. Don't resurrect it; remove the orphan remotely.
		c.mu.Unlock()
		c.log.Info().Str("note_id", created.ID).Msg("provisional note deleted before create resolved; removing orphan")
		_ = c.exec.Submit(context.Background(), created.ID, syncqueue.Job{
			Run: func(jctx context.Context) error {
				return c.remote.DeleteNote(jctx, created.ID)
			},
			OnAbandon: func(err error) {
				c.log.Warn().Err(err).Str("note_id", created.ID).Msg("orphan note delete failed")
			},
		})
		return
	}
	c.notes[idx] = created
	if c.currentID == tempID {
		c.currentID = created.ID
	}
	c.mu.Unlock()

	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: created.ID})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})
}

// abandonCreate removes the provisional record after a failed create and
// falls back to whatever remains selected.
func (c *NoteCache) abandonCreate(tempID string, err error) {
	c.mu.Lock()
	c.creating = false
	if idx := c.indexLocked(tempID); idx >= 0 {
		c.notes = append(c.notes[:idx], c.notes[idx+1:]...)
		if c.currentID == tempID {
			if len(c.notes) > 0 {
				c.currentID = c.notes[0].ID
			} else {
				c.currentID = ""
			}
		}
	}
	c.mu.Unlock()

	createRollbacksTotal.Inc()
	c.log.Warn().Err(err).Str("note_id", tempID).Msg("note create failed; provisional record removed")
	if apierr.IsAuth(err) {
		c.authFailure()
	}
	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: tempID})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})
}

// --------------------------------------------------------------------
// Update (debounced)
// --------------------------------------------------------------------

// Update applies patch to the record immediately and schedules a
// debounced remote write. Repeated updates to the same identity within
// the window collapse into a single write carrying the most recent field
// values; an update to a *different* identity replaces the pending write
// target entirely.
//
// Saves against a provisional identity are dropped: a record is not
// independently editable until its create round-trip completes.
func (c *NoteCache) Update(id string, patch NotePatch) {
	c.mu.Lock()
	if IsProvisional(id) {
		c.mu.Unlock()
		c.log.Debug().Str("note_id", id).Msg("dropping save for unconfirmed note")
		return
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	n := c.notes[idx]
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	n.UpdatedAt = time.Now().UTC()
	c.notes[idx] = n

	// Retarget the single debounce timer.
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveID = id
	c.saveGen++
	gen := c.saveGen
	c.saveTimer = time.AfterFunc(c.debounce, func() { c.flushSave(id, gen) })
	c.mu.Unlock()

	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: id})
}

// FlushPending fires any pending debounced save immediately.
func (c *NoteCache) FlushPending() {
	c.mu.Lock()
	id := c.saveID
	gen := c.saveGen
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.mu.Unlock()
	if id != "" {
		c.flushSave(id, gen)
	}
}

// flushSave runs when the debounce window elapses. It reads the record's
// current field values (not the values captured when the timer was
// armed), so the single write always carries the last-applied state.
func (c *NoteCache) flushSave(id string, gen uint64) {
	c.mu.Lock()
	if c.saveID != id || c.saveGen != gen {
		// Superseded by a newer update.
		c.mu.Unlock()
		return
	}
	c.saveID = ""
	c.saveTimer = nil
	idx := c.indexLocked(id)
	if idx < 0 {
		// Deleted while the timer was pending.
		c.mu.Unlock()
		return
	}
	n := c.notes[idx]
	c.mu.Unlock()

	job := syncqueue.Job{
		Run: func(jctx context.Context) error {
			updated, err := c.remote.UpdateNote(jctx, id, UpdateNoteRequest{Title: n.Title, Content: n.Content})
			if err != nil {
				return err
			}
			notesSavedTotal.Inc()
			if hook := c.SavedHook; hook != nil {
				hook(*updated)
			}
			return nil
		},
		OnAbandon: func(err error) {
			// Best-effort eventual consistency: the optimistic field
			// values stay put so typed content is never erased.
			c.log.Warn().Err(err).Str("note_id", id).Msg("note save failed; keeping local edits")
			if apierr.IsAuth(err) {
				c.authFailure()
			}
		},
	}
	if err := c.exec.Submit(context.Background(), id, job); err != nil {
		c.log.Warn().Err(err).Str("note_id", id).Msg("note save could not be queued")
	}
}

// --------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------

// Delete removes the note immediately. Provisional records vanish with no
// remote call. For durable records the remote delete runs asynchronously;
// if it ultimately fails the record is reinserted at the front of the
// collection and restored as current if it had been current.
func (c *NoteCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrNotFound
	}
	removed := c.notes[idx]
	wasCurrent := c.currentID == id
	c.notes = append(c.notes[:idx], c.notes[idx+1:]...)
	if wasCurrent {
		switch {
		case idx < len(c.notes):
			c.currentID = c.notes[idx].ID // next remaining record
		case len(c.notes) > 0:
			c.currentID = c.notes[len(c.notes)-1].ID
		default:
			c.currentID = ""
		}
	}

	if IsProvisional(id) {
		// Nothing was ever persisted; purely local removal. The create
		// confirmation path handles the in-flight round trip.
		c.mu.Unlock()
		c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: id})
		c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})
		return nil
	}

	// A pending debounced save for a deleted note is moot.
	if c.saveID == id {
		if c.saveTimer != nil {
			c.saveTimer.Stop()
		}
		c.saveTimer = nil
		c.saveID = ""
	}
	c.deleting[id] = true
	c.mu.Unlock()

	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: id})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})

	job := syncqueue.Job{
		Run: func(jctx context.Context) error {
			if err := c.remote.DeleteNote(jctx, id); err != nil {
				return err
			}
			c.mu.Lock()
			delete(c.deleting, id)
			c.mu.Unlock()
			return nil
		},
		OnAbandon: func(err error) { c.abandonDelete(removed, wasCurrent, err) },
	}
	if err := c.exec.Submit(ctx, id, job); err != nil {
		c.abandonDelete(removed, wasCurrent, err)
		return err
	}
	return nil
}

// abandonDelete reinserts the record after a failed remote delete.
// Deletion is destructive, so it must be fully reversible.
func (c *NoteCache) abandonDelete(removed Note, wasCurrent bool, err error) {
	c.mu.Lock()
	delete(c.deleting, removed.ID)
	if c.indexLocked(removed.ID) >= 0 {
		// Already present again (e.g. a refresh raced the rollback);
		// never duplicate an identity.
		c.mu.Unlock()
		return
	}
	c.notes = append([]Note{removed}, c.notes...)
	if wasCurrent {
		c.currentID = removed.ID
	}
	c.mu.Unlock()

	deleteRollbacksTotal.Inc()
	c.log.Warn().Err(err).Str("note_id", removed.ID).Msg("note delete failed; record restored")
	if apierr.IsAuth(err) {
		c.authFailure()
	}
	c.notify(CacheEvent{Kind: EventNotesChanged, NoteID: removed.ID})
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: c.CurrentID()})
}

// --------------------------------------------------------------------
// Selection, reset
// --------------------------------------------------------------------

// SetCurrent moves the selection. Pass "" to clear it. Purely local.
func (c *NoteCache) SetCurrent(id string) error {
	c.mu.Lock()
	if id != "" && c.indexLocked(id) < 0 {
		c.mu.Unlock()
		return ErrNotFound
	}
	c.currentID = id
	c.mu.Unlock()
	c.notify(CacheEvent{Kind: EventSelectionChanged, NoteID: id})
	return nil
}

// Reset discards all cached records, the selection and any pending
// debounced save. Invoked when the credential is revoked.
func (c *NoteCache) Reset() {
	c.mu.Lock()
	c.notes = nil
	c.currentID = ""
	c.loading = false
	c.creating = false
	c.deleting = make(map[string]bool)
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.saveID = ""
	c.mu.Unlock()
	c.notify(CacheEvent{Kind: EventCacheReset})
}

// authFailure handles an expired credential detected via a failed
// authenticated call: clear the credential and drop all local state.
func (c *NoteCache) authFailure() {
	c.log.Warn().Msg("credential rejected by backend; clearing token and cache")
	c.creds.Clear()
	c.Reset()
}

// AwaitSync blocks until all previously submitted remote writes for the
// given note identity have been executed, by queueing a no-op behind them.
func (c *NoteCache) AwaitSync(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	job := syncqueue.Job{Run: func(context.Context) error {
		close(done)
		return nil
	}}
	if err := c.exec.Submit(ctx, id, job); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// indexLocked returns the position of id in the collection, or -1.
// Callers must hold c.mu.
func (c *NoteCache) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.notes {
		if c.notes[i].ID == id {
			return i
		}
	}
	return -1
}
