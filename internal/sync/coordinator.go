// Package sync implements the offline-first synchronization coordinator:
// the single-flight state machine that pushes dirty records, drains the
// pending-action log, and mirrors collections from the remote side on an
// explicit refresh.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/finwiselabs/finsync/internal/store"
	"github.com/finwiselabs/finsync/internal/types"
)

var (
	// ErrOffline is returned for explicit triggers while no connectivity is
	// available. Background triggers are suppressed silently instead.
	ErrOffline = errors.New("device is offline")
	// ErrSyncInProgress is returned when a force refresh collides with an
	// in-flight sync pass.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrDirtyState is returned when a force refresh would destroy local
	// records that have not been pushed yet.
	ErrDirtyState = errors.New("unsynced local changes present")
)

// State is the coordinator's explicit state token. It is owned by the
// coordinator instance, so coordinators do not interfere with each other.
type State int32

const (
	StateIdle State = iota
	StateSyncing
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// RemoteClient is the transport contract the coordinator needs from the
// remote API. Satisfied by *remote.Client.
type RemoteClient interface {
	FetchAll(ctx context.Context, collection types.Collection, ownerID string) ([]types.WireRecord, error)
	Create(ctx context.Context, collection types.Collection, rec types.WireRecord) (*types.WireRecord, error)
	Update(ctx context.Context, collection types.Collection, rec types.WireRecord) (*types.WireRecord, error)
	Delete(ctx context.Context, collection types.Collection, id, ownerID string) error
}

// Options tune the coordinator. Zero values select the defaults.
type Options struct {
	// Interval between periodic background sync passes.
	Interval time.Duration
	// MaxRetries is the retry ceiling for pending actions beyond the first
	// attempt.
	MaxRetries int
	// Sink receives drops and permanent rejections. Defaults to LogSink.
	Sink ErrorSink
}

const (
	defaultInterval   = 30 * time.Second
	defaultMaxRetries = 3
)

// Coordinator owns the single-flight guarantee and the trigger policy.
// Domain writes may land in the store concurrently with a pass; store
// upserts are idempotent by id, so the guard only prevents duplicate passes.
type Coordinator struct {
	store      store.Store
	remote     RemoteClient
	watcher    Watcher
	sink       ErrorSink
	interval   time.Duration
	maxRetries int

	mu       stdsync.Mutex
	state    State
	lastSync time.Time
	// rejected records the LastModified of record versions the remote side
	// refused with a terminal error, keyed by collection/id. The push skips
	// a record until an edit moves it past the rejected version.
	rejected map[string]int64

	kicks    chan struct{}
	onChange func(types.Collection)
}

// New creates a coordinator. The watcher decides when triggers are
// suppressed; the sink defaults to LogSink.
func New(s store.Store, rc RemoteClient, w Watcher, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	return &Coordinator{
		store:      s,
		remote:     rc,
		watcher:    w,
		sink:       opts.Sink,
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		state:      StateOffline,
		rejected:   make(map[string]int64),
		kicks:      make(chan struct{}, 1),
	}
}

// SetOnChange registers a callback invoked after a sync pass or refresh
// changes local state for a collection. Must be set before Run.
func (c *Coordinator) SetOnChange(fn func(types.Collection)) {
	c.onChange = fn
}

// State returns the current state token.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSync returns the completion time of the most recent sync pass, or the
// zero time if none has run.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Trigger requests an asynchronous sync pass from the Run loop. Triggers
// are coalesced; while offline or syncing the request is a no-op.
func (c *Coordinator) Trigger() {
	select {
	case c.kicks <- struct{}{}:
	default:
	}
}

// Run drives the coordinator until ctx is cancelled: periodic ticks,
// connectivity transitions, and explicit triggers all funnel here.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "sync",
		"worker", "coordinator",
		"action", "worker_started",
	)

	if !c.watcher.Online() {
		c.setOffline()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "sync",
				"worker", "coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case online := <-c.watcher.Changes():
			if online {
				slog.Info("connectivity regained, starting sync",
					"component", "sync",
					"action", "sync_trigger",
					"trigger", "connectivity",
				)
				c.syncPass(ctx)
			} else {
				c.setOffline()
			}
		case <-ticker.C:
			if c.watcher.Online() {
				c.syncPass(ctx)
			}
		case <-c.kicks:
			if c.watcher.Online() {
				c.syncPass(ctx)
			}
		}
	}
}

// SyncNow runs a full push+drain pass synchronously. A second trigger while
// a pass is in flight is a no-op; while offline it returns ErrOffline.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	if !c.watcher.Online() {
		return ErrOffline
	}
	if !c.beginPass() {
		return nil
	}
	defer c.endPass()
	return c.runPass(ctx)
}

// syncPass is the background-trigger variant of SyncNow: failures are
// logged, never surfaced.
func (c *Coordinator) syncPass(ctx context.Context) {
	if !c.beginPass() {
		return
	}
	defer c.endPass()

	if err := c.runPass(ctx); err != nil {
		slog.Warn("sync pass finished with errors",
			"component", "sync",
			"action", "sync_pass_failed",
			"error", err,
		)
	}
}

// runPass pushes every collection, then drains the pending-action log.
// Within-collection FIFO order is preserved by the drain; collections are
// independent.
func (c *Coordinator) runPass(ctx context.Context) error {
	start := time.Now()
	var errs []error

	for _, collection := range types.Collections() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.pushCollection(ctx, collection); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.drain(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := c.store.SetSyncMeta(ctx, types.GlobalSyncKey, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		errs = append(errs, err)
	}

	slog.Info("sync pass completed",
		"component", "sync",
		"action", "sync_pass_complete",
		"duration", time.Since(start),
		"errors", len(errs),
	)

	return errors.Join(errs...)
}

// beginPass acquires the single-flight guard. Returns false when a pass is
// already in flight.
func (c *Coordinator) beginPass() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSyncing {
		return false
	}
	c.state = StateSyncing
	return true
}

// endPass releases the single-flight guard regardless of how the pass
// ended; callers defer it so the guard can never stay stuck in Syncing.
func (c *Coordinator) endPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher.Online() {
		c.state = StateIdle
	} else {
		c.state = StateOffline
	}
	c.lastSync = time.Now()
}

func rejectKey(collection types.Collection, id string) string {
	return string(collection) + "/" + id
}

func (c *Coordinator) markRejected(collection types.Collection, id string, lastModified int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected[rejectKey(collection, id)] = lastModified
}

// isRejected reports whether this version of the record has already been
// refused by the remote side. A later edit clears the hold.
func (c *Coordinator) isRejected(collection types.Collection, id string, lastModified int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rejectedAt, ok := c.rejected[rejectKey(collection, id)]
	return ok && lastModified <= rejectedAt
}

// clearRejected forgets every rejection hold for a collection. Called after
// a mirror replaces the collection's contents wholesale.
func (c *Coordinator) clearRejected(collection types.Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := string(collection) + "/"
	for k := range c.rejected {
		if strings.HasPrefix(k, prefix) {
			delete(c.rejected, k)
		}
	}
}

func (c *Coordinator) setOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSyncing {
		c.state = StateOffline
	}
}

func (c *Coordinator) notify(collection types.Collection) {
	if c.onChange != nil {
		c.onChange(collection)
	}
}
