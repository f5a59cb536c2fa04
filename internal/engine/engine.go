// Package engine exposes the offline-first sync subsystem to domain code:
// local-first reads and writes, pending-action bookkeeping, and explicit
// sync triggers. Callers never touch the store or the coordinator directly.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/finwiselabs/finsync/internal/store"
	"github.com/finwiselabs/finsync/internal/sync"
	"github.com/finwiselabs/finsync/internal/types"
)

// ErrClosed is returned for any call after Close.
var ErrClosed = errors.New("engine is closed")

// pushTimeout bounds the opportunistic push spawned by a domain write.
const pushTimeout = 15 * time.Second

// Engine is the facade over the store and the sync coordinator. Safe for
// concurrent use.
type Engine struct {
	store   store.Store
	coord   *sync.Coordinator
	watcher sync.Watcher

	mu     stdsync.Mutex
	closed bool
	wg     stdsync.WaitGroup

	subMu  stdsync.Mutex
	nextID int
	subs   map[int]chan types.Collection
}

// New wires the engine into the coordinator's change notifications.
func New(s store.Store, c *sync.Coordinator, w sync.Watcher) *Engine {
	e := &Engine{
		store:   s,
		coord:   c,
		watcher: w,
		subs:    make(map[int]chan types.Collection),
	}
	c.SetOnChange(e.notify)
	return e
}

// SaveRecord writes a record locally first, so callers are never blocked by
// network state. A domain write (synced=false) joins the dirty set and,
// when online, kicks a best-effort push for the collection; a replay action
// is queued only if that push cannot confirm the record, so each write
// reaches the remote side through exactly one channel. A write with
// synced=true records remote-confirmed data.
func (e *Engine) SaveRecord(ctx context.Context, collection types.Collection, rec types.Record, synced bool) (types.Record, error) {
	if err := e.check(); err != nil {
		return types.Record{}, err
	}
	if !collection.Valid() {
		return types.Record{}, fmt.Errorf("saving record: %w: %s", store.ErrUnknownCollection, collection)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LastModified == 0 {
		rec.LastModified = time.Now().UnixMilli()
	}
	rec.Synced = synced

	if err := e.store.Put(ctx, collection, rec, synced); err != nil {
		return types.Record{}, fmt.Errorf("saving record locally: %w", err)
	}
	if !synced {
		e.kickPush(collection)
	}

	e.notify(collection)
	return rec, nil
}

// GetRecords returns the local view of a collection, dirty records
// included. Reads are never gated on sync state.
func (e *Engine) GetRecords(ctx context.Context, collection types.Collection, ownerID string) ([]types.Record, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("listing records: %w: %s", store.ErrUnknownCollection, collection)
	}
	return e.store.GetAll(ctx, collection, ownerID)
}

// GetRecord returns one local record, or store.ErrNotFound.
func (e *Engine) GetRecord(ctx context.Context, collection types.Collection, id string) (*types.Record, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("getting record: %w: %s", store.ErrUnknownCollection, collection)
	}
	return e.store.GetOne(ctx, collection, id)
}

// DeleteRecord removes a record locally and enqueues the remote delete.
// Deleting a record the store does not hold is not an error; the delete
// intent is still queued in case the remote side has it.
func (e *Engine) DeleteRecord(ctx context.Context, collection types.Collection, id, ownerID string) error {
	if err := e.check(); err != nil {
		return err
	}
	if !collection.Valid() {
		return fmt.Errorf("deleting record: %w: %s", store.ErrUnknownCollection, collection)
	}
	if err := e.store.Remove(ctx, collection, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("removing record locally: %w", err)
	}
	data, err := json.Marshal(types.DeletePayload{ID: id, OwnerID: ownerID})
	if err != nil {
		return fmt.Errorf("encoding delete payload: %w", err)
	}
	if _, err := e.store.Enqueue(ctx, types.ActionDelete, collection, data); err != nil {
		return fmt.Errorf("enqueueing delete: %w", err)
	}
	e.kickPush(collection)
	e.notify(collection)
	return nil
}

// EnqueuePendingAction queues a raw remote mutation for the next drain.
func (e *Engine) EnqueuePendingAction(ctx context.Context, kind types.ActionKind, collection types.Collection, data json.RawMessage) (*types.PendingAction, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("enqueueing action: %w: %s", store.ErrUnknownCollection, collection)
	}
	return e.store.Enqueue(ctx, kind, collection, data)
}

// ForceFullRefresh mirrors a collection from the remote side. It fails
// with sync.ErrDirtyState rather than destroy unpushed local changes.
func (e *Engine) ForceFullRefresh(ctx context.Context, collection types.Collection, ownerID string) error {
	if err := e.check(); err != nil {
		return err
	}
	if !collection.Valid() {
		return fmt.Errorf("refreshing: %w: %s", store.ErrUnknownCollection, collection)
	}
	return e.coord.ForceRefresh(ctx, collection, ownerID)
}

// RunSyncNow runs a full push+drain pass. No-op when a pass is already in
// flight; sync.ErrOffline when disconnected.
func (e *Engine) RunSyncNow(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.coord.SyncNow(ctx)
}

// Status reports the coordinator state and queue depth.
func (e *Engine) Status(ctx context.Context) (sync.Status, error) {
	if err := e.check(); err != nil {
		return sync.Status{}, err
	}
	return e.coord.Status(ctx)
}

// PutSetting stores a device-local preference. Settings are never queued
// and never marked dirty.
func (e *Engine) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.store.PutSetting(ctx, key, value)
}

// GetSetting returns a device-local preference, or store.ErrNotFound.
func (e *Engine) GetSetting(ctx context.Context, key string) (*types.Setting, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.store.GetSetting(ctx, key)
}

// SyncStamp returns the recorded last-sync time for a collection name, or
// for the whole engine when key is types.GlobalSyncKey.
func (e *Engine) SyncStamp(ctx context.Context, key string) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return e.store.GetSyncMeta(ctx, key)
}

// ClearAll wipes records, pending actions, settings, and sync stamps.
// Used on sign-out.
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.store.ClearAll(ctx); err != nil {
		return err
	}
	for _, collection := range types.Collections() {
		e.notify(collection)
	}
	return nil
}

// Subscribe returns a channel that receives the collection name whenever
// local data for it changes, and a cancel function. Notifications are
// best-effort: a slow receiver misses intermediate events, never blocks the
// engine.
func (e *Engine) Subscribe() (<-chan types.Collection, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	ch := make(chan types.Collection, 8)
	e.subs[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

// Close waits for in-flight opportunistic pushes and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()

	e.subMu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.subMu.Unlock()

	return e.store.Close()
}

func (e *Engine) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// kickPush flushes one collection in the background when the device is
// online. Best-effort: the periodic pass catches anything it misses.
func (e *Engine) kickPush(collection types.Collection) {
	if !e.watcher.Online() {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := e.coord.PushCollection(ctx, collection); err != nil && !errors.Is(err, sync.ErrOffline) {
			slog.Debug("opportunistic push failed",
				"component", "engine",
				"action", "push_kick_failed",
				"collection", collection,
				"error", err,
			)
		}
	}()
}

func (e *Engine) notify(collection types.Collection) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- collection:
		default:
		}
	}
}
