package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finwiselabs/finsync/internal/remote"
	"github.com/finwiselabs/finsync/internal/store"
	"github.com/finwiselabs/finsync/internal/types"
)

// PushCollection pushes the dirty set of one collection. Exposed so a
// domain write can opportunistically flush its own collection without
// waiting for the periodic pass.
func (c *Coordinator) PushCollection(ctx context.Context, collection types.Collection) error {
	if !c.watcher.Online() {
		return ErrOffline
	}
	if !c.beginPass() {
		return nil
	}
	defer c.endPass()
	return c.pushCollection(ctx, collection)
}

// pushCollection sends every unsynced record via update, falling back to
// create when the remote side has never seen the id. It never retries a
// record in-line: a retryable failure is converted into a pending action so
// the drain policy owns its fate.
func (c *Coordinator) pushCollection(ctx context.Context, collection types.Collection) error {
	dirty, err := c.store.GetUnsynced(ctx, collection)
	if err != nil {
		return fmt.Errorf("loading dirty set for %s: %w", collection, err)
	}
	if len(dirty) == 0 {
		return nil
	}

	slog.Debug("pushing dirty records",
		"component", "sync",
		"action", "push_start",
		"collection", collection,
		"count", len(dirty),
	)

	queued, err := c.queuedReplays(ctx, collection)
	if err != nil {
		return err
	}

	var errs []error
	changed := false
	for _, rec := range dirty {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		// The pending log owns delivery for a record with a queued replay,
		// and a terminally rejected version is never re-sent. Each write
		// reaches the remote side through one channel only.
		if queued[rec.ID] || c.isRejected(collection, rec.ID, rec.LastModified) {
			continue
		}
		if err := c.pushRecord(ctx, collection, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		changed = true
	}
	if changed {
		c.notify(collection)
	}
	return errors.Join(errs...)
}

// queuedReplays reports which record ids already have a create or update
// replay waiting in the pending log. The push skips those records so a
// failed push followed by a drain does not send the same write twice.
func (c *Coordinator) queuedReplays(ctx context.Context, collection types.Collection) (map[string]bool, error) {
	actions, err := c.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending actions: %w", err)
	}
	queued := make(map[string]bool)
	for _, action := range actions {
		if action.Collection != collection {
			continue
		}
		if action.Kind != types.ActionCreate && action.Kind != types.ActionUpdate {
			continue
		}
		var wire types.WireRecord
		if err := json.Unmarshal(action.Data, &wire); err != nil {
			continue
		}
		queued[wire.ID] = true
	}
	return queued, nil
}

func (c *Coordinator) pushRecord(ctx context.Context, collection types.Collection, rec types.Record) error {
	wire := rec.Wire()

	_, err := c.remote.Update(ctx, collection, wire)
	if errors.Is(err, remote.ErrNotFound) {
		_, err = c.remote.Create(ctx, collection, wire)
	}
	if err == nil {
		if mErr := c.store.MarkSynced(ctx, collection, rec.ID, rec.LastModified); mErr != nil && !errors.Is(mErr, store.ErrNotFound) {
			return fmt.Errorf("marking %s/%s synced: %w", collection, rec.ID, mErr)
		}
		return nil
	}

	if remote.IsTerminal(err) {
		// The remote side will never accept this version. Remember it so the
		// push loop stops re-sending; the record stays dirty and visible as
		// diverged, and a newer local edit gets a fresh attempt.
		c.sink.RecordRejected(collection, rec.ID, err)
		c.markRejected(collection, rec.ID, rec.LastModified)
		return nil
	}

	// Retryable: hand the record to the pending-action log and move on.
	data, mErr := json.Marshal(wire)
	if mErr != nil {
		return fmt.Errorf("encoding %s/%s for replay: %w", collection, rec.ID, mErr)
	}
	if _, qErr := c.store.Enqueue(ctx, types.ActionUpdate, collection, data); qErr != nil {
		return fmt.Errorf("enqueueing replay for %s/%s: %w", collection, rec.ID, qErr)
	}
	slog.Debug("push deferred to pending log",
		"component", "sync",
		"action", "push_deferred",
		"collection", collection,
		"record_id", rec.ID,
		"error", err,
	)
	return nil
}
