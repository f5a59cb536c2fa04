package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
)

// ForceRefresh mirrors one collection from the remote side: clear, then
// repopulate with every fetched record marked synced. Because the mirror is
// destructive, unflushed local changes are flushed first; if anything is
// still dirty or pending for the collection afterwards, the refresh refuses
// to run rather than lose data.
func (c *Coordinator) ForceRefresh(ctx context.Context, collection types.Collection, ownerID string) error {
	if !c.watcher.Online() {
		return ErrOffline
	}
	if !c.beginPass() {
		return ErrSyncInProgress
	}
	defer c.endPass()

	// Flush before mirroring. Failures here are tolerated; the dirty check
	// below decides whether the refresh may proceed.
	if err := c.pushCollection(ctx, collection); err != nil {
		slog.Warn("pre-refresh push incomplete",
			"component", "sync",
			"action", "refresh_push_failed",
			"collection", collection,
			"error", err,
		)
	}
	if err := c.drain(ctx); err != nil {
		slog.Warn("pre-refresh drain incomplete",
			"component", "sync",
			"action", "refresh_drain_failed",
			"collection", collection,
			"error", err,
		)
	}

	clean, err := c.collectionClean(ctx, collection)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("refreshing %s: %w", collection, ErrDirtyState)
	}

	records, err := c.remote.FetchAll(ctx, collection, ownerID)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", collection, err)
	}

	if err := c.store.Clear(ctx, collection); err != nil {
		return fmt.Errorf("clearing %s: %w", collection, err)
	}
	for _, wire := range records {
		rec := types.Record{
			ID:           wire.ID,
			OwnerID:      wire.OwnerID,
			Payload:      wire.Payload,
			LastModified: wire.UpdatedAt.UnixMilli(),
		}
		if err := c.store.Put(ctx, collection, rec, true); err != nil {
			return fmt.Errorf("storing %s/%s: %w", collection, wire.ID, err)
		}
	}

	c.clearRejected(collection)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.store.SetSyncMeta(ctx, string(collection), now); err != nil {
		return fmt.Errorf("stamping sync meta for %s: %w", collection, err)
	}

	slog.Info("collection refreshed",
		"component", "sync",
		"action", "refresh_complete",
		"collection", collection,
		"records", len(records),
	)
	c.notify(collection)
	return nil
}

// collectionClean reports whether the collection has neither dirty records
// nor pending actions left. A record the remote side terminally rejected
// does not count: it can never be flushed, its divergence was already
// reported through the sink, and the explicit mirror is the way out for it.
func (c *Coordinator) collectionClean(ctx context.Context, collection types.Collection) (bool, error) {
	dirty, err := c.store.GetUnsynced(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("checking dirty set for %s: %w", collection, err)
	}
	for _, rec := range dirty {
		if !c.isRejected(collection, rec.ID, rec.LastModified) {
			return false, nil
		}
	}
	actions, err := c.store.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("checking pending actions: %w", err)
	}
	for _, action := range actions {
		if action.Collection == collection {
			return false, nil
		}
	}
	return true, nil
}
