package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/finwiselabs/finsync/internal/types"
)

// Store defines the interface contract for all local persistence operations.
// Implementations must support concurrent upsert-by-id from domain writes and
// sync passes; no cross-operation locking is required of callers.
type Store interface {
	// Record operations. Put is an idempotent upsert keyed by (collection, id);
	// it stamps LastModified and overwrites the synced flag with the given
	// value.
	Put(ctx context.Context, collection types.Collection, rec types.Record, synced bool) error
	GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]types.Record, error)
	GetOne(ctx context.Context, collection types.Collection, id string) (*types.Record, error)
	GetUnsynced(ctx context.Context, collection types.Collection) ([]types.Record, error)
	// MarkSynced confirms a record as matching the remote side, but only
	// while its last_modified is still at or below the given timestamp. A
	// domain write that raced the confirmation keeps the record dirty.
	MarkSynced(ctx context.Context, collection types.Collection, id string, lastModified int64) error
	Remove(ctx context.Context, collection types.Collection, id string) error
	Clear(ctx context.Context, collection types.Collection) error
	ClearAll(ctx context.Context) error

	// Pending action log. Enqueue persists before returning; ListPending
	// returns actions in enqueue order (oldest first).
	Enqueue(ctx context.Context, kind types.ActionKind, collection types.Collection, data json.RawMessage) (*types.PendingAction, error)
	ListPending(ctx context.Context) ([]types.PendingAction, error)
	RemovePending(ctx context.Context, actionID string) error
	// RecordAttempt increments the action's retry counter, records the
	// failure, and returns the new count.
	RecordAttempt(ctx context.Context, actionID string, attemptErr string) (int, error)
	PendingCount(ctx context.Context) (int, error)

	// Device-local settings; independent of sync.
	PutSetting(ctx context.Context, key string, value json.RawMessage) error
	GetSetting(ctx context.Context, key string) (*types.Setting, error)

	// Sync bookkeeping (last sync stamps).
	SetSyncMeta(ctx context.Context, key, value string) error
	GetSyncMeta(ctx context.Context, key string) (string, error)

	Close() error
}

// Open is the capability-checked factory for the local store. When the
// environment cannot provide persistent storage (empty path, or the database
// cannot be opened or migrated) it degrades to the no-op implementation, so
// calling code never needs environment probes.
func Open(path string) Store {
	if path == "" {
		slog.Warn("persistent storage unavailable, using no-op store",
			"component", "store",
			"reason", "no database path",
		)
		return NewNoop()
	}

	s, err := NewSQLiteStore(path)
	if err != nil {
		slog.Warn("persistent storage unavailable, using no-op store",
			"component", "store",
			"reason", "open failed",
			"path", path,
			"error", err,
		)
		return NewNoop()
	}
	return s
}
