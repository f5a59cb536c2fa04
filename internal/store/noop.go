package store

import (
	"context"
	"encoding/json"

	"github.com/finwiselabs/finsync/internal/types"
)

// Noop is the Store used when the environment has no persistent-storage
// capability. Writes succeed silently, reads return empty results, and
// lookups report ErrNotFound. Callers never need to probe the environment;
// Open hands them this implementation instead.
type Noop struct{}

// NewNoop returns a no-op Store.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Put(ctx context.Context, collection types.Collection, rec types.Record, synced bool) error {
	return nil
}

func (n *Noop) GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]types.Record, error) {
	return []types.Record{}, nil
}

func (n *Noop) GetOne(ctx context.Context, collection types.Collection, id string) (*types.Record, error) {
	return nil, ErrNotFound
}

func (n *Noop) GetUnsynced(ctx context.Context, collection types.Collection) ([]types.Record, error) {
	return []types.Record{}, nil
}

func (n *Noop) MarkSynced(ctx context.Context, collection types.Collection, id string, lastModified int64) error {
	return nil
}

func (n *Noop) Remove(ctx context.Context, collection types.Collection, id string) error {
	return nil
}

func (n *Noop) Clear(ctx context.Context, collection types.Collection) error {
	return nil
}

func (n *Noop) ClearAll(ctx context.Context) error {
	return nil
}

func (n *Noop) Enqueue(ctx context.Context, kind types.ActionKind, collection types.Collection, data json.RawMessage) (*types.PendingAction, error) {
	return &types.PendingAction{Kind: kind, Collection: collection, Data: data}, nil
}

func (n *Noop) ListPending(ctx context.Context) ([]types.PendingAction, error) {
	return []types.PendingAction{}, nil
}

func (n *Noop) RemovePending(ctx context.Context, actionID string) error {
	return nil
}

func (n *Noop) RecordAttempt(ctx context.Context, actionID string, attemptErr string) (int, error) {
	return 0, nil
}

func (n *Noop) PendingCount(ctx context.Context) (int, error) {
	return 0, nil
}

func (n *Noop) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	return nil
}

func (n *Noop) GetSetting(ctx context.Context, key string) (*types.Setting, error) {
	return nil, ErrNotFound
}

func (n *Noop) SetSyncMeta(ctx context.Context, key, value string) error {
	return nil
}

func (n *Noop) GetSyncMeta(ctx context.Context, key string) (string, error) {
	return "", ErrNotFound
}

func (n *Noop) Close() error {
	return nil
}
