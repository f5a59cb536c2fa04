package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
	"github.com/oklog/ulid/v2"
)

// Enqueue appends a pending action to the log. The ULID id doubles as the
// FIFO key: lexicographic order is enqueue order. The row is persisted
// before Enqueue returns.
func (s *SQLiteStore) Enqueue(ctx context.Context, kind types.ActionKind, collection types.Collection, data json.RawMessage) (*types.PendingAction, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("enqueue %q: %w", collection, ErrUnknownCollection)
	}
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	action := types.PendingAction{
		ID:         ulid.Make().String(),
		Kind:       kind,
		Collection: collection,
		Data:       data,
		EnqueuedAt: time.Now().UTC(),
		RetryCount: 0,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, kind, collection, data, enqueued_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, 0, '')
	`, action.ID, string(action.Kind), string(action.Collection), string(action.Data),
		action.EnqueuedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("enqueue pending action: %w", err)
	}

	return &action, nil
}

// ListPending returns all pending actions in enqueue order (oldest first).
func (s *SQLiteStore) ListPending(ctx context.Context) ([]types.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, collection, data, enqueued_at, retry_count, last_error
		FROM pending_actions
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending actions: %w", err)
	}
	defer rows.Close()

	actions := make([]types.PendingAction, 0)
	for rows.Next() {
		var a types.PendingAction
		var kind, collection, data, enqueuedAt string

		if err := rows.Scan(&a.ID, &kind, &collection, &data, &enqueuedAt, &a.RetryCount, &a.LastError); err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}

		a.Kind = types.ActionKind(kind)
		a.Collection = types.Collection(collection)
		a.Data = json.RawMessage(data)
		var parseErr error
		if a.EnqueuedAt, parseErr = time.Parse(time.RFC3339Nano, enqueuedAt); parseErr != nil {
			slog.Warn("pending_actions: failed to parse enqueued_at", "value", enqueuedAt, "error", parseErr)
		}

		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// RemovePending deletes an action from the log. Used on confirmed success
// or on drop; removing an already-removed id is not an error.
func (s *SQLiteStore) RemovePending(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_actions WHERE id = ?
	`, actionID)
	if err != nil {
		return fmt.Errorf("remove pending action: %w", err)
	}
	return nil
}

// RecordAttempt increments an action's retry counter and stores the failure
// message, returning the new count. The counter is monotonically increasing
// for the lifetime of the action.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, actionID string, attemptErr string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ?
	`, attemptErr, actionID)
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx, `
		SELECT retry_count FROM pending_actions WHERE id = ?
	`, actionID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read retry count: %w", err)
	}
	return count, nil
}

// PendingCount returns the number of actions waiting in the log.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return count, nil
}
