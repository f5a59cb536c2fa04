package sync

import (
	"log/slog"

	"github.com/finwiselabs/finsync/internal/types"
)

// ErrorSink receives failures that background sync cannot surface to the
// caller: permanent rejections and actions dropped at the retry ceiling.
// Background sync never raises synchronous errors to domain code, so the
// sink is the only place these become visible.
type ErrorSink interface {
	// ActionDropped is called when a pending action exceeds the retry
	// ceiling and is removed from the log.
	ActionDropped(action types.PendingAction, err error)
	// ActionRejected is called when the remote side permanently rejects an
	// action; the action is removed without further retries.
	ActionRejected(action types.PendingAction, err error)
	// RecordRejected is called when push-sync hits a permanent rejection
	// for a dirty record.
	RecordRejected(collection types.Collection, id string, err error)
}

// LogSink reports sink events through slog. It is the default sink.
type LogSink struct{}

func (LogSink) ActionDropped(action types.PendingAction, err error) {
	slog.Error("pending action dropped after retry ceiling",
		"component", "sync",
		"action", "pending_dropped",
		"action_id", action.ID,
		"kind", action.Kind,
		"collection", action.Collection,
		"retry_count", action.RetryCount,
		"error", err,
	)
}

func (LogSink) ActionRejected(action types.PendingAction, err error) {
	slog.Error("pending action permanently rejected",
		"component", "sync",
		"action", "pending_rejected",
		"action_id", action.ID,
		"kind", action.Kind,
		"collection", action.Collection,
		"error", err,
	)
}

func (LogSink) RecordRejected(collection types.Collection, id string, err error) {
	slog.Error("record push permanently rejected",
		"component", "sync",
		"action", "push_rejected",
		"collection", collection,
		"record_id", id,
		"error", err,
	)
}
