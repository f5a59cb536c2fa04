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

// drain replays the pending-action log in enqueue order. FIFO within a
// collection is required so a create is never replayed after a later delete
// for the same id. Each action is removed exactly once: on success, on a
// terminal rejection, or after the retry ceiling is exceeded.
func (c *Coordinator) drain(ctx context.Context) error {
	actions, err := c.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("listing pending actions: %w", err)
	}
	if len(actions) == 0 {
		return nil
	}

	slog.Debug("draining pending actions",
		"component", "sync",
		"action", "drain_start",
		"count", len(actions),
	)

	var errs []error
	touched := make(map[types.Collection]bool)
	for _, action := range actions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := c.replay(ctx, action); err != nil {
			errs = append(errs, err)
			continue
		}
		touched[action.Collection] = true
	}
	for collection := range touched {
		c.notify(collection)
	}
	return errors.Join(errs...)
}

// replay applies one pending action against the remote side and settles its
// fate in the log. The returned error covers local bookkeeping failures
// only; remote failures are absorbed into the retry policy.
func (c *Coordinator) replay(ctx context.Context, action types.PendingAction) error {
	err := c.dispatch(ctx, action)
	if err == nil {
		if rErr := c.store.RemovePending(ctx, action.ID); rErr != nil {
			return fmt.Errorf("removing completed action %s: %w", action.ID, rErr)
		}
		return nil
	}

	if remote.IsTerminal(err) {
		// No number of retries will make the remote side accept this, so
		// the ceiling does not apply.
		c.sink.ActionRejected(action, err)
		if rErr := c.store.RemovePending(ctx, action.ID); rErr != nil {
			return fmt.Errorf("removing rejected action %s: %w", action.ID, rErr)
		}
		return nil
	}

	count, aErr := c.store.RecordAttempt(ctx, action.ID, err.Error())
	if aErr != nil {
		if errors.Is(aErr, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("recording attempt for action %s: %w", action.ID, aErr)
	}
	if count > c.maxRetries {
		action.RetryCount = count
		c.sink.ActionDropped(action, err)
		if rErr := c.store.RemovePending(ctx, action.ID); rErr != nil {
			return fmt.Errorf("dropping action %s: %w", action.ID, rErr)
		}
		return nil
	}

	slog.Debug("pending action replay failed, will retry",
		"component", "sync",
		"action", "replay_retry",
		"action_id", action.ID,
		"kind", action.Kind,
		"collection", action.Collection,
		"retry_count", count,
		"error", err,
	)
	return nil
}

// dispatch issues the remote call for one action. Create and update confirm
// the local record as synced on success; a delete action's record is
// already gone locally.
func (c *Coordinator) dispatch(ctx context.Context, action types.PendingAction) error {
	switch action.Kind {
	case types.ActionCreate, types.ActionUpdate:
		var wire types.WireRecord
		if err := json.Unmarshal(action.Data, &wire); err != nil {
			return &malformedActionError{id: action.ID, err: err}
		}
		var err error
		if action.Kind == types.ActionCreate {
			_, err = c.remote.Create(ctx, action.Collection, wire)
		} else {
			_, err = c.remote.Update(ctx, action.Collection, wire)
			if errors.Is(err, remote.ErrNotFound) {
				_, err = c.remote.Create(ctx, action.Collection, wire)
			}
		}
		if err != nil {
			return err
		}
		if mErr := c.store.MarkSynced(ctx, action.Collection, wire.ID, wire.UpdatedAt.UnixMilli()); mErr != nil && !errors.Is(mErr, store.ErrNotFound) {
			slog.Warn("replayed action but could not mark record synced",
				"component", "sync",
				"action", "mark_synced_failed",
				"collection", action.Collection,
				"record_id", wire.ID,
				"error", mErr,
			)
		}
		return nil
	case types.ActionDelete:
		var payload types.DeletePayload
		if err := json.Unmarshal(action.Data, &payload); err != nil {
			return &malformedActionError{id: action.ID, err: err}
		}
		return c.remote.Delete(ctx, action.Collection, payload.ID, payload.OwnerID)
	default:
		return &malformedActionError{id: action.ID, err: fmt.Errorf("unknown action kind %q", action.Kind)}
	}
}

// malformedActionError marks an action that can never be replayed. It is
// classified as terminal so it is rejected instead of retried.
type malformedActionError struct {
	id  string
	err error
}

func (e *malformedActionError) Error() string {
	return fmt.Sprintf("malformed pending action %s: %v", e.id, e.err)
}

func (e *malformedActionError) Unwrap() error { return e.err }

// Terminal satisfies the classification check in the remote package.
func (e *malformedActionError) Terminal() bool { return true }
