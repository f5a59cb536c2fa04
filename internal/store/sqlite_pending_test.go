package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/finwiselabs/finsync/internal/types"
)

func TestEnqueueListFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kinds := []types.ActionKind{types.ActionCreate, types.ActionUpdate, types.ActionDelete}
	for i, kind := range kinds {
		data := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		action, err := s.Enqueue(ctx, kind, types.CollectionTransactions, data)
		if err != nil {
			t.Fatalf("Enqueue(%s) error = %v", kind, err)
		}
		if action.ID == "" {
			t.Fatal("Enqueue() returned empty id")
		}
		if action.RetryCount != 0 {
			t.Errorf("new action RetryCount = %d, want 0", action.RetryCount)
		}
	}

	actions, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("ListPending() returned %d actions, want 3", len(actions))
	}
	for i, kind := range kinds {
		if actions[i].Kind != kind {
			t.Errorf("actions[%d].Kind = %s, want %s (enqueue order violated)", i, actions[i].Kind, kind)
		}
	}
}

func TestRecordAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action, err := s.Enqueue(ctx, types.ActionCreate, types.CollectionWallets, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	for want := 1; want <= 4; want++ {
		count, err := s.RecordAttempt(ctx, action.ID, "connection refused")
		if err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
		if count != want {
			t.Errorf("RecordAttempt() count = %d, want %d", count, want)
		}
	}

	actions, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if actions[0].RetryCount != 4 {
		t.Errorf("RetryCount = %d, want 4", actions[0].RetryCount)
	}
	if actions[0].LastError != "connection refused" {
		t.Errorf("LastError = %q", actions[0].LastError)
	}
}

func TestRecordAttemptMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordAttempt(context.Background(), "no-such-action", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordAttempt() error = %v, want ErrNotFound", err)
	}
}

func TestRemovePendingIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action, err := s.Enqueue(ctx, types.ActionDelete, types.CollectionGoals, json.RawMessage(`{"id":"g1"}`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := s.RemovePending(ctx, action.ID); err != nil {
		t.Fatalf("RemovePending() error = %v", err)
	}
	// Second removal of the same action must not fail.
	if err := s.RemovePending(ctx, action.ID); err != nil {
		t.Errorf("RemovePending() second call error = %v", err)
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestPendingCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Enqueue(ctx, types.ActionUpdate, types.CollectionBudgets, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 5 {
		t.Errorf("PendingCount() = %d, want 5", count)
	}
}
