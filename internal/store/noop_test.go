package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/finwiselabs/finsync/internal/types"
)

func TestNoopDegradesSilently(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	rec := types.Record{ID: "r1", OwnerID: "u1", Payload: json.RawMessage(`{}`)}
	if err := n.Put(ctx, types.CollectionWallets, rec, false); err != nil {
		t.Errorf("Put() error = %v", err)
	}

	all, err := n.GetAll(ctx, types.CollectionWallets, "u1")
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("GetAll() = %+v, want empty", all)
	}

	if _, err := n.GetOne(ctx, types.CollectionWallets, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOne() error = %v, want ErrNotFound", err)
	}

	if _, err := n.Enqueue(ctx, types.ActionCreate, types.CollectionWallets, json.RawMessage(`{}`)); err != nil {
		t.Errorf("Enqueue() error = %v", err)
	}
	count, err := n.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}

	if err := n.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenFallsBackToNoop(t *testing.T) {
	s := Open("")
	if _, ok := s.(*Noop); !ok {
		t.Errorf("Open(\"\") = %T, want *Noop", s)
	}
}

func TestOpenReturnsSQLite(t *testing.T) {
	s := Open(t.TempDir() + "/finsync.db")
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(path) = %T, want *SQLiteStore", s)
	}
}
