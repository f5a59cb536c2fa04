package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
)

func wireRecord(id string) types.WireRecord {
	return types.WireRecord{
		ID:        id,
		OwnerID:   "u1",
		Payload:   json.RawMessage(`{"amount":12}`),
		UpdatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestPingUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", 200*time.Millisecond)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() against closed port succeeded")
	}
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallets" {
			t.Errorf("path = %s, want /wallets", r.URL.Path)
		}
		if got := r.URL.Query().Get("ownerId"); got != "u1" {
			t.Errorf("ownerId = %q, want u1", got)
		}
		json.NewEncoder(w).Encode([]types.WireRecord{wireRecord("w1"), wireRecord("w2")})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	records, err := c.FetchAll(context.Background(), types.CollectionWallets, "u1")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("FetchAll() returned %d records, want 2", len(records))
	}
}

func TestUpdateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	_, err := c.Update(context.Background(), types.CollectionBudgets, wireRecord("b1"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestCreateSendsBearerToken(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(wireRecord("t1"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0)
	out, err := c.Create(context.Background(), types.CollectionTransactions, wireRecord("t1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if out.ID != "t1" {
		t.Errorf("Create() returned id %q", out.ID)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotMethod != http.MethodPost || gotPath != "/transactions" {
		t.Errorf("request = %s %s, want POST /transactions", gotMethod, gotPath)
	}
}

func TestCreateEmptyBodyEchoesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	out, err := c.Create(context.Background(), types.CollectionGoals, wireRecord("g1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if out.ID != "g1" {
		t.Errorf("Create() with empty body returned id %q, want echo of request", out.ID)
	}
}

func TestDeleteTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	if err := c.Delete(context.Background(), types.CollectionWallets, "w1", "u1"); err != nil {
		t.Errorf("Delete() on 404 error = %v, want nil", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"server error", &StatusError{Op: "update", Status: 500}, true},
		{"rate limited", &StatusError{Op: "update", Status: 429}, true},
		{"validation rejection", &StatusError{Op: "create", Status: 422}, false},
		{"conflict", &StatusError{Op: "update", Status: 409}, false},
		{"not found", ErrNotFound, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain transport", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
			wantTerminal := tt.err != nil && !tt.retryable && !errors.Is(tt.err, ErrNotFound)
			if got := IsTerminal(tt.err); got != wantTerminal {
				t.Errorf("IsTerminal(%v) = %v, want %v", tt.err, got, wantTerminal)
			}
		})
	}
}

func TestStatusErrorRetryableFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	_, err := c.Update(context.Background(), types.CollectionWallets, wireRecord("w1"))
	if err == nil {
		t.Fatal("Update() on 502 succeeded")
	}
	if !IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
}
