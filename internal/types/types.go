package types

import (
	"encoding/json"
	"time"
)

// Collection identifies one of the synchronized domain collections.
type Collection string

const (
	CollectionTransactions Collection = "transactions"
	CollectionWallets      Collection = "wallets"
	CollectionBudgets      Collection = "budgets"
	CollectionGoals        Collection = "goals"
	CollectionInstallments Collection = "installments"
	CollectionCategories   Collection = "categories"
)

// Collections lists every collection the engine synchronizes, in the order
// sync passes process them.
func Collections() []Collection {
	return []Collection{
		CollectionTransactions,
		CollectionWallets,
		CollectionBudgets,
		CollectionGoals,
		CollectionInstallments,
		CollectionCategories,
	}
}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// Record wraps a domain entity for local persistence. Payload is opaque to
// the engine; Synced and LastModified are internal bookkeeping and are
// stripped before records are handed back to domain code.
type Record struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Payload      json.RawMessage `json:"payload"`
	Synced       bool            `json:"-"`
	LastModified int64           `json:"-"` // unix milliseconds
}

// WireRecord is the shape sent to and received from the remote API.
// UpdatedAt makes the last-writer-wins policy visible to the server so it
// can reject stale writes.
type WireRecord struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Wire converts a stored record to its remote representation.
func (r Record) Wire() WireRecord {
	return WireRecord{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Payload:   r.Payload,
		UpdatedAt: time.UnixMilli(r.LastModified).UTC(),
	}
}

// ActionKind is the type of remote mutation a pending action replays.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// PendingAction is an intended remote mutation not yet confirmed. The ID is
// a ULID, so lexicographic order is enqueue order.
type PendingAction struct {
	ID         string          `json:"id"`
	Kind       ActionKind      `json:"kind"`
	Collection Collection      `json:"collection"`
	Data       json.RawMessage `json:"data"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`
}

// DeletePayload is the Data carried by a delete action: just enough to
// replay the remote call.
type DeletePayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
}

// Setting is a device-local preference. Settings are never queued and never
// marked dirty; their lifecycle is independent of sync.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// SyncMeta keys for per-collection bookkeeping. Collection names are used
// as-is; GlobalSyncKey stamps a whole sync pass.
const GlobalSyncKey = "_global"
