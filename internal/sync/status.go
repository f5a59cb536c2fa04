package sync

import (
	"context"
	"fmt"
	"time"
)

// Status is a point-in-time snapshot of the coordinator and its queues.
type Status struct {
	State    string    `json:"state"`
	Online   bool      `json:"online"`
	Pending  int       `json:"pendingActions"`
	LastSync time.Time `json:"lastSync"`
}

// Status reports the coordinator state alongside the pending-action depth.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.store.PendingCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting pending actions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:    c.state.String(),
		Online:   c.watcher.Online(),
		Pending:  pending,
		LastSync: c.lastSync,
	}, nil
}
