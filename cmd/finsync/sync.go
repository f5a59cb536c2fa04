package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	finsync "github.com/finwiselabs/finsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one push and drain pass against the remote store",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.prober.ProbeOnce(ctx) {
		return fmt.Errorf("remote %s is unreachable: %w", s.cfg.Remote.BaseURL, finsync.ErrOffline)
	}

	if err := s.engine.RunSyncNow(ctx); err != nil {
		if errors.Is(err, finsync.ErrOffline) {
			return fmt.Errorf("connectivity lost during sync: %w", err)
		}
		return fmt.Errorf("sync: %w", err)
	}

	st, err := s.engine.Status(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"status":         "completed",
			"pendingActions": st.Pending,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sync completed, %d pending action(s) remaining.\n", st.Pending)
	return nil
}
