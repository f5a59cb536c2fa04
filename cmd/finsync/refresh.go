package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	finsync "github.com/finwiselabs/finsync/internal/sync"
	"github.com/finwiselabs/finsync/internal/types"
)

var refreshOwnerID string

var refreshCmd = &cobra.Command{
	Use:   "refresh <collection>",
	Short: "Mirror one collection from the remote store",
	Long:  "Replaces the local copy of a collection with the remote one. Refuses to run while unsynced local changes exist.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshOwnerID, "owner", "", "Owner whose records to fetch (required)")
	_ = refreshCmd.MarkFlagRequired("owner")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	collection := types.Collection(args[0])
	if !collection.Valid() {
		return fmt.Errorf("unknown collection %q (one of: %v)", args[0], types.Collections())
	}

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.prober.ProbeOnce(ctx) {
		return fmt.Errorf("remote %s is unreachable: %w", s.cfg.Remote.BaseURL, finsync.ErrOffline)
	}

	if err := s.engine.ForceFullRefresh(ctx, collection, refreshOwnerID); err != nil {
		if errors.Is(err, finsync.ErrDirtyState) {
			return fmt.Errorf("refresh refused: unsynced local changes exist, run %q first", "finsync sync")
		}
		return fmt.Errorf("refresh: %w", err)
	}

	records, err := s.engine.GetRecords(ctx, collection, refreshOwnerID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"status":     "refreshed",
			"collection": string(collection),
			"records":    len(records),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d record(s).\n", collection, len(records))
	return nil
}
