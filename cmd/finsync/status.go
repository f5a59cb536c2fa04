package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finwiselabs/finsync/internal/store"
	"github.com/finwiselabs/finsync/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and queue depth",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	s.prober.ProbeOnce(ctx)

	st, err := s.engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	type row struct {
		Collection string `json:"collection"`
		Records    int    `json:"records"`
		Dirty      int    `json:"dirty"`
		LastSync   string `json:"lastSync"`
	}
	var rows []row
	for _, collection := range types.Collections() {
		records, err := s.engine.GetRecords(ctx, collection, "")
		if err != nil {
			return fmt.Errorf("listing %s: %w", collection, err)
		}
		dirty := 0
		for _, rec := range records {
			if !rec.Synced {
				dirty++
			}
		}
		stamp, err := s.engine.SyncStamp(ctx, string(collection))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("reading sync stamp for %s: %w", collection, err)
		}
		if stamp == "" {
			stamp = "never"
		}
		rows = append(rows, row{
			Collection: string(collection),
			Records:    len(records),
			Dirty:      dirty,
			LastSync:   stamp,
		})
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"connectivity":   formatOnline(st.Online),
			"pendingActions": st.Pending,
			"collections":    rows,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connectivity:    %s\n", formatOnline(st.Online))
	fmt.Fprintf(out, "Pending actions: %d\n\n", st.Pending)

	w := newTabWriter(out)
	fmt.Fprintln(w, "COLLECTION\tRECORDS\tDIRTY\tLAST SYNC")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Collection, r.Records, r.Dirty, r.LastSync)
	}
	return w.Flush()
}
