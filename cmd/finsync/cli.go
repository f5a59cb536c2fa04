package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/finwiselabs/finsync/internal/config"
	"github.com/finwiselabs/finsync/internal/engine"
	"github.com/finwiselabs/finsync/internal/remote"
	"github.com/finwiselabs/finsync/internal/store"
	finsync "github.com/finwiselabs/finsync/internal/sync"
)

var jsonOutput bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
}

// stack bundles the pieces a one-shot command needs without running the
// daemon.
type stack struct {
	cfg    *config.Config
	engine *engine.Engine
	prober *finsync.Prober
}

func (s *stack) Close() {
	if err := s.engine.Close(); err != nil {
		slog.Error("engine close error", "error", err)
	}
}

// buildStack constructs the store, remote client, prober, coordinator, and
// engine from configuration. One-shot commands probe connectivity
// synchronously instead of running the background loops.
func buildStack() (*stack, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Subcommands print results; keep logs quiet unless asked for.
	level := slog.LevelWarn
	if cfg.Log.Level == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	db := store.Open(cfg.Database.Path)
	rc := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, time.Duration(cfg.Remote.Timeout))
	prober := finsync.NewProber(rc.Ping, time.Duration(cfg.Sync.ProbeInterval))
	coord := finsync.New(db, rc, prober, finsync.Options{
		Interval:   time.Duration(cfg.Sync.Interval),
		MaxRetries: cfg.Sync.MaxRetries,
	})

	return &stack{
		cfg:    cfg,
		engine: engine.New(db, coord, prober),
		prober: prober,
	}, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatOnline(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
