package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/finwiselabs/finsync/internal/api"
	"github.com/finwiselabs/finsync/internal/config"
	"github.com/finwiselabs/finsync/internal/engine"
	"github.com/finwiselabs/finsync/internal/remote"
	"github.com/finwiselabs/finsync/internal/store"
	finsync "github.com/finwiselabs/finsync/internal/sync"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "finsync",
	Short: "FinSync - offline-first sync engine",
	Long:  "Keeps local finance data usable while disconnected and reconciles it with the remote store once connectivity returns.",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration (.env first so overrides reach config.Load)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	setupLogger(cfg.Log)
	slog.Info("configuration loaded")

	// 4. Initialize local store (migrations, WAL mode; degrades to no-op
	// when no persistent storage is available)
	db := store.Open(cfg.Database.Path)
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Remote client and connectivity prober
	rc := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, time.Duration(cfg.Remote.Timeout))
	prober := finsync.NewProber(rc.Ping, time.Duration(cfg.Sync.ProbeInterval))

	// 6. Sync coordinator and engine facade
	coord := finsync.New(db, rc, prober, finsync.Options{
		Interval:   time.Duration(cfg.Sync.Interval),
		MaxRetries: cfg.Sync.MaxRetries,
	})
	eng := engine.New(db, coord, prober)

	// 7. Local control API
	handler := api.NewHandler(eng, cfg.Auth.APIKey)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "connectivity", prober.Run)
	startWorker(ctx, &wg, "coordinator", coord.Run)

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully; anything else should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown: drain HTTP, stop workers, close engine+store
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := eng.Close(); err != nil {
		slog.Error("engine close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// setupLogger installs the process-wide slog handler. A configured log file
// rotates via lumberjack; otherwise logs go to stdout.
func setupLogger(cfg config.LogConfig) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
