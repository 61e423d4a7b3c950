package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rohankatakam/relay/internal/activity"
	"github.com/rohankatakam/relay/internal/clock"
	"github.com/rohankatakam/relay/internal/config"
	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/graph"
	"github.com/rohankatakam/relay/internal/kv"
	"github.com/rohankatakam/relay/internal/locks"
	"github.com/rohankatakam/relay/internal/logging"
	"github.com/rohankatakam/relay/internal/mcp"
	"github.com/rohankatakam/relay/internal/server"
	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "relay",
	Short:   "Relay - coordination service for concurrent editors on a shared repo",
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordination service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("relay %s (commit %s)\n", Version, GitCommit))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Initialize(logging.DefaultConfig(cfg.Server.Debug))
	logger := logging.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := kv.NewRedis(ctx, cfg.KV.URL, cfg.KV.Token, cfg.KV.Database)
	if err != nil {
		return fmt.Errorf("connect kv store: %w", err)
	}
	defer store.Close()
	logger.Info("connected to kv store")

	host := githost.NewClient(cfg.GitHub.Token, cfg.GitHub.RateLimit)
	registry := locks.NewRedisRegistry(store.Client())
	graphStore := graph.NewStore(store)
	clk := clock.System{}
	builder := graph.NewBuilder(host, graphStore, registry, clk)
	feed := activity.NewLog(store)

	mux := http.NewServeMux()
	srv := server.New(cfg.Server, cfg.Cron.Secret, host, registry, builder, graphStore, feed, clk)
	srv.Register(mux)

	adapter := mcp.NewAdapter(cfg.Agent, cfg.Server.Addr)
	mcp.NewHandler(adapter).Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
