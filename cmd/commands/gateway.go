package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quotagate/internal/config"
	"github.com/dohr-michael/quotagate/internal/events"
	"github.com/dohr-michael/quotagate/internal/files"
	"github.com/dohr-michael/quotagate/internal/gateway"
	"github.com/dohr-michael/quotagate/internal/heartbeat"
	"github.com/dohr-michael/quotagate/internal/history"
	"github.com/dohr-michael/quotagate/internal/orchestrator"
	"github.com/dohr-michael/quotagate/internal/quota"
	"github.com/dohr-michael/quotagate/internal/refresh"
	"github.com/dohr-michael/quotagate/internal/remote"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the quotagate gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(_ context.Context, cmd *cli.Command) error {
	// Setup debug logging
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	// Load config
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Remote management API client
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout.Duration())

	// Quota results + entry listing
	store := quota.NewStore()
	source := files.NewSource(client, bus, cfg.Refresh.PageSize)
	if cfg.Refresh.Filter != "" {
		source.SetFilter(cfg.Refresh.Filter)
	}

	sched := refresh.NewScheduler(store, client)

	// Run history — degraded mode without it
	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			slog.Warn("run history unavailable", "path", cfg.History.Path, "error", err)
		} else {
			defer hist.Close()
		}
	}

	coord := orchestrator.New(orchestrator.Config{
		Source:         source,
		Sched:          sched,
		Store:          store,
		Bus:            bus,
		History:        hist,
		Concurrency:    cfg.Refresh.Concurrency,
		MaxConcurrency: cfg.Refresh.MaxConcurrency,
	})

	// Periodic full refresh
	if cfg.Refresh.Auto != "" {
		auto, err := orchestrator.NewAutoRefresh(cfg.Refresh.Auto, coord)
		if err != nil {
			return fmt.Errorf("auto refresh: %w", err)
		}
		auto.Start(ctx)
		defer auto.Stop()
	}

	// Warm the entry listing so the first API call has data.
	go func() {
		if err := source.Refresh(ctx); err != nil {
			slog.Warn("initial entry listing failed", "error", err)
		}
	}()

	// Heartbeat file, read by the status command
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	hb := heartbeat.NewWriter(filepath.Join(config.QuotagatePath(), "heartbeat.json"), addr)
	hb.Start()
	defer hb.Stop()

	// Gateway server
	server := gateway.NewServer(gateway.Config{
		Bus:     bus,
		Coord:   coord,
		Source:  source,
		Store:   store,
		History: hist,
		Host:    cfg.Gateway.Host,
		Port:    cfg.Gateway.Port,
	})

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
