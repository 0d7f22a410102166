package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/scenarr/scenarr/internal/api"
	"github.com/scenarr/scenarr/internal/jobs"
	"github.com/scenarr/scenarr/internal/realtime"
	"github.com/scenarr/scenarr/internal/scheduler"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: scheduled jobs, HTTP API and websocket events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := ctx.logger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another scenarr instance holds %s", cfg.LockPath())
	}
	defer lock.Unlock()

	hub := realtime.NewHub(logger)
	emitter := realtime.NewEventEmitter(hub)
	go hub.Run(signalCtx)

	a, err := buildApp(cfg, logger, emitter)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Client.MaxDownloadKiB > 0 || cfg.Client.MaxUploadKiB > 0 {
		if err := a.client.SetGlobalThroughputLimits(signalCtx, cfg.Client.MaxDownloadKiB, cfg.Client.MaxUploadKiB); err != nil {
			logger.Warn().Err(err).Msg("failed to apply client throughput limits")
		}
	}
	if err := a.client.Test(signalCtx); err != nil {
		logger.Warn().Err(err).Str("client", a.client.Type()).Msg("torrent client not reachable yet")
	}

	sched := scheduler.NewScheduler(emitter, logger)
	if err := jobs.Register(sched, cfg.PollInterval(), cfg.DiscoveryInterval(), jobs.MonitorTask(a.monitor, a.retrier, logger), a.discovery); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(api.Options{
		ListenAddr: cfg.Server.ListenAddr,
		APIKey:     cfg.Server.APIKey,
		Version:    version,
	}, a.queue, a.subs, a.pipeline, sched, hub, logger)

	logger.Info().Str("version", version).Str("database", cfg.Database.Path).Msg("scenarr started")
	err = server.Start(signalCtx)
	logger.Info().Msg("scenarr stopping")
	return err
}
