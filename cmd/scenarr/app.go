package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/config"
	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
	"github.com/scenarr/scenarr/internal/handoff"
	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/jobs"
	"github.com/scenarr/scenarr/internal/matcher"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/monitor"
	"github.com/scenarr/scenarr/internal/quality"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/scorer"
	"github.com/scenarr/scenarr/internal/search"
	"github.com/scenarr/scenarr/internal/subscriptions"
)

// app is the wired component graph shared by the daemon and the one-shot commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *gorm.DB

	queue     *queue.Store
	subs      *subscriptions.Store
	client    downloader.TorrentClient
	scorer    *scorer.Scorer
	pipeline  *jobs.Pipeline
	monitor   *monitor.Monitor
	retrier   *monitor.Retrier
	discovery *jobs.Discovery
}

func buildApp(cfg *config.Config, logger zerolog.Logger, notifier queue.Notifier) (*app, error) {
	database, err := db.Initialize(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	client, err := downloader.NewClient(cfg.Client, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     database,
		queue:  queue.NewStore(database, notifier, logger),
		subs:   subscriptions.NewStore(database, logger),
		client: client,
	}

	indexers := indexer.NewManager(cfg.Search.MaxConcurrentIndexers, logger)
	for _, idx := range cfg.EnabledIndexers() {
		indexers.AddIndexer(indexer.NewTorznabIndexer(idx.Name, idx.URL, idx.APIKey, idx.Categories), idx.RequestsPerSecond, idx.Burst)
	}
	if len(indexers.Indexers()) == 0 {
		logger.Warn().Msg("no indexers enabled, searches will find nothing")
	}

	provider := metadata.NewCached(database,
		metadata.NewStashDBClient(cfg.StashDB.URL, cfg.StashDB.APIKey, cfg.StashDB.RequestsPerSecond, cfg.StashDB.PerPage, logger),
		logger)

	a.scorer = scorer.New(scorer.Config{
		Enabled:   cfg.Learned.Enabled,
		Threshold: cfg.Learned.Threshold,
		MaxPairs:  cfg.Learned.MaxPairs,
	}, scorer.NewHTTPLoader(cfg.Learned.URL, cfg.Learned.Model, cfg.LearnedTimeout()), logger)

	matchers := jobs.Matchers{
		Staged: matcher.NewStaged(matcher.StagedConfig{
			TruncatedRatio:        cfg.Matching.TruncatedRatio,
			PartialMinLength:      cfg.Matching.PartialMinLength,
			EditDistanceThreshold: cfg.Matching.EditDistanceThreshold,
			DateBonus:             cfg.Matching.DateBonus,
		}, a.scorer, logger),
		TokenSet: matcher.NewTokenSet(matcher.TokenSetConfig{
			MinTokens:      cfg.Matching.TokenMinTokens,
			Threshold:      cfg.Matching.TokenThreshold,
			GapRatio:       cfg.Matching.TokenGapRatio,
			AmbiguityFloor: cfg.Matching.TokenAmbiguityFloor,
			MinOverlap:     cfg.Matching.TokenMinOverlap,
		}, logger),
		ForceTokenSet: cfg.Matching.UseTokenSet,
	}

	orchestrator := search.New(indexers, matchers.Staged, search.Options{
		IncludeAliases:         cfg.Search.IncludeAliases,
		AcceptPlaceholders:     cfg.Search.AcceptPlaceholders,
		PlaceholderMinIndexers: cfg.Search.PlaceholderMinIndexers,
	}, logger)

	submitter := jobs.NewSubmitter(client, a.queue, jobs.SubmitOptions{
		Category:        cfg.Client.Category,
		SavePath:        cfg.Client.SavePath,
		RegisterTimeout: cfg.RegisterTimeout(),
		PollInterval:    cfg.RegisterPollInterval(),
	}, logger)

	a.pipeline = jobs.NewPipeline(provider, a.queue, orchestrator, submitter, quality.FromConfig(cfg.Quality), logger)

	importer := handoff.NewImporter(database, cfg.Library.Path, handoff.FileOperation(cfg.Library.Operation), logger)
	a.monitor = monitor.New(a.queue, client, importer, monitor.StallPolicy{
		MinSeeders:       cfg.Monitor.StallMinSeeders,
		MinThroughputKiB: cfg.Monitor.StallMinThroughputKiB,
	}, cfg.PollTimeout(), logger)

	a.retrier = monitor.NewRetrier(a.queue, submitter, a.subs, monitor.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		ShortBatch:  cfg.Retry.ShortBatch,
	}, logger)

	a.discovery = jobs.NewDiscovery(a.pipeline, a.subs, matchers, a.scorer, a.retrier, cfg.StashDB.MaxPages, cfg.EntityDelay(), logger)
	return a, nil
}

// Close releases the database handle and any loaded model.
func (a *app) Close() {
	if err := a.scorer.Unload(); err != nil {
		a.logger.Warn().Err(err).Msg("unload learned scorer")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
