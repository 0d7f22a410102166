package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/matcher"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/monitor"
	"github.com/scenarr/scenarr/internal/quality"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/scheduler"
	"github.com/scenarr/scenarr/internal/scorer"
	"github.com/scenarr/scenarr/internal/search"
	"github.com/scenarr/scenarr/internal/subscriptions"
)

// Matchers holds both deterministic matchers. Staged is used for entity
// discovery while the learned model is available; TokenSet otherwise, or
// always when ForceTokenSet is set.
type Matchers struct {
	Staged        matcher.Matcher
	TokenSet      matcher.Matcher
	ForceTokenSet bool
}

func (m Matchers) pick(learned *scorer.Scorer) (matcher.Matcher, string) {
	if m.ForceTokenSet || learned == nil || !learned.Available() {
		return m.TokenSet, "token_set"
	}
	return m.Staged, "staged"
}

// DiscoveryReport counts what one discovery run did.
type DiscoveryReport struct {
	Subscriptions int
	Failed        int
	Scenes        int
	Accepted      int
	Submitted     int
	Skipped       int
}

// Discovery searches every active subscription and queues what it finds.
type Discovery struct {
	pipeline *Pipeline
	subs     *subscriptions.Store
	matchers Matchers
	learned  *scorer.Scorer
	retrier  *monitor.Retrier
	maxPages int
	delay    time.Duration
	logger   zerolog.Logger
}

// NewDiscovery creates the discovery job. delay is the minimum spacing
// between two subscriptions' external queries.
func NewDiscovery(pipeline *Pipeline, subs *subscriptions.Store, matchers Matchers, learned *scorer.Scorer, retrier *monitor.Retrier, maxPages int, delay time.Duration, logger zerolog.Logger) *Discovery {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Discovery{
		pipeline: pipeline,
		subs:     subs,
		matchers: matchers,
		learned:  learned,
		retrier:  retrier,
		maxPages: maxPages,
		delay:    delay,
		logger:   logger.With().Str("component", "discovery").Logger(),
	}
}

// Run processes every active subscription in turn, then drains the retry
// backlog. One subscription failing does not stop the others; only failing
// to list subscriptions fails the run.
func (d *Discovery) Run(ctx context.Context) error {
	logger := d.logger.With().Str("run_id", scheduler.RunID(ctx)).Logger()

	subs, err := d.subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	var report DiscoveryReport
	run := func(ctx context.Context) error {
		m, method := d.matchers.pick(d.learned)
		orch := d.pipeline.search.WithMatcher(m)
		logger.Info().Int("subscriptions", len(subs)).Str("matcher", method).Msg("discovery started")

		limit := rate.Inf
		if d.delay > 0 {
			limit = rate.Every(d.delay)
		}
		limiter := rate.NewLimiter(limit, 1)

		for _, sub := range subs {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			report.Subscriptions++
			if err := d.processSubscription(ctx, orch, sub, &report, logger); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				report.Failed++
				logger.Warn().Err(err).Uint("subscription", sub.ID).Str("name", sub.Name).Msg("subscription skipped")
				continue
			}
			if err := d.subs.MarkSearched(ctx, sub.ID, time.Now()); err != nil {
				logger.Warn().Err(err).Uint("subscription", sub.ID).Msg("could not record search time")
			}
		}
		return nil
	}

	if d.learned != nil {
		err = d.learned.Use(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return err
	}

	if d.retrier != nil {
		if _, err := d.retrier.Run(ctx, monitor.CadenceLong); err != nil {
			logger.Warn().Err(err).Msg("long retry pass failed")
		}
	}

	logger.Info().
		Int("subscriptions", report.Subscriptions).
		Int("failed", report.Failed).
		Int("scenes", report.Scenes).
		Int("accepted", report.Accepted).
		Int("submitted", report.Submitted).
		Int("skipped", report.Skipped).
		Msg("discovery finished")
	return nil
}

func (d *Discovery) processSubscription(ctx context.Context, orch *search.Orchestrator, sub db.Subscription, report *DiscoveryReport, logger zerolog.Logger) error {
	profile, err := subscriptions.Profile(sub, d.pipeline.profile)
	if err != nil {
		return err
	}

	if sub.Kind == db.KindScene {
		return d.processScene(ctx, sub, report, profile, logger)
	}

	scenes, err := d.fetchScenes(ctx, sub)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			logger.Warn().Str("entity", sub.ExternalID).Msg("entity not found at metadata provider")
			return nil
		}
		return err
	}
	report.Scenes += len(scenes)

	entity := search.Entity{
		Kind:           sub.Kind,
		ID:             sub.ExternalID,
		Name:           sub.Name,
		Aliases:        sub.AliasList(),
		SubscriptionID: &sub.ID,
	}
	outcome, err := orch.Search(ctx, entity, scenes, profile)
	if err != nil {
		return err
	}

	for _, accepted := range outcome.Accepted {
		d.take(ctx, accepted, &sub.ID, report, logger)
	}
	return nil
}

func (d *Discovery) processScene(ctx context.Context, sub db.Subscription, report *DiscoveryReport, profile quality.Profile, logger zerolog.Logger) error {
	has, err := d.pipeline.queue.SceneHasItem(ctx, sub.ExternalID)
	if err != nil {
		return err
	}
	if has {
		report.Skipped++
		return nil
	}

	scene, err := d.pipeline.provider.SceneByID(ctx, sub.ExternalID)
	if errors.Is(err, metadata.ErrNotFound) {
		logger.Warn().Str("scene", sub.ExternalID).Msg("scene not found at metadata provider")
		return nil
	}
	if err != nil {
		return err
	}
	report.Scenes++

	result, err := d.pipeline.searchScene(ctx, d.pipeline.search, scene, profile, &sub.ID, false)
	if err != nil {
		return err
	}
	if result.Item != nil {
		report.Accepted++
		if result.Item.Status == db.StatusQueued {
			report.Submitted++
		}
	}
	return nil
}

// take queues one accepted release unless its scene was already handled.
func (d *Discovery) take(ctx context.Context, accepted search.Accepted, subscriptionID *uint, report *DiscoveryReport, logger zerolog.Logger) {
	sceneID := accepted.SceneID()
	has, err := d.pipeline.queue.SceneHasItem(ctx, sceneID)
	if err != nil {
		logger.Warn().Err(err).Str("scene", sceneID).Msg("queue lookup failed")
		return
	}
	if has {
		report.Skipped++
		return
	}

	item, err := d.pipeline.acquire(ctx, accepted, subscriptionID)
	switch {
	case errors.Is(err, queue.ErrDuplicateScene), errors.Is(err, queue.ErrDuplicateHash):
		report.Skipped++
		return
	case item.ID == 0:
		logger.Warn().Err(err).Str("scene", sceneID).Msg("could not queue release")
		return
	}
	report.Accepted++
	if err == nil {
		report.Submitted++
	}
}

// fetchScenes pages through the entity's scenes up to the page limit.
func (d *Discovery) fetchScenes(ctx context.Context, sub db.Subscription) ([]metadata.Scene, error) {
	var scenes []metadata.Scene
	for page := 1; page <= d.maxPages; page++ {
		batch, pagination, err := d.pipeline.provider.ScenesForEntity(ctx, sub.Kind, sub.ExternalID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			d.logger.Warn().Err(err).Int("page", page).Str("entity", sub.ExternalID).Msg("stopping pagination early")
			break
		}
		scenes = append(scenes, batch...)
		if len(batch) == 0 || !pagination.HasMore() {
			break
		}
	}
	return scenes, nil
}
