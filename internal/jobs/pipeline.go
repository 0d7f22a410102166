package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/quality"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/search"
)

// Pipeline turns search results into queued, submitted downloads.
type Pipeline struct {
	provider  metadata.Provider
	queue     *queue.Store
	search    *search.Orchestrator
	submitter *Submitter
	profile   quality.Profile
	logger    zerolog.Logger
}

// NewPipeline creates a pipeline. profile is used when a subscription has
// no profile of its own.
func NewPipeline(provider metadata.Provider, store *queue.Store, orchestrator *search.Orchestrator, submitter *Submitter, profile quality.Profile, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		provider:  provider,
		queue:     store,
		search:    orchestrator,
		submitter: submitter,
		profile:   profile,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// SceneResult is the outcome of a scene-targeted search.
type SceneResult struct {
	Outcome search.SceneOutcome
	// Item is the queued item, nil on a dry run or when nothing was accepted.
	Item *db.QueueItem
	// Reason explains why nothing was queued.
	Reason string
}

// SearchScene searches the indexers for one scene and, unless dryRun is set,
// queues and submits the best release.
func (p *Pipeline) SearchScene(ctx context.Context, sceneID string, dryRun bool) (SceneResult, error) {
	scene, err := p.provider.SceneByID(ctx, sceneID)
	if err != nil {
		return SceneResult{}, fmt.Errorf("load scene %s: %w", sceneID, err)
	}
	return p.searchScene(ctx, p.search, scene, p.profile, nil, dryRun)
}

func (p *Pipeline) searchScene(ctx context.Context, orch *search.Orchestrator, scene metadata.Scene, profile quality.Profile, subscriptionID *uint, dryRun bool) (SceneResult, error) {
	outcome, err := orch.SceneSearch(ctx, scene, profile)
	result := SceneResult{Outcome: outcome}
	if err != nil {
		return result, err
	}
	if outcome.Selected == nil {
		result.Reason = "no release matched the scene and the quality profile"
		return result, nil
	}
	if dryRun {
		result.Reason = "dry run"
		return result, nil
	}

	item, err := p.acquire(ctx, *outcome.Selected, subscriptionID)
	switch {
	case errors.Is(err, queue.ErrDuplicateScene), errors.Is(err, queue.ErrDuplicateHash):
		result.Reason = err.Error()
		return result, nil
	case err != nil && item.ID == 0:
		return result, err
	}
	result.Item = &item
	if err != nil {
		result.Reason = err.Error()
	}
	return result, nil
}

// acquire queues an accepted release and submits it. A submission failure
// still returns the stored item.
func (p *Pipeline) acquire(ctx context.Context, accepted search.Accepted, subscriptionID *uint) (db.QueueItem, error) {
	release := accepted.Release
	item := db.QueueItem{
		SceneID:        accepted.SceneID(),
		SubscriptionID: subscriptionID,
		Placeholder:    accepted.Placeholder,
		ContentHash:    release.ContentHash,
		Title:          release.Title,
		DownloadURL:    release.SubmitURL(),
		Indexer:        release.Indexer,
		Size:           release.Size,
		Seeders:        release.Seeders,
		Quality:        release.Quality,
		Source:         release.Source,
	}
	if err := p.queue.Accept(ctx, &item); err != nil {
		return db.QueueItem{}, err
	}
	return p.submitter.Deliver(ctx, item)
}
