package search

import (
	"context"
	"fmt"
	"time"

	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/matcher"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/metrics"
	"github.com/scenarr/scenarr/internal/quality"
)

// SceneOutcome is the result of a scene-targeted search.
type SceneOutcome struct {
	Scene metadata.Scene
	// Ranked holds validated releases in profile preference order.
	Ranked        []indexer.Release
	Selected      *Accepted
	Raw           int
	Validated     int
	IndexerErrors []indexer.IndexerError
}

// SceneSearch searches for one known scene by title. Grouping is skipped and
// every candidate is validated on its own against the scene before quality
// selection.
func (o *Orchestrator) SceneSearch(ctx context.Context, scene metadata.Scene, profile quality.Profile) (SceneOutcome, error) {
	started := time.Now()
	defer func() {
		metrics.Default.SearchDuration.WithLabelValues("scene").Observe(time.Since(started).Seconds())
	}()

	raw, errs := o.searcher.SearchAll(ctx, indexer.Query{Term: scene.Title})
	for _, e := range errs {
		metrics.Default.IndexerErrors.WithLabelValues(e.Indexer).Inc()
	}
	if len(raw) == 0 && len(errs) > 0 {
		return SceneOutcome{Scene: scene, IndexerErrors: errs}, fmt.Errorf("search scene %s: %w", scene.ID, joinIndexerErrors(errs))
	}

	outcome := o.ProcessScene(ctx, scene, profile, raw)
	outcome.IndexerErrors = errs
	return outcome, nil
}

// ProcessScene validates and ranks raw candidates for scene.
func (o *Orchestrator) ProcessScene(ctx context.Context, scene metadata.Scene, profile quality.Profile, raw []indexer.Release) SceneOutcome {
	outcome := SceneOutcome{Scene: scene, Raw: len(raw)}

	var (
		validated []indexer.Release
		results   = make(map[string]matcher.Result)
	)
	for _, release := range Dedup(raw) {
		result, ok := o.matcher.MatchOne(ctx, matcher.Query{Title: release.Title, Date: release.ReleaseDate}, scene)
		if !ok {
			metrics.Default.MatchDecisions.WithLabelValues("none", "rejected").Inc()
			continue
		}
		metrics.Default.MatchDecisions.WithLabelValues(string(result.Method), "accepted").Inc()
		release.SceneID = scene.ID
		validated = append(validated, release)
		results[release.Title] = result
	}
	outcome.Validated = len(validated)
	outcome.Ranked = profile.Rank(validated)

	if release, score, ok := profile.Select(validated); ok {
		result := results[release.Title]
		target := scene
		outcome.Selected = &Accepted{
			Release:    release,
			Scene:      &target,
			Match:      &result,
			GroupKey:   scene.ID,
			Candidates: len(validated),
			Quality:    score,
		}
	}

	o.logger.Info().
		Str("scene", scene.ID).
		Str("title", scene.Title).
		Int("raw", outcome.Raw).
		Int("validated", outcome.Validated).
		Bool("selected", outcome.Selected != nil).
		Msg("scene search processed")
	return outcome
}
