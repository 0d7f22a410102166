package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/matcher"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/metrics"
	"github.com/scenarr/scenarr/internal/quality"
)

// PlaceholderPrefix marks scene ids of metadata-less acceptances.
const PlaceholderPrefix = "placeholder:"

// Searcher runs one entity query across every configured indexer.
type Searcher interface {
	SearchAll(ctx context.Context, q indexer.Query) ([]indexer.Release, []indexer.IndexerError)
}

// Entity is the subject of a search.
type Entity struct {
	Kind           db.SubscriptionKind
	ID             string
	Name           string
	Aliases        []string
	SubscriptionID *uint
}

// Names returns the entity name followed by its aliases.
func (e Entity) Names() []string {
	return append([]string{e.Name}, e.Aliases...)
}

// Options are the orchestrator switches.
type Options struct {
	IncludeAliases         bool
	AcceptPlaceholders     bool
	PlaceholderMinIndexers int
}

// Accepted is one release chosen for download.
type Accepted struct {
	Release     indexer.Release
	Scene       *metadata.Scene
	Match       *matcher.Result
	Placeholder bool
	GroupKey    string
	Candidates  int
	Quality     quality.Score
}

// SceneID is the scene key used for queue dedup.
func (a Accepted) SceneID() string {
	if a.Scene != nil {
		return a.Scene.ID
	}
	return PlaceholderPrefix + a.GroupKey
}

// Outcome summarises one orchestrated search.
type Outcome struct {
	Accepted      []Accepted
	Unmatched     []Group
	Raw           int
	Unique        int
	Filtered      int
	Groups        int
	IndexerErrors []indexer.IndexerError
}

// Orchestrator turns raw indexer output into quality-selected releases.
type Orchestrator struct {
	searcher Searcher
	matcher  matcher.Matcher
	opts     Options
	logger   zerolog.Logger
}

// New builds an orchestrator.
func New(searcher Searcher, m matcher.Matcher, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.PlaceholderMinIndexers < 1 {
		opts.PlaceholderMinIndexers = 1
	}
	return &Orchestrator{
		searcher: searcher,
		matcher:  m,
		opts:     opts,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// WithMatcher returns a copy using a different matcher.
func (o *Orchestrator) WithMatcher(m matcher.Matcher) *Orchestrator {
	clone := *o
	clone.matcher = m
	return &clone
}

// Search queries the indexers for entity and processes the results against
// the entity's known scenes. It fails only when every indexer failed and
// nothing came back.
func (o *Orchestrator) Search(ctx context.Context, entity Entity, scenes []metadata.Scene, profile quality.Profile) (Outcome, error) {
	started := time.Now()
	defer func() {
		metrics.Default.SearchDuration.WithLabelValues(string(entity.Kind)).Observe(time.Since(started).Seconds())
	}()

	raw, errs := o.searcher.SearchAll(ctx, indexer.Query{
		Term:           entity.Name,
		Aliases:        entity.Aliases,
		IncludeAliases: o.opts.IncludeAliases,
	})
	for _, e := range errs {
		metrics.Default.IndexerErrors.WithLabelValues(e.Indexer).Inc()
	}
	if len(raw) == 0 && len(errs) > 0 {
		return Outcome{IndexerErrors: errs}, fmt.Errorf("search %q: %w", entity.Name, joinIndexerErrors(errs))
	}

	outcome := o.Process(ctx, entity, scenes, profile, raw)
	outcome.IndexerErrors = errs
	return outcome, nil
}

// Process runs dedup, filtering, grouping, matching and quality selection on
// raw. It has no side effects beyond logging and metrics, so the same input
// always selects the same releases.
func (o *Orchestrator) Process(ctx context.Context, entity Entity, scenes []metadata.Scene, profile quality.Profile, raw []indexer.Release) Outcome {
	outcome := Outcome{Raw: len(raw)}

	unique := Dedup(raw)
	outcome.Unique = len(unique)

	filtered := Filter(unique, entity.Names())
	outcome.Filtered = len(filtered)

	groups := GroupReleases(filtered)
	outcome.Groups = len(groups)

	// Groups that resolve to one scene are merged so quality selection sees
	// every encode of it.
	type matched struct {
		scene  metadata.Scene
		result matcher.Result
		key    string
		pool   []indexer.Release
	}
	var byScene []*matched
	sceneIndex := make(map[string]int)

	for _, group := range groups {
		rep := group.Releases[0]
		query := matcher.Query{Title: rep.Title, Date: rep.ReleaseDate}
		if entity.Kind == db.KindStudio {
			query.Studio = entity.Name
		}

		result, ok := o.matcher.Match(ctx, query, scenes)
		if !ok {
			metrics.Default.MatchDecisions.WithLabelValues("none", "rejected").Inc()
			outcome.Unmatched = append(outcome.Unmatched, group)
			continue
		}
		metrics.Default.MatchDecisions.WithLabelValues(string(result.Method), "accepted").Inc()

		if i, ok := sceneIndex[result.Scene.ID]; ok {
			m := byScene[i]
			m.pool = append(m.pool, group.Releases...)
			if result.Score > m.result.Score {
				m.result = result
			}
			continue
		}
		sceneIndex[result.Scene.ID] = len(byScene)
		byScene = append(byScene, &matched{
			scene:  result.Scene,
			result: result,
			key:    group.Key,
			pool:   append([]indexer.Release(nil), group.Releases...),
		})
	}

	for _, m := range byScene {
		release, score, ok := profile.Select(m.pool)
		if !ok {
			o.logger.Debug().Str("scene", m.scene.ID).Int("candidates", len(m.pool)).Msg("no release satisfies the quality profile")
			continue
		}
		scene := m.scene
		result := m.result
		release.SceneID = scene.ID
		outcome.Accepted = append(outcome.Accepted, Accepted{
			Release:    release,
			Scene:      &scene,
			Match:      &result,
			GroupKey:   m.key,
			Candidates: len(m.pool),
			Quality:    score,
		})
	}

	if o.opts.AcceptPlaceholders {
		outcome.Accepted = append(outcome.Accepted, o.placeholders(outcome.Unmatched, profile)...)
	}

	metrics.Default.SearchReleases.WithLabelValues("raw").Add(float64(outcome.Raw))
	metrics.Default.SearchReleases.WithLabelValues("unique").Add(float64(outcome.Unique))
	metrics.Default.SearchReleases.WithLabelValues("filtered").Add(float64(outcome.Filtered))
	metrics.Default.SearchReleases.WithLabelValues("accepted").Add(float64(len(outcome.Accepted)))

	o.logger.Info().
		Str("entity", entity.Name).
		Str("kind", string(entity.Kind)).
		Int("raw", outcome.Raw).
		Int("unique", outcome.Unique).
		Int("filtered", outcome.Filtered).
		Int("groups", outcome.Groups).
		Int("unmatched", len(outcome.Unmatched)).
		Int("accepted", len(outcome.Accepted)).
		Msg("search processed")
	return outcome
}

// placeholders accepts unmatched groups seen on enough independent indexers.
func (o *Orchestrator) placeholders(unmatched []Group, profile quality.Profile) []Accepted {
	var out []Accepted
	for _, group := range unmatched {
		if group.Indexers() < o.opts.PlaceholderMinIndexers {
			continue
		}
		release, score, ok := profile.Select(group.Releases)
		if !ok {
			continue
		}
		release.SceneID = PlaceholderPrefix + group.Key
		out = append(out, Accepted{
			Release:     release,
			Placeholder: true,
			GroupKey:    group.Key,
			Candidates:  len(group.Releases),
			Quality:     score,
		})
	}
	return out
}

func joinIndexerErrors(errs []indexer.IndexerError) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}
