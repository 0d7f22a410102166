package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrUnavailable marks connectivity failures. Callers may retry later.
var ErrUnavailable = errors.New("indexer unavailable")

// Query represents a search request for one entity
type Query struct {
	Term    string
	Aliases []string

	// IncludeAliases searches each alias as its own term.
	IncludeAliases bool
}

// Terms returns the distinct search terms for the query, primary term first.
func (q Query) Terms() []string {
	terms := []string{q.Term}
	if !q.IncludeAliases {
		return terms
	}
	seen := map[string]bool{q.Term: true}
	for _, alias := range q.Aliases {
		if alias == "" || seen[alias] {
			continue
		}
		seen[alias] = true
		terms = append(terms, alias)
	}
	return terms
}

// Indexer is the interface that all indexers must implement
type Indexer interface {
	// Name returns the display name of the indexer
	Name() string

	// Search runs one term. No results is an empty slice, not an error.
	Search(ctx context.Context, term string) ([]Release, error)

	// Test checks if the indexer is reachable and configured correctly
	Test(ctx context.Context) error
}

// IndexerError reports a failed indexer without failing the whole search.
type IndexerError struct {
	Indexer string
	Term    string
	Err     error
}

func (e IndexerError) Error() string {
	return fmt.Sprintf("indexer %s (%q): %v", e.Indexer, e.Term, e.Err)
}

func (e IndexerError) Unwrap() error {
	return e.Err
}

type registered struct {
	indexer Indexer
	limiter *rate.Limiter
}

// Manager handles multiple indexers and orchestrates searches
type Manager struct {
	indexers      []registered
	maxConcurrent int64
	logger        zerolog.Logger
}

// NewManager creates a new indexer manager
func NewManager(maxConcurrent int, logger zerolog.Logger) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		indexers:      make([]registered, 0),
		maxConcurrent: int64(maxConcurrent),
		logger:        logger.With().Str("component", "indexer").Logger(),
	}
}

// AddIndexer adds an indexer with its own request budget.
func (m *Manager) AddIndexer(indexer Indexer, requestsPerSecond float64, burst int) {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	m.indexers = append(m.indexers, registered{
		indexer: indexer,
		limiter: rate.NewLimiter(limit, burst),
	})
}

// Indexers returns the registered indexers in registration order.
func (m *Manager) Indexers() []Indexer {
	out := make([]Indexer, len(m.indexers))
	for i, r := range m.indexers {
		out[i] = r.indexer
	}
	return out
}

// SearchAll queries every indexer for every term of q. Indexers run
// concurrently up to the manager's limit, but results are concatenated in
// registration order and term order so the output is deterministic. A failing
// indexer is reported in the error list and does not affect the others.
func (m *Manager) SearchAll(ctx context.Context, q Query) ([]Release, []IndexerError) {
	terms := q.Terms()
	started := time.Now()

	perIndexer := make([][]Release, len(m.indexers))
	failures := make([][]IndexerError, len(m.indexers))

	sem := semaphore.NewWeighted(m.maxConcurrent)
	var wg sync.WaitGroup
	for i, reg := range m.indexers {
		wg.Add(1)
		go func(index int, reg registered) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				failures[index] = append(failures[index], IndexerError{Indexer: reg.indexer.Name(), Term: q.Term, Err: err})
				return
			}
			defer sem.Release(1)

			for _, term := range terms {
				if err := reg.limiter.Wait(ctx); err != nil {
					failures[index] = append(failures[index], IndexerError{Indexer: reg.indexer.Name(), Term: term, Err: err})
					return
				}
				results, err := reg.indexer.Search(ctx, term)
				if err != nil {
					m.logger.Warn().Err(err).Str("indexer", reg.indexer.Name()).Str("term", term).Msg("indexer search failed")
					failures[index] = append(failures[index], IndexerError{Indexer: reg.indexer.Name(), Term: term, Err: err})
					continue
				}
				perIndexer[index] = append(perIndexer[index], results...)
			}
		}(i, reg)
	}
	wg.Wait()

	var all []Release
	var errs []IndexerError
	for i := range m.indexers {
		all = append(all, perIndexer[i]...)
		errs = append(errs, failures[i]...)
	}

	m.logger.Debug().
		Str("term", q.Term).
		Int("terms", len(terms)).
		Int("indexers", len(m.indexers)).
		Int("results", len(all)).
		Int("failures", len(errs)).
		Dur("elapsed", time.Since(started)).
		Msg("search completed")
	return all, errs
}
