package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/metrics"
)

// Cadence selects how much of the retry backlog one run works through.
type Cadence string

const (
	// CadenceShort runs with every monitor poll and takes a small batch.
	CadenceShort Cadence = "short"
	// CadenceLong runs after discovery and drains every candidate.
	CadenceLong Cadence = "long"
)

// Submitter hands a queue item to the torrent client and waits until the
// client lists it. It returns the client hash.
type Submitter interface {
	Submit(ctx context.Context, item db.QueueItem) (string, error)
}

// Wanted reports whether the owner of an item still wants it.
type Wanted interface {
	StillWanted(ctx context.Context, item db.QueueItem) (bool, error)
}

// RetryStore is the part of the queue the retrier drives.
type RetryStore interface {
	RetryCandidates(ctx context.Context, maxAttempts, limit int) ([]db.QueueItem, error)
	Exhausted(ctx context.Context, maxAttempts int) ([]db.QueueItem, error)
	IncrementAttempts(ctx context.Context, id uint, lastError string) (db.QueueItem, error)
	Transition(ctx context.Context, id uint, to db.QueueStatus, update func(*db.QueueItem)) (db.QueueItem, error)
}

// RetryPolicy bounds resubmission.
type RetryPolicy struct {
	MaxAttempts int
	ShortBatch  int
}

// RetryReport counts what one retry run did.
type RetryReport struct {
	Exhausted   int
	Skipped     int
	Resubmitted int
	Failed      int
}

// Retrier resubmits items that could not be handed to the torrent client.
// Passes are serialised so the short and long cadences never pick the same
// item at once.
type Retrier struct {
	mu sync.Mutex

	store     RetryStore
	submitter Submitter
	wanted    Wanted
	policy    RetryPolicy
	logger    zerolog.Logger
}

// NewRetrier creates a retrier. wanted may be nil, in which case every item
// is still wanted.
func NewRetrier(store RetryStore, submitter Submitter, wanted Wanted, policy RetryPolicy, logger zerolog.Logger) *Retrier {
	return &Retrier{
		store:     store,
		submitter: submitter,
		wanted:    wanted,
		policy:    policy,
		logger:    logger.With().Str("component", "retry").Logger(),
	}
}

// Run performs one retry pass. Items at the attempt ceiling are failed
// permanently before the batch is chosen, so they never take a slot.
func (r *Retrier) Run(ctx context.Context, cadence Cadence) (RetryReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report RetryReport

	exhausted, err := r.store.Exhausted(ctx, r.policy.MaxAttempts)
	if err != nil {
		return report, fmt.Errorf("list exhausted items: %w", err)
	}
	for _, item := range exhausted {
		if r.fail(ctx, item) {
			report.Exhausted++
		}
	}

	limit := 0
	if cadence == CadenceShort {
		limit = r.policy.ShortBatch
	}
	candidates, err := r.store.RetryCandidates(ctx, r.policy.MaxAttempts, limit)
	if err != nil {
		return report, fmt.Errorf("list retry candidates: %w", err)
	}

	for _, item := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if r.wanted != nil {
			wanted, err := r.wanted.StillWanted(ctx, item)
			if err != nil {
				r.logger.Warn().Err(err).Uint("id", item.ID).Msg("could not check subscription")
				continue
			}
			if !wanted {
				report.Skipped++
				metrics.Default.RetryOutcomes.WithLabelValues("skipped").Inc()
				r.logger.Info().Uint("id", item.ID).Str("title", item.Title).Msg("scene no longer wanted, skipping retry")
				continue
			}
		}

		if r.retry(ctx, item) {
			report.Resubmitted++
		} else {
			report.Failed++
		}
	}

	if len(candidates) > 0 || report.Exhausted > 0 {
		r.logger.Info().
			Str("cadence", string(cadence)).
			Int("candidates", len(candidates)).
			Int("resubmitted", report.Resubmitted).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Int("exhausted", report.Exhausted).
			Msg("retry pass finished")
	}
	return report, nil
}

func (r *Retrier) retry(ctx context.Context, item db.QueueItem) bool {
	hash, submitErr := r.submitter.Submit(ctx, item)

	lastError := ""
	if submitErr != nil {
		lastError = submitErr.Error()
	}
	counted, err := r.store.IncrementAttempts(ctx, item.ID, lastError)
	if err != nil {
		r.logger.Warn().Err(err).Uint("id", item.ID).Msg("could not count retry attempt")
		return false
	}

	if submitErr != nil {
		metrics.Default.RetryOutcomes.WithLabelValues("failed").Inc()
		r.logger.Warn().Err(submitErr).Uint("id", item.ID).Int("attempts", counted.Attempts).Msg("resubmission failed")
		return false
	}

	_, err = r.store.Transition(ctx, item.ID, db.StatusQueued, func(q *db.QueueItem) {
		if hash != "" {
			q.ClientHash = &hash
		}
		q.LastError = ""
	})
	if err != nil {
		r.logger.Warn().Err(err).Uint("id", item.ID).Msg("could not requeue resubmitted item")
		return false
	}
	metrics.Default.RetryOutcomes.WithLabelValues("resubmitted").Inc()
	return true
}

func (r *Retrier) fail(ctx context.Context, item db.QueueItem) bool {
	_, err := r.store.Transition(ctx, item.ID, db.StatusFailed, func(q *db.QueueItem) {
		q.LastError = fmt.Sprintf("gave up after %d submission attempts: %s", q.Attempts, q.LastError)
	})
	if err != nil {
		r.logger.Warn().Err(err).Uint("id", item.ID).Msg("could not fail exhausted item")
		return false
	}
	metrics.Default.RetryOutcomes.WithLabelValues("permanent_failure").Inc()
	return true
}
