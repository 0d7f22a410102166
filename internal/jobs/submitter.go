package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
	"github.com/scenarr/scenarr/internal/queue"
)

// SubmitOptions are the client-side placement settings for new torrents.
type SubmitOptions struct {
	Category        string
	SavePath        string
	RegisterTimeout time.Duration
	PollInterval    time.Duration
}

// Submitter hands queue items to the torrent client.
type Submitter struct {
	client downloader.TorrentClient
	queue  *queue.Store
	opts   SubmitOptions
	logger zerolog.Logger
}

// NewSubmitter creates a submitter.
func NewSubmitter(client downloader.TorrentClient, store *queue.Store, opts SubmitOptions, logger zerolog.Logger) *Submitter {
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Submitter{
		client: client,
		queue:  store,
		opts:   opts,
		logger: logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit adds the item's release to the client and waits until the client
// lists it. The returned hash is the one the client reports.
func (s *Submitter) Submit(ctx context.Context, item db.QueueItem) (string, error) {
	if item.DownloadURL == "" {
		return "", fmt.Errorf("item %d has no download link", item.ID)
	}

	hash, err := s.client.Submit(ctx, downloader.Submission{
		URL:      item.DownloadURL,
		Name:     item.Title,
		Category: s.opts.Category,
		SavePath: s.opts.SavePath,
	})
	if err != nil {
		return "", fmt.Errorf("submit %q: %w", item.Title, err)
	}
	if hash == "" {
		hash = item.ContentHash
	}

	torrent, err := downloader.WaitForRegistration(ctx, s.client, downloader.MatchSubmission(hash, item.Title), s.opts.RegisterTimeout, s.opts.PollInterval)
	if err != nil {
		return "", fmt.Errorf("submit %q: %w", item.Title, err)
	}
	return torrent.Hash, nil
}

// Deliver submits a freshly accepted item and records the outcome. A failed
// submission moves the item to add_failed and counts as its first attempt.
func (s *Submitter) Deliver(ctx context.Context, item db.QueueItem) (db.QueueItem, error) {
	hash, err := s.Submit(ctx, item)
	if err != nil {
		s.logger.Warn().Err(err).Uint("id", item.ID).Str("title", item.Title).Msg("submission failed")
		if _, terr := s.queue.Transition(ctx, item.ID, db.StatusAddFailed, func(q *db.QueueItem) {
			q.LastError = err.Error()
		}); terr != nil {
			return item, fmt.Errorf("%w (recording failure: %v)", err, terr)
		}
		updated, ierr := s.queue.IncrementAttempts(ctx, item.ID, err.Error())
		if ierr != nil {
			return item, fmt.Errorf("%w (counting attempt: %v)", err, ierr)
		}
		return updated, err
	}

	updated, err := s.queue.Update(ctx, item.ID, func(q *db.QueueItem) {
		q.ClientHash = &hash
		q.LastError = ""
	})
	if err != nil {
		return item, err
	}
	s.logger.Info().Uint("id", item.ID).Str("title", item.Title).Str("hash", hash).Msg("release submitted")
	return updated, nil
}
