package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
	"github.com/scenarr/scenarr/internal/metrics"
	"github.com/scenarr/scenarr/internal/queue"
)

// Handoff places a finished payload into the library.
type Handoff interface {
	Complete(ctx context.Context, item db.QueueItem, torrent downloader.ActiveTorrent) (string, error)
}

// Store is the part of the queue the monitor drives.
type Store interface {
	Active(ctx context.Context) ([]db.QueueItem, error)
	Transition(ctx context.Context, id uint, to db.QueueStatus, update func(*db.QueueItem)) (db.QueueItem, error)
	Update(ctx context.Context, id uint, update func(*db.QueueItem)) (db.QueueItem, error)
}

// Report counts what one poll did.
type Report struct {
	Checked   int
	Missing   int
	Completed int
	Failed    int
	Resumed   int
	Paused    int
	Stalled   int
}

// Monitor reconciles active queue items with the torrent client.
type Monitor struct {
	store   Store
	client  downloader.TorrentClient
	handoff Handoff
	stall   StallPolicy
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a monitor. timeout bounds a single poll; zero means the
// caller's context alone.
func New(store Store, client downloader.TorrentClient, handoff Handoff, stall StallPolicy, timeout time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		store:   store,
		client:  client,
		handoff: handoff,
		stall:   stall,
		timeout: timeout,
		logger:  logger.With().Str("component", "monitor").Logger(),
	}
}

// Poll runs one reconciliation pass. A failure on one item is logged and
// the pass moves on.
func (m *Monitor) Poll(ctx context.Context) (Report, error) {
	var report Report

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	torrents, err := m.client.ListActive(ctx)
	if err != nil {
		metrics.Default.MonitorIterations.WithLabelValues("client_error").Inc()
		return report, fmt.Errorf("list torrents: %w", err)
	}
	items, err := m.store.Active(ctx)
	if err != nil {
		metrics.Default.MonitorIterations.WithLabelValues("store_error").Inc()
		return report, fmt.Errorf("list active items: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			metrics.Default.MonitorIterations.WithLabelValues("timeout").Inc()
			return report, ctx.Err()
		}
		report.Checked++

		torrent, ok := m.locate(item, torrents)
		if !ok {
			report.Missing++
			m.logger.Debug().Uint("id", item.ID).Str("hash", item.Hash()).Msg("item not reported by client")
			continue
		}
		if err := m.reconcile(ctx, item, torrent, &report); err != nil && !errors.Is(err, queue.ErrInvalidTransition) {
			m.logger.Warn().Err(err).Uint("id", item.ID).Str("title", item.Title).Msg("reconcile failed")
		}
	}

	metrics.Default.MonitorIterations.WithLabelValues("ok").Inc()
	m.logger.Debug().
		Int("checked", report.Checked).
		Int("missing", report.Missing).
		Int("completed", report.Completed).
		Int("stalled", report.Stalled).
		Msg("poll finished")
	return report, nil
}

func (m *Monitor) locate(item db.QueueItem, torrents []downloader.ActiveTorrent) (downloader.ActiveTorrent, bool) {
	if hash := item.Hash(); hash != "" {
		if t, ok := downloader.Find(torrents, hash); ok {
			return t, true
		}
	}
	if item.ClientHash == nil {
		match := downloader.MatchSubmission("", item.Title)
		for _, t := range torrents {
			if match(t) {
				return t, true
			}
		}
	}
	return downloader.ActiveTorrent{}, false
}

func (m *Monitor) reconcile(ctx context.Context, item db.QueueItem, t downloader.ActiveTorrent, report *Report) error {
	if item.ClientHash == nil && t.Hash != "" {
		hash := t.Hash
		updated, err := m.store.Update(ctx, item.ID, func(q *db.QueueItem) { q.ClientHash = &hash })
		if err != nil {
			return err
		}
		item = updated
	}

	if t.Complete() {
		return m.complete(ctx, item, t, report)
	}

	if progressChanged(item.Progress, t.Progress) {
		if _, err := m.store.Update(ctx, item.ID, func(q *db.QueueItem) { q.Progress = t.Progress }); err != nil {
			return err
		}
	}

	switch {
	case item.Status == db.StatusQueued && t.State.Downloading():
		report.Resumed++
		_, err := m.store.Transition(ctx, item.ID, db.StatusDownloading, nil)
		return err
	case item.Status == db.StatusPaused && t.State.Downloading():
		report.Resumed++
		_, err := m.store.Transition(ctx, item.ID, db.StatusDownloading, nil)
		return err
	case item.Status == db.StatusDownloading && t.State == downloader.StatePaused:
		report.Paused++
		_, err := m.store.Transition(ctx, item.ID, db.StatusPaused, nil)
		return err
	case item.Status == db.StatusDownloading && m.stall.IsStalled(t):
		return m.pauseStalled(ctx, item, t, report)
	}
	return nil
}

// complete hands the payload off and only then marks the item completed.
// A failed handoff fails the item; it is not a submission failure and is
// not retried.
func (m *Monitor) complete(ctx context.Context, item db.QueueItem, t downloader.ActiveTorrent, report *Report) error {
	dest, err := m.handoff.Complete(ctx, item, t)
	if err != nil {
		report.Failed++
		m.logger.Error().Err(err).Uint("id", item.ID).Str("title", item.Title).Msg("handoff failed")
		_, terr := m.store.Transition(ctx, item.ID, db.StatusFailed, func(q *db.QueueItem) {
			q.LastError = "handoff: " + err.Error()
			q.Progress = t.Progress
		})
		return terr
	}

	report.Completed++
	_, err = m.store.Transition(ctx, item.ID, db.StatusCompleted, func(q *db.QueueItem) { q.LastError = "" })
	if err == nil {
		m.logger.Info().Uint("id", item.ID).Str("title", item.Title).Str("destination", dest).Msg("download completed")
	}
	return err
}

func (m *Monitor) pauseStalled(ctx context.Context, item db.QueueItem, t downloader.ActiveTorrent, report *Report) error {
	report.Stalled++
	metrics.Default.Stalls.Inc()
	m.logger.Info().
		Uint("id", item.ID).
		Str("title", item.Title).
		Int("seeders", t.Seeders).
		Int64("throughput", t.Throughput).
		Float64("progress", t.Progress).
		Msg("download stalled, pausing")

	if err := m.client.SetPriority(ctx, t.Hash, downloader.PriorityBottom); err != nil {
		m.logger.Warn().Err(err).Str("hash", t.Hash).Msg("lower priority failed")
	}
	if err := m.client.Pause(ctx, t.Hash); err != nil {
		return fmt.Errorf("pause stalled torrent: %w", err)
	}
	_, err := m.store.Transition(ctx, item.ID, db.StatusPaused, func(q *db.QueueItem) { q.LastError = "stalled" })
	return err
}

func progressChanged(old, new float64) bool {
	return math.Abs(old-new) >= 0.001
}
