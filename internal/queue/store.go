package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/metrics"
)

var (
	// ErrNotFound is returned for an unknown queue item id.
	ErrNotFound = errors.New("queue item not found")
	// ErrDuplicateScene is returned when the scene already has an active item.
	ErrDuplicateScene = errors.New("scene already has an active queue item")
	// ErrDuplicateHash is returned when an active item already has the content hash.
	ErrDuplicateHash = errors.New("content hash already queued")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid queue status transition")
)

// Notifier is told about every persisted change. from is empty for new items
// and equal to the current status for updates that keep it.
type Notifier interface {
	QueueChanged(item db.QueueItem, from db.QueueStatus)
}

// Store persists queue items and enforces the lifecycle rules.
type Store struct {
	db       *gorm.DB
	notifier Notifier
	logger   zerolog.Logger
}

// NewStore creates a queue store. notifier may be nil.
func NewStore(database *gorm.DB, notifier Notifier, logger zerolog.Logger) *Store {
	return &Store{
		db:       database,
		notifier: notifier,
		logger:   logger.With().Str("component", "queue").Logger(),
	}
}

// Accept inserts a new queued item unless its scene or content hash is
// already held by an active item. The checks and the insert share one
// transaction.
func (s *Store) Accept(ctx context.Context, item *db.QueueItem) error {
	item.Status = db.StatusQueued
	item.Attempts = 0
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.QueueItem{}).
			Where("scene_id = ? AND status IN ?", item.SceneID, blockingStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateScene
		}

		if item.ContentHash != "" {
			if err := tx.Model(&db.QueueItem{}).
				Where("content_hash = ? AND status IN ?", item.ContentHash, blockingStatuses).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateHash
			}
		}

		return tx.Create(item).Error
	})

	switch {
	case errors.Is(err, ErrDuplicateScene):
		metrics.Default.QueueAccepted.WithLabelValues("duplicate_scene").Inc()
		return err
	case errors.Is(err, ErrDuplicateHash):
		metrics.Default.QueueAccepted.WithLabelValues("duplicate_hash").Inc()
		return err
	case err != nil:
		return fmt.Errorf("accept queue item: %w", err)
	}

	metrics.Default.QueueAccepted.WithLabelValues("accepted").Inc()
	s.logger.Info().
		Uint("id", item.ID).
		Str("scene", item.SceneID).
		Str("title", item.Title).
		Str("hash", item.ContentHash).
		Msg("release queued")
	s.notify(*item, "")
	return nil
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, id uint) (db.QueueItem, error) {
	var item db.QueueItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return item, ErrNotFound
		}
		return item, err
	}
	return item, nil
}

// ListOptions filters List.
type ListOptions struct {
	Statuses []db.QueueStatus
	Limit    int
	Offset   int
}

// List returns items newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]db.QueueItem, int64, error) {
	query := s.db.WithContext(ctx).Model(&db.QueueItem{})
	if len(opts.Statuses) > 0 {
		query = query.Where("status IN ?", opts.Statuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var items []db.QueueItem
	if err := query.Order("added_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByStatus returns items in any of the statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...db.QueueStatus) ([]db.QueueItem, error) {
	var items []db.QueueItem
	err := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("added_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// Active returns every non-terminal item that holds a scene slot.
func (s *Store) Active(ctx context.Context) ([]db.QueueItem, error) {
	return s.ListByStatus(ctx, db.ActiveStatuses...)
}

// SceneHasItem reports whether any item exists for the scene, in any status.
func (s *Store) SceneHasItem(ctx context.Context, sceneID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&db.QueueItem{}).Where("scene_id = ?", sceneID).Count(&count).Error
	return count > 0, err
}

// RetryCandidates returns add_failed items still under the attempt ceiling,
// least recently touched first.
func (s *Store) RetryCandidates(ctx context.Context, maxAttempts, limit int) ([]db.QueueItem, error) {
	query := s.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", db.StatusAddFailed, maxAttempts).
		Order("updated_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []db.QueueItem
	err := query.Find(&items).Error
	return items, err
}

// Exhausted returns add_failed items that reached the attempt ceiling.
func (s *Store) Exhausted(ctx context.Context, maxAttempts int) ([]db.QueueItem, error) {
	var items []db.QueueItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND attempts >= ?", db.StatusAddFailed, maxAttempts).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// Transition moves an item to status to, applying update to the loaded row
// before it is saved. Moving an item to the status it already has is an error.
func (s *Store) Transition(ctx context.Context, id uint, to db.QueueStatus, update func(*db.QueueItem)) (db.QueueItem, error) {
	var (
		item db.QueueItem
		from db.QueueStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		from = item.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		if update != nil {
			update(&item)
		}
		item.Status = to
		if to == db.StatusCompleted && item.CompletedAt == nil {
			now := time.Now()
			item.CompletedAt = &now
			item.Progress = 1
		}
		return tx.Save(&item).Error
	})
	if err != nil {
		return item, err
	}

	metrics.Default.QueueTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info().
		Uint("id", item.ID).
		Str("title", item.Title).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("queue status changed")
	s.notify(item, from)
	return item, nil
}

// Update saves changes that do not alter the status, such as progress or the
// client hash.
func (s *Store) Update(ctx context.Context, id uint, update func(*db.QueueItem)) (db.QueueItem, error) {
	var item db.QueueItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		status := item.Status
		update(&item)
		item.Status = status
		return tx.Save(&item).Error
	})
	if err != nil {
		return item, err
	}
	s.notify(item, item.Status)
	return item, nil
}

// IncrementAttempts bumps the submission attempt counter. The counter never
// decreases.
func (s *Store) IncrementAttempts(ctx context.Context, id uint, lastError string) (db.QueueItem, error) {
	result := s.db.WithContext(ctx).Model(&db.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		})
	if result.Error != nil {
		return db.QueueItem{}, result.Error
	}
	if result.RowsAffected == 0 {
		return db.QueueItem{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) notify(item db.QueueItem, from db.QueueStatus) {
	if s.notifier != nil {
		s.notifier.QueueChanged(item, from)
	}
}
