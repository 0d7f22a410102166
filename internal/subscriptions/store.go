package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/quality"
)

// ErrNotFound is returned for an unknown subscription id.
var ErrNotFound = errors.New("subscription not found")

// Store persists followed performers, studios and scenes.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a subscription store.
func NewStore(database *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With().Str("component", "subscriptions").Logger(),
	}
}

// Create adds a subscription. An identical active subscription is returned
// instead of a duplicate.
func (s *Store) Create(ctx context.Context, sub *db.Subscription, aliases []string) error {
	switch sub.Kind {
	case db.KindPerformer, db.KindStudio, db.KindScene:
	default:
		return fmt.Errorf("unknown subscription kind %q", sub.Kind)
	}
	if sub.ExternalID == "" {
		return errors.New("subscription needs an external id")
	}
	if len(aliases) > 0 {
		data, err := json.Marshal(aliases)
		if err != nil {
			return err
		}
		sub.Aliases = string(data)
	}
	sub.Active = true

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.Subscription
		err := tx.Where("kind = ? AND external_id = ?", sub.Kind, sub.ExternalID).First(&existing).Error
		switch {
		case err == nil:
			existing.Active = true
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			*sub = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(sub).Error
	})
}

// Get returns one subscription with its quality profile.
func (s *Store) Get(ctx context.Context, id uint) (db.Subscription, error) {
	var sub db.Subscription
	err := s.db.WithContext(ctx).Preload("QualityProfile").First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, ErrNotFound
	}
	return sub, err
}

// ListActive returns active subscriptions, least recently searched first.
func (s *Store) ListActive(ctx context.Context) ([]db.Subscription, error) {
	var subs []db.Subscription
	err := s.db.WithContext(ctx).
		Preload("QualityProfile").
		Where("active = ?", true).
		Order("last_searched_at IS NOT NULL, last_searched_at ASC, id ASC").
		Find(&subs).Error
	return subs, err
}

// SetActive follows or unfollows a subscription.
func (s *Store) SetActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&db.Subscription{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info().Uint("id", id).Bool("active", active).Msg("subscription updated")
	return nil
}

// MarkSearched records when discovery last processed a subscription.
func (s *Store) MarkSearched(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&db.Subscription{}).Where("id = ?", id).Update("last_searched_at", at).Error
}

// StillWanted reports whether the owner of a queue item is still followed.
// Items without a subscription were requested by hand and stay wanted.
func (s *Store) StillWanted(ctx context.Context, item db.QueueItem) (bool, error) {
	if item.SubscriptionID == nil {
		return true, nil
	}
	var sub db.Subscription
	err := s.db.WithContext(ctx).Select("id", "active").First(&sub, *item.SubscriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Active, nil
}

// Profile returns the subscription's quality profile, or fallback when it
// has none.
func Profile(sub db.Subscription, fallback quality.Profile) (quality.Profile, error) {
	if sub.QualityProfile == nil {
		return fallback, nil
	}
	return quality.FromModel(*sub.QualityProfile)
}
