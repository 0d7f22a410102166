package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scenarr/scenarr/internal/db"
)

// SceneCacheDuration is how long a cached scene is served without a refresh.
const SceneCacheDuration = 7 * 24 * time.Hour

// Cached is a read-through cache of scenes in the Scene table.
type Cached struct {
	db       *gorm.DB
	provider Provider
	logger   zerolog.Logger
}

// NewCached wraps provider with a database cache.
func NewCached(database *gorm.DB, provider Provider, logger zerolog.Logger) *Cached {
	return &Cached{
		db:       database,
		provider: provider,
		logger:   logger.With().Str("component", "metadata").Logger(),
	}
}

// SceneByID serves a fresh cached row, else asks the provider and stores the answer.
// A stale row is returned when the provider is unreachable.
func (c *Cached) SceneByID(ctx context.Context, id string) (Scene, error) {
	var row db.Scene
	err := c.db.WithContext(ctx).Where("external_id = ?", id).First(&row).Error
	cached := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Scene{}, err
	}
	if cached && row.CachedAt != nil && time.Since(*row.CachedAt) < SceneCacheDuration {
		return FromModel(row), nil
	}

	scene, err := c.provider.SceneByID(ctx, id)
	if err != nil {
		if cached && !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("scene_id", id).Msg("provider unavailable, serving stale scene")
			return FromModel(row), nil
		}
		return Scene{}, err
	}
	c.store(ctx, []Scene{scene})
	return scene, nil
}

// ScenesForEntity always asks the provider and refreshes the cache with the page.
func (c *Cached) ScenesForEntity(ctx context.Context, kind db.SubscriptionKind, id string, page int) ([]Scene, Pagination, error) {
	scenes, pagination, err := c.provider.ScenesForEntity(ctx, kind, id, page)
	if err != nil {
		return nil, pagination, err
	}
	c.store(ctx, scenes)
	return scenes, pagination, nil
}

func (c *Cached) store(ctx context.Context, scenes []Scene) {
	if len(scenes) == 0 {
		return
	}
	now := time.Now()
	rows := make([]db.Scene, 0, len(scenes))
	for _, s := range scenes {
		row := ToModel(s)
		row.CachedAt = &now
		rows = append(rows, row)
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "release_date", "performers", "studio", "cached_at", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		c.logger.Warn().Err(err).Int("scenes", len(rows)).Msg("failed to cache scenes")
	}
}
