package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/scenarr/scenarr/internal/db"
)

// ErrNotFound is returned when the provider has no record for an id.
var ErrNotFound = errors.New("metadata: not found")

// Scene is the read-only scene record consumed by the matchers.
type Scene struct {
	ID          string
	Title       string
	ReleaseDate *time.Time
	Performers  []string
	Studio      string
}

// Pagination describes one page of an entity scene listing.
type Pagination struct {
	Page    int
	PerPage int
	Total   int
}

// HasMore reports whether another page exists after this one.
func (p Pagination) HasMore() bool {
	return p.Page*p.PerPage < p.Total
}

// Provider is the scene metadata source.
type Provider interface {
	SceneByID(ctx context.Context, id string) (Scene, error)
	ScenesForEntity(ctx context.Context, kind db.SubscriptionKind, id string, page int) ([]Scene, Pagination, error)
}

// FromModel converts a cached row into a Scene.
func FromModel(m db.Scene) Scene {
	return Scene{
		ID:          m.ExternalID,
		Title:       m.Title,
		ReleaseDate: m.ReleaseDate,
		Performers:  m.PerformerNames(),
		Studio:      m.Studio,
	}
}

// ToModel converts a Scene into a cache row.
func ToModel(s Scene) db.Scene {
	m := db.Scene{
		ExternalID:  s.ID,
		Title:       s.Title,
		ReleaseDate: s.ReleaseDate,
		Studio:      s.Studio,
	}
	m.SetPerformerNames(s.Performers)
	return m
}
