package db

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SubscriptionKind distinguishes what a subscription follows
type SubscriptionKind string

const (
	KindPerformer SubscriptionKind = "performer"
	KindStudio    SubscriptionKind = "studio"
	KindScene     SubscriptionKind = "scene"
)

// QueueStatus is the lifecycle state of a queue item
type QueueStatus string

const (
	StatusQueued      QueueStatus = "queued"
	StatusDownloading QueueStatus = "downloading"
	StatusPaused      QueueStatus = "paused"
	StatusCompleted   QueueStatus = "completed"
	StatusFailed      QueueStatus = "failed"
	StatusAddFailed   QueueStatus = "add_failed"
)

// Active reports whether the status counts toward the one-item-per-scene rule.
func (s QueueStatus) Active() bool {
	return s == StatusQueued || s == StatusDownloading || s == StatusPaused
}

// Terminal reports whether no further transitions are allowed.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActiveStatuses lists the non-terminal statuses that hold a scene slot.
var ActiveStatuses = []QueueStatus{StatusQueued, StatusDownloading, StatusPaused}

// Scene caches scene metadata fetched from the metadata provider
type Scene struct {
	gorm.Model
	ExternalID  string `gorm:"uniqueIndex"`
	Title       string `gorm:"index"`
	ReleaseDate *time.Time
	Performers  string `gorm:"type:text"` // JSON array of performer names
	Studio      string
	CachedAt    *time.Time
}

// PerformerNames decodes the performer list.
func (s Scene) PerformerNames() []string {
	if s.Performers == "" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(s.Performers), &names); err != nil {
		return nil
	}
	return names
}

// SetPerformerNames encodes the performer list.
func (s *Scene) SetPerformerNames(names []string) {
	if len(names) == 0 {
		s.Performers = ""
		return
	}
	data, _ := json.Marshal(names)
	s.Performers = string(data)
}

// Subscription is a followed performer, studio or single scene
type Subscription struct {
	gorm.Model
	Kind       SubscriptionKind `gorm:"index"`
	ExternalID string           `gorm:"index"`
	Name       string
	Aliases    string `gorm:"type:text"` // JSON array
	Active     bool   `gorm:"default:true"`

	QualityProfileID *uint
	QualityProfile   *QualityProfile

	LastSearchedAt *time.Time
}

// AliasList decodes the alias list.
func (s Subscription) AliasList() []string {
	if s.Aliases == "" {
		return nil
	}
	var aliases []string
	if err := json.Unmarshal([]byte(s.Aliases), &aliases); err != nil {
		return nil
	}
	return aliases
}

// QualityProfile stores an ordered rule list as JSON
type QualityProfile struct {
	gorm.Model
	Name      string `gorm:"uniqueIndex"`
	Rules     string `gorm:"type:text"`
	IsDefault bool   `gorm:"default:false"`
}

// QueueItem tracks one accepted release through its download lifecycle
type QueueItem struct {
	gorm.Model
	SceneID        string `gorm:"index"` // metadata provider scene id, or placeholder:<key>
	SubscriptionID *uint  `gorm:"index"`
	Placeholder    bool   `gorm:"default:false"`

	ContentHash string  `gorm:"index"`
	ClientHash  *string `gorm:"index"`
	Title       string
	DownloadURL string
	Indexer     string
	Size        int64
	Seeders     int
	Quality     string
	Source      string

	Status    QueueStatus `gorm:"index;default:'queued'"`
	Progress  float64
	Attempts  int `gorm:"default:0"`
	LastError string

	AddedAt     time.Time
	CompletedAt *time.Time
}

// Hash returns the client hash when known, else the content hash.
func (q QueueItem) Hash() string {
	if q.ClientHash != nil && *q.ClientHash != "" {
		return *q.ClientHash
	}
	return q.ContentHash
}
