package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/config"
	"github.com/scenarr/scenarr/internal/textnorm"
)

// ErrRegistrationTimeout is returned when a submitted release never shows up
// in the client before the deadline.
var ErrRegistrationTimeout = errors.New("torrent was not registered by the client in time")

// TorrentState is the client-independent torrent state
type TorrentState string

const (
	StateQueued      TorrentState = "queued"
	StateDownloading TorrentState = "downloading"
	StatePaused      TorrentState = "paused"
	StateSeeding     TorrentState = "seeding"
	StateError       TorrentState = "error"
	StateUnknown     TorrentState = "unknown"
)

// Downloading reports whether the client is actively fetching data.
func (s TorrentState) Downloading() bool {
	return s == StateDownloading
}

// Priority is a queue position request.
type Priority string

const (
	PriorityTop    Priority = "top"
	PriorityBottom Priority = "bottom"
)

// ActiveTorrent is one torrent as reported by the client.
type ActiveTorrent struct {
	Hash       string
	Name       string
	Size       int64
	Progress   float64 // 0..1
	Throughput int64   // download bytes/s
	Seeders    int
	State      TorrentState
	SavePath   string
	// ContentPath is the file or directory holding the payload, when the client reports it.
	ContentPath string
}

// Complete reports whether every byte has been downloaded.
func (t ActiveTorrent) Complete() bool {
	return t.Progress >= 1
}

// Submission is what gets handed to the client.
type Submission struct {
	// URL is a magnet link or a .torrent download URL.
	URL string
	// Torrent is a raw .torrent payload. It takes precedence over URL.
	Torrent  []byte
	Name     string
	Category string
	SavePath string
	Paused   bool
}

// TorrentClient is the interface that all torrent clients must implement
type TorrentClient interface {
	Type() string
	Test(ctx context.Context) error
	ListActive(ctx context.Context) ([]ActiveTorrent, error)
	// Submit adds a torrent and returns its hash when the client or the
	// payload reveals it, otherwise an empty string.
	Submit(ctx context.Context, s Submission) (string, error)
	SetPriority(ctx context.Context, hash string, p Priority) error
	Pause(ctx context.Context, hash string) error
	Resume(ctx context.Context, hash string) error
	Delete(ctx context.Context, hash string, keepFiles bool) error
	// SetGlobalThroughputLimits applies client-wide limits in KiB/s. Zero means unlimited.
	SetGlobalThroughputLimits(ctx context.Context, downKiB, upKiB int64) error
}

// NewClient creates a torrent client from configuration
func NewClient(cfg config.Client, logger zerolog.Logger) (TorrentClient, error) {
	switch cfg.Type {
	case "qbittorrent":
		return NewQBittorrentClient(cfg.URL, cfg.Username, cfg.Password, cfg.Category), nil
	case "deluge":
		return NewDelugeClient(cfg.URL, cfg.Password, cfg.Category), nil
	default:
		logger.Error().Str("type", cfg.Type).Msg("unsupported torrent client")
		return nil, fmt.Errorf("unsupported client type: %s", cfg.Type)
	}
}

// Find returns the torrent with the given hash.
func Find(torrents []ActiveTorrent, hash string) (ActiveTorrent, bool) {
	for _, t := range torrents {
		if strings.EqualFold(t.Hash, hash) {
			return t, true
		}
	}
	return ActiveTorrent{}, false
}

// MatchSubmission identifies a just-submitted torrent by hash when known,
// otherwise by normalized name.
func MatchSubmission(hash, name string) func(ActiveTorrent) bool {
	want := textnorm.Text(name)
	return func(t ActiveTorrent) bool {
		if hash != "" {
			return strings.EqualFold(t.Hash, hash)
		}
		return want != "" && textnorm.Text(t.Name) == want
	}
}

// WaitForRegistration polls the client until match accepts one of its
// torrents or timeout elapses.
func WaitForRegistration(ctx context.Context, client TorrentClient, match func(ActiveTorrent) bool, timeout, interval time.Duration) (ActiveTorrent, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		torrents, err := client.ListActive(ctx)
		if err == nil {
			for _, t := range torrents {
				if match(t) {
					return t, nil
				}
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return ActiveTorrent{}, fmt.Errorf("%w: last error: %v", ErrRegistrationTimeout, lastErr)
			}
			return ActiveTorrent{}, ErrRegistrationTimeout
		case <-ticker.C:
		}
	}
}
