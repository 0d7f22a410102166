package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
)

// UnsortedFolder holds scenes without a known studio.
const UnsortedFolder = "Unsorted"

// Importer hands completed downloads over to the library.
type Importer struct {
	db          *gorm.DB
	fileOps     *FileOperator
	libraryPath string
	logger      zerolog.Logger
}

// NewImporter creates a new importer
func NewImporter(database *gorm.DB, libraryPath string, operation FileOperation, logger zerolog.Logger) *Importer {
	return &Importer{
		db:          database,
		fileOps:     NewFileOperator(operation),
		libraryPath: libraryPath,
		logger:      logger.With().Str("component", "handoff").Logger(),
	}
}

// Destination returns the library folder for a queue item:
// <library>/<studio or Unsorted>/<title>.
func (i *Importer) Destination(ctx context.Context, item db.QueueItem) string {
	studio := UnsortedFolder
	title := item.Title

	if !item.Placeholder {
		var scene db.Scene
		err := i.db.WithContext(ctx).Where("external_id = ?", item.SceneID).First(&scene).Error
		if err == nil {
			if s := sanitizeFilename(scene.Studio); s != "" {
				studio = s
			}
			if scene.Title != "" {
				title = scene.Title
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			i.logger.Warn().Err(err).Str("scene", item.SceneID).Msg("scene lookup failed, filing as unsorted")
		}
	}

	folder := sanitizeFilename(title)
	if folder == "" {
		folder = fmt.Sprintf("item-%d", item.ID)
	}
	return filepath.Join(i.libraryPath, studio, folder)
}

// Complete places the payload of torrent into the library and returns the
// destination folder.
func (i *Importer) Complete(ctx context.Context, item db.QueueItem, torrent downloader.ActiveTorrent) (string, error) {
	source := torrent.ContentPath
	if source == "" && torrent.SavePath != "" && torrent.Name != "" {
		source = filepath.Join(torrent.SavePath, torrent.Name)
	}
	if source == "" {
		return "", fmt.Errorf("client reported no payload path for %s", torrent.Hash)
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("payload not found: %w", err)
	}

	dest := i.Destination(ctx, item)
	if info.IsDir() {
		err = i.fileOps.ImportFolder(source, dest)
	} else {
		err = i.fileOps.ImportFile(source, filepath.Join(dest, filepath.Base(source)))
	}
	if err != nil {
		return "", fmt.Errorf("import %s: %w", item.Title, err)
	}

	i.logger.Info().
		Uint("id", item.ID).
		Str("source", source).
		Str("destination", dest).
		Str("operation", string(i.fileOps.operation)).
		Msg("payload imported")
	return dest, nil
}
