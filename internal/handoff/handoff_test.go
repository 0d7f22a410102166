package handoff_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
	"github.com/scenarr/scenarr/internal/handoff"
	"github.com/scenarr/scenarr/internal/testsupport"
)

func TestCompleteSingleFileUsesStudioFolder(t *testing.T) {
	database := testsupport.NewDB(t)
	if err := database.Create(&db.Scene{ExternalID: "s1", Title: "Morning: Light", Studio: "Bright Side"}).Error; err != nil {
		t.Fatalf("seed scene: %v", err)
	}

	downloads := t.TempDir()
	library := t.TempDir()
	source := filepath.Join(downloads, "morning.light.1080p.mp4")
	testsupport.WriteFile(t, source, 1024)

	importer := handoff.NewImporter(database, library, handoff.OpHardlink, zerolog.Nop())
	item := db.QueueItem{SceneID: "s1", Title: "Jane Doe - Morning Light 1080p"}
	dest, err := importer.Complete(context.Background(), item, downloader.ActiveTorrent{Hash: "h", ContentPath: source})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	want := filepath.Join(library, "Bright Side", "Morning - Light")
	if dest != want {
		t.Fatalf("unexpected destination: got %q want %q", dest, want)
	}
	if _, err := os.Stat(filepath.Join(want, "morning.light.1080p.mp4")); err != nil {
		t.Fatalf("expected imported file: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatal("hardlink must leave the seeding copy in place")
	}

	if _, err := importer.Complete(context.Background(), item, downloader.ActiveTorrent{Hash: "h", ContentPath: source}); !errors.Is(err, handoff.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
}

func TestCompleteFolderMovesPlaceholderToUnsorted(t *testing.T) {
	database := testsupport.NewDB(t)
	downloads := t.TempDir()
	library := t.TempDir()

	payload := filepath.Join(downloads, "Unknown.Scene.1080p")
	testsupport.WriteFile(t, filepath.Join(payload, "video.mkv"), 2048)
	testsupport.WriteFile(t, filepath.Join(payload, "extras", "thumb.jpg"), 16)

	importer := handoff.NewImporter(database, library, handoff.OpMove, zerolog.Nop())
	item := db.QueueItem{SceneID: "placeholder:unknown scene", Placeholder: true, Title: "Unknown Scene"}
	dest, err := importer.Complete(context.Background(), item, downloader.ActiveTorrent{
		Hash:     "h",
		Name:     "Unknown.Scene.1080p",
		SavePath: downloads,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if dest != filepath.Join(library, handoff.UnsortedFolder, "Unknown Scene") {
		t.Fatalf("unexpected destination: %q", dest)
	}
	for _, rel := range []string{"video.mkv", filepath.Join("extras", "thumb.jpg")} {
		if _, err := os.Stat(filepath.Join(dest, rel)); err != nil {
			t.Fatalf("expected %s in library: %v", rel, err)
		}
	}
	if _, err := os.Stat(payload); !os.IsNotExist(err) {
		t.Fatalf("expected move to clear the download folder, got %v", err)
	}
}

func TestCompleteMissingPayload(t *testing.T) {
	importer := handoff.NewImporter(testsupport.NewDB(t), t.TempDir(), handoff.OpCopy, zerolog.Nop())
	_, err := importer.Complete(context.Background(), db.QueueItem{Title: "x"}, downloader.ActiveTorrent{Hash: "h", ContentPath: "/does/not/exist"})
	if err == nil {
		t.Fatal("expected an error for a missing payload")
	}
}
