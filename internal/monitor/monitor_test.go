package monitor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/downloader"
	"github.com/scenarr/scenarr/internal/handoff"
	"github.com/scenarr/scenarr/internal/monitor"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/testsupport"
)

var policy = monitor.StallPolicy{MinSeeders: 2, MinThroughputKiB: 10}

func TestIsStalled(t *testing.T) {
	tests := []struct {
		name    string
		torrent downloader.ActiveTorrent
		want    bool
	}{
		{
			name:    "no seeders",
			torrent: downloader.ActiveTorrent{State: downloader.StateDownloading, Seeders: 0, Throughput: 0, Progress: 0.1},
			want:    true,
		},
		{
			name:    "healthy",
			torrent: downloader.ActiveTorrent{State: downloader.StateDownloading, Seeders: 5, Throughput: 50 * 1024, Progress: 0.4},
			want:    false,
		},
		{
			name:    "downloading without throughput",
			torrent: downloader.ActiveTorrent{State: downloader.StateDownloading, Seeders: 5, Throughput: 0, Progress: 0.4},
			want:    true,
		},
		{
			name:    "few seeders and slow",
			torrent: downloader.ActiveTorrent{State: downloader.StateDownloading, Seeders: 1, Throughput: 5 * 1024, Progress: 0.4},
			want:    true,
		},
		{
			name:    "few seeders but fast",
			torrent: downloader.ActiveTorrent{State: downloader.StateDownloading, Seeders: 1, Throughput: 50 * 1024, Progress: 0.4},
			want:    false,
		},
		{
			name:    "queued without throughput",
			torrent: downloader.ActiveTorrent{State: downloader.StateQueued, Seeders: 5, Throughput: 0, Progress: 0},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.IsStalled(tt.torrent); got != tt.want {
				t.Fatalf("IsStalled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newStore(t *testing.T) (*queue.Store, *handoff.Importer, string) {
	t.Helper()
	database := testsupport.NewDB(t)
	library := t.TempDir()
	return queue.NewStore(database, nil, zerolog.Nop()),
		handoff.NewImporter(database, library, handoff.OpCopy, zerolog.Nop()),
		library
}

func accept(t *testing.T, store *queue.Store, sceneID, hash, title string) db.QueueItem {
	t.Helper()
	item := db.QueueItem{SceneID: sceneID, ContentHash: hash, Title: title}
	if err := store.Accept(context.Background(), &item); err != nil {
		t.Fatalf("accept %s: %v", sceneID, err)
	}
	return item
}

func status(t *testing.T, store *queue.Store, id uint) db.QueueItem {
	t.Helper()
	item, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %d: %v", id, err)
	}
	return item
}

func TestPollPausesStalledDownload(t *testing.T) {
	store, importer, _ := newStore(t)
	ctx := context.Background()
	item := accept(t, store, "s1", "aaa", "Stalled")
	if _, err := store.Transition(ctx, item.ID, db.StatusDownloading, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	client := testsupport.NewFakeClient(downloader.ActiveTorrent{
		Hash: "aaa", State: downloader.StateDownloading, Seeders: 0, Progress: 0.2,
	})
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	report, err := mon.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if report.Stalled != 1 {
		t.Fatalf("expected one stall, got %+v", report)
	}

	got := status(t, store, item.ID)
	if got.Status != db.StatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if got.Progress != 0.2 {
		t.Fatalf("expected progress to be recorded, got %v", got.Progress)
	}
	if client.Priorities["aaa"] != downloader.PriorityBottom {
		t.Fatal("expected stalled torrent to be moved to the bottom")
	}
	if len(client.Paused) != 1 || client.Paused[0] != "aaa" {
		t.Fatalf("expected client pause, got %v", client.Paused)
	}
}

func TestPollFollowsClientState(t *testing.T) {
	store, importer, _ := newStore(t)
	ctx := context.Background()
	item := accept(t, store, "s1", "aaa", "Cycle")

	healthy := downloader.ActiveTorrent{Hash: "aaa", State: downloader.StateDownloading, Seeders: 8, Throughput: 200 * 1024, Progress: 0.1}
	client := testsupport.NewFakeClient(healthy)
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	steps := []struct {
		state downloader.TorrentState
		want  db.QueueStatus
	}{
		{downloader.StateDownloading, db.StatusDownloading},
		{downloader.StatePaused, db.StatusPaused},
		{downloader.StateDownloading, db.StatusDownloading},
	}
	for i, step := range steps {
		torrent := healthy
		torrent.State = step.state
		client.SetTorrents(torrent)
		if _, err := mon.Poll(ctx); err != nil {
			t.Fatalf("step %d: Poll returned error: %v", i, err)
		}
		if got := status(t, store, item.ID).Status; got != step.want {
			t.Fatalf("step %d: status %s, want %s", i, got, step.want)
		}
	}
	if len(client.Paused) != 0 {
		t.Fatal("a healthy torrent must not be paused")
	}
}

func TestPollCompletesThroughHandoff(t *testing.T) {
	store, importer, library := newStore(t)
	ctx := context.Background()
	item := accept(t, store, "placeholder:morning light", "aaa", "Morning Light")

	payload := filepath.Join(t.TempDir(), "morning.light.mp4")
	testsupport.WriteFile(t, payload, 512)

	client := testsupport.NewFakeClient(downloader.ActiveTorrent{
		Hash: "aaa", State: downloader.StateSeeding, Seeders: 3, Progress: 1, ContentPath: payload,
	})
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	report, err := mon.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if report.Completed != 1 {
		t.Fatalf("expected completion, got %+v", report)
	}

	got := status(t, store, item.ID)
	if got.Status != db.StatusCompleted || got.CompletedAt == nil || got.Progress != 1 {
		t.Fatalf("unexpected item after completion: %+v", got)
	}
	if got.ClientHash == nil || *got.ClientHash != "aaa" {
		t.Fatal("expected client hash to be recorded")
	}
	if _, err := os.Stat(filepath.Join(library, handoff.UnsortedFolder, "Morning Light", "morning.light.mp4")); err != nil {
		t.Fatalf("expected payload in library: %v", err)
	}
}

func TestPollHandoffFailureFailsItem(t *testing.T) {
	store, importer, _ := newStore(t)
	ctx := context.Background()
	item := accept(t, store, "s1", "aaa", "Gone")

	client := testsupport.NewFakeClient(downloader.ActiveTorrent{
		Hash: "aaa", State: downloader.StateSeeding, Seeders: 3, Progress: 1,
		ContentPath: filepath.Join(t.TempDir(), "missing.mp4"),
	})
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	if _, err := mon.Poll(ctx); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	got := status(t, store, item.ID)
	if got.Status != db.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.HasPrefix(got.LastError, "handoff:") {
		t.Fatalf("expected handoff error, got %q", got.LastError)
	}
	if got.Attempts != 0 {
		t.Fatal("a handoff failure is not a submission attempt")
	}
}

func TestPollMatchesUnhashedItemByName(t *testing.T) {
	store, importer, _ := newStore(t)
	ctx := context.Background()
	item := accept(t, store, "s1", "", "Jane.Doe.Morning.Light.1080p")

	client := testsupport.NewFakeClient(downloader.ActiveTorrent{
		Hash: "fff", Name: "Jane Doe - Morning Light 1080p", State: downloader.StateQueued, Seeders: 4,
	})
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	if _, err := mon.Poll(ctx); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	got := status(t, store, item.ID)
	if got.ClientHash == nil || *got.ClientHash != "fff" {
		t.Fatalf("expected client hash from name match, got %+v", got.ClientHash)
	}
	if got.Status != db.StatusQueued {
		t.Fatalf("expected item to stay queued, got %s", got.Status)
	}
}

func TestPollClientError(t *testing.T) {
	store, importer, _ := newStore(t)
	client := testsupport.NewFakeClient()
	client.ListErr = errors.New("connection refused")
	mon := monitor.New(store, client, importer, policy, 0, zerolog.Nop())

	if _, err := mon.Poll(context.Background()); err == nil {
		t.Fatal("expected client error to surface")
	}
}
