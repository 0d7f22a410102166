package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/jobs"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/search"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scenarr.db")
	body := fmt.Sprintf(`
[database]
path = %q

[logging]
level = "error"

[library]
path = %q
`, dbPath, filepath.Join(dir, "library"))
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dbPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueListEmpty(t *testing.T) {
	configPath, _ := writeConfig(t)

	out, err := runCLI(t, "--config", configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list returned error: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestQueueListShowsItems(t *testing.T) {
	configPath, dbPath := writeConfig(t)

	database, err := db.Initialize(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("db.Initialize: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	store := queue.NewStore(database, nil, zerolog.Nop())
	item := &db.QueueItem{SceneID: "s1", Title: "Morning Light", Quality: "1080p", Size: 1 << 30, ContentHash: "aa"}
	if err := store.Accept(context.Background(), item); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}

	out, err := runCLI(t, "--config", configPath, "queue", "list", "--status", "queued")
	if err != nil {
		t.Fatalf("queue list returned error: %v", err)
	}
	for _, want := range []string{"Morning Light", "queued", "1.0 GiB", "0.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[client]\ntype = \"transmission\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCLI(t, "--config", path, "queue", "list"); err == nil {
		t.Fatal("expected an unsupported client type to fail")
	}
}

func TestRenderSceneResult(t *testing.T) {
	release := indexer.Release{Title: "Brightside.Morning.Light.1080p", Indexer: "alpha", Quality: "1080p", Size: 2 << 30, Seeders: 7}
	result := jobs.SceneResult{
		Outcome: search.SceneOutcome{
			Scene:     metadata.Scene{ID: "s1", Title: "Morning Light"},
			Ranked:    []indexer.Release{release},
			Selected:  &search.Accepted{Release: release},
			Raw:       4,
			Validated: 1,
		},
	}

	out := renderSceneResult(result, true)
	for _, want := range []string{"Morning Light (s1)", "4 found, 1 matched", "2.0 GiB", "Would queue: Brightside.Morning.Light.1080p"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	result.Item = &db.QueueItem{AddedAt: time.Now()}
	result.Reason = "scene already has an active queue item"
	out = renderSceneResult(result, false)
	if !strings.Contains(out, "Not queued: scene already has an active queue item") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
