package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/testsupport"
)

type recorder struct {
	changes []db.QueueStatus
}

func (r *recorder) QueueChanged(item db.QueueItem, from db.QueueStatus) {
	r.changes = append(r.changes, item.Status)
}

func newStore(t *testing.T) (*queue.Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	return queue.NewStore(testsupport.NewDB(t), rec, zerolog.Nop()), rec
}

func TestAcceptDeduplicatesByHash(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()

	first := &db.QueueItem{SceneID: "s1", ContentHash: "aaaa", Title: "One"}
	if err := store.Accept(ctx, first); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	second := &db.QueueItem{SceneID: "s2", ContentHash: "aaaa", Title: "One again"}
	if err := store.Accept(ctx, second); !errors.Is(err, queue.ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}

	items, total, err := store.List(ctx, queue.ListOptions{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected exactly one item, got %d", total)
	}
	if items[0].Status != db.StatusQueued || items[0].AddedAt.IsZero() {
		t.Fatalf("unexpected item: %+v", items[0])
	}
	if len(rec.changes) != 1 {
		t.Fatalf("expected one notification, got %d", len(rec.changes))
	}
}

func TestAcceptOneActiveItemPerScene(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	item := &db.QueueItem{SceneID: "s1", ContentHash: "aaaa"}
	if err := store.Accept(ctx, item); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if err := store.Accept(ctx, &db.QueueItem{SceneID: "s1", ContentHash: "bbbb"}); !errors.Is(err, queue.ErrDuplicateScene) {
		t.Fatalf("expected ErrDuplicateScene, got %v", err)
	}

	if _, err := store.Transition(ctx, item.ID, db.StatusFailed, nil); err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if err := store.Accept(ctx, &db.QueueItem{SceneID: "s1", ContentHash: "aaaa"}); err != nil {
		t.Fatalf("expected a terminal item to free the scene, got %v", err)
	}
}

func TestTransitionRules(t *testing.T) {
	store, rec := newStore(t)
	ctx := context.Background()

	item := &db.QueueItem{SceneID: "s1", ContentHash: "aaaa"}
	if err := store.Accept(ctx, item); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}

	steps := []db.QueueStatus{db.StatusDownloading, db.StatusPaused, db.StatusDownloading, db.StatusCompleted}
	for _, to := range steps {
		if _, err := store.Transition(ctx, item.ID, to, nil); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.CompletedAt == nil || got.Progress != 1 {
		t.Fatalf("expected completion timestamp and full progress, got %+v", got)
	}

	if _, err := store.Transition(ctx, item.ID, db.StatusDownloading, nil); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected terminal status to reject transitions, got %v", err)
	}
	if _, err := store.Transition(ctx, 9999, db.StatusFailed, nil); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(rec.changes) != 1+len(steps) {
		t.Fatalf("expected %d notifications, got %d", 1+len(steps), len(rec.changes))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to db.QueueStatus
		want     bool
	}{
		{db.StatusQueued, db.StatusDownloading, true},
		{db.StatusDownloading, db.StatusPaused, true},
		{db.StatusPaused, db.StatusDownloading, true},
		{db.StatusQueued, db.StatusAddFailed, true},
		{db.StatusAddFailed, db.StatusQueued, true},
		{db.StatusDownloading, db.StatusQueued, false},
		{db.StatusDownloading, db.StatusAddFailed, false},
		{db.StatusCompleted, db.StatusFailed, false},
		{db.StatusFailed, db.StatusQueued, false},
		{db.StatusPaused, db.StatusPaused, false},
	}
	for _, tt := range tests {
		if got := queue.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAttemptsAndRetryCandidates(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	fresh := &db.QueueItem{SceneID: "s1", ContentHash: "aaaa"}
	spent := &db.QueueItem{SceneID: "s2", ContentHash: "bbbb"}
	for _, item := range []*db.QueueItem{fresh, spent} {
		if err := store.Accept(ctx, item); err != nil {
			t.Fatalf("Accept returned error: %v", err)
		}
		if _, err := store.Transition(ctx, item.ID, db.StatusAddFailed, nil); err != nil {
			t.Fatalf("Transition returned error: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		if _, err := store.IncrementAttempts(ctx, spent.ID, "refused"); err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
	}
	got, err := store.IncrementAttempts(ctx, fresh.ID, "timeout")
	if err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}
	if got.Attempts != 1 || got.LastError != "timeout" {
		t.Fatalf("unexpected item: %+v", got)
	}

	candidates, err := store.RetryCandidates(ctx, 5, 10)
	if err != nil {
		t.Fatalf("RetryCandidates returned error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh item, got %+v", candidates)
	}

	exhausted, err := store.Exhausted(ctx, 5)
	if err != nil {
		t.Fatalf("Exhausted returned error: %v", err)
	}
	if len(exhausted) != 1 || exhausted[0].ID != spent.ID || exhausted[0].Attempts != 5 {
		t.Fatalf("expected the spent item, got %+v", exhausted)
	}

	if err := store.Accept(ctx, &db.QueueItem{SceneID: "s1", ContentHash: "cccc"}); !errors.Is(err, queue.ErrDuplicateScene) {
		t.Fatalf("expected an add_failed item to keep its scene, got %v", err)
	}
}

func TestSceneHasItemAndUpdate(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	has, err := store.SceneHasItem(ctx, "s1")
	if err != nil || has {
		t.Fatalf("expected no item, got %v %v", has, err)
	}
	item := &db.QueueItem{SceneID: "s1", ContentHash: "aaaa"}
	if err := store.Accept(ctx, item); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if has, _ := store.SceneHasItem(ctx, "s1"); !has {
		t.Fatal("expected scene to have an item")
	}

	hash := "ffff"
	updated, err := store.Update(ctx, item.ID, func(q *db.QueueItem) {
		q.ClientHash = &hash
		q.Progress = 0.5
		q.Status = db.StatusCompleted
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Hash() != "ffff" || updated.Progress != 0.5 {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.Status != db.StatusQueued {
		t.Fatalf("Update must not change status, got %s", updated.Status)
	}

	active, err := store.Active(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active item, got %d (%v)", len(active), err)
	}
}
