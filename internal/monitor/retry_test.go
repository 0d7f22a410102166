package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/monitor"
	"github.com/scenarr/scenarr/internal/queue"
)

type fakeSubmitter struct {
	err   error
	calls []uint
}

func (f *fakeSubmitter) Submit(ctx context.Context, item db.QueueItem) (string, error) {
	f.calls = append(f.calls, item.ID)
	if f.err != nil {
		return "", f.err
	}
	return "client-" + item.SceneID, nil
}

type wantedSet map[string]bool

func (w wantedSet) StillWanted(ctx context.Context, item db.QueueItem) (bool, error) {
	return w[item.SceneID], nil
}

var retryPolicy = monitor.RetryPolicy{MaxAttempts: 5, ShortBatch: 2}

func addFailed(t *testing.T, store *queue.Store, sceneID string, attempts int) db.QueueItem {
	t.Helper()
	ctx := context.Background()
	item := accept(t, store, sceneID, "hash-"+sceneID, "Title "+sceneID)
	if _, err := store.Transition(ctx, item.ID, db.StatusAddFailed, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	for i := 0; i < attempts; i++ {
		if _, err := store.IncrementAttempts(ctx, item.ID, "connection refused"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	return status(t, store, item.ID)
}

func TestRetryExcludesItemsAtCeiling(t *testing.T) {
	store, _, _ := newStore(t)
	exhausted := addFailed(t, store, "s1", 5)
	pending := addFailed(t, store, "s2", 4)

	submitter := &fakeSubmitter{}
	retrier := monitor.NewRetrier(store, submitter, nil, retryPolicy, zerolog.Nop())

	report, err := retrier.Run(context.Background(), monitor.CadenceLong)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Exhausted != 1 || report.Resubmitted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(submitter.calls) != 1 || submitter.calls[0] != pending.ID {
		t.Fatalf("expected only the item under the ceiling to be retried, got %v", submitter.calls)
	}

	if got := status(t, store, exhausted.ID); got.Status != db.StatusFailed || got.Attempts != 5 {
		t.Fatalf("expected exhausted item failed with attempts kept, got %s/%d", got.Status, got.Attempts)
	}
	got := status(t, store, pending.ID)
	if got.Status != db.StatusQueued {
		t.Fatalf("expected resubmitted item queued, got %s", got.Status)
	}
	if got.Attempts != 5 {
		t.Fatalf("expected retry to count as an attempt, got %d", got.Attempts)
	}
	if got.ClientHash == nil || *got.ClientHash != "client-s2" {
		t.Fatal("expected client hash from resubmission")
	}
}

func TestRetryFailureCountsAttempt(t *testing.T) {
	store, _, _ := newStore(t)
	item := addFailed(t, store, "s1", 4)

	submitter := &fakeSubmitter{err: errors.New("client unreachable")}
	retrier := monitor.NewRetrier(store, submitter, nil, retryPolicy, zerolog.Nop())
	ctx := context.Background()

	report, err := retrier.Run(ctx, monitor.CadenceShort)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	got := status(t, store, item.ID)
	if got.Status != db.StatusAddFailed || got.Attempts != 5 || got.LastError != "client unreachable" {
		t.Fatalf("unexpected item after failed retry: %+v", got)
	}

	report, err = retrier.Run(ctx, monitor.CadenceShort)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if report.Exhausted != 1 || len(submitter.calls) != 1 {
		t.Fatalf("expected the item to be failed without another submission, report %+v calls %v", report, submitter.calls)
	}
	if got := status(t, store, item.ID); got.Status != db.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestRetrySkipsUnwantedScenes(t *testing.T) {
	store, _, _ := newStore(t)
	dropped := addFailed(t, store, "s1", 1)
	kept := addFailed(t, store, "s2", 1)

	submitter := &fakeSubmitter{}
	retrier := monitor.NewRetrier(store, submitter, wantedSet{"s2": true}, retryPolicy, zerolog.Nop())

	report, err := retrier.Run(context.Background(), monitor.CadenceLong)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Skipped != 1 || report.Resubmitted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := status(t, store, dropped.ID); got.Status != db.StatusAddFailed || got.Attempts != 1 {
		t.Fatalf("skipped item must be left untouched, got %s/%d", got.Status, got.Attempts)
	}
	if got := status(t, store, kept.ID); got.Status != db.StatusQueued {
		t.Fatalf("expected wanted item requeued, got %s", got.Status)
	}
}

func TestRetryShortCadenceBatch(t *testing.T) {
	store, _, _ := newStore(t)
	for _, id := range []string{"s1", "s2", "s3"} {
		addFailed(t, store, id, 0)
	}

	submitter := &fakeSubmitter{err: errors.New("down")}
	retrier := monitor.NewRetrier(store, submitter, nil, retryPolicy, zerolog.Nop())

	if _, err := retrier.Run(context.Background(), monitor.CadenceShort); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(submitter.calls) != retryPolicy.ShortBatch {
		t.Fatalf("expected %d submissions, got %d", retryPolicy.ShortBatch, len(submitter.calls))
	}

	submitter.calls = nil
	if _, err := retrier.Run(context.Background(), monitor.CadenceLong); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(submitter.calls) != 3 {
		t.Fatalf("expected the long cadence to drain all candidates, got %d", len(submitter.calls))
	}
}

type slowSubmitter struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (s *slowSubmitter) Submit(ctx context.Context, item db.QueueItem) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	time.Sleep(s.delay)
	return "client-" + item.SceneID, nil
}

func TestRetryCadencesDoNotOverlap(t *testing.T) {
	store, _, _ := newStore(t)
	item := addFailed(t, store, "s1", 1)

	submitter := &slowSubmitter{delay: 100 * time.Millisecond}
	retrier := monitor.NewRetrier(store, submitter, nil, retryPolicy, zerolog.Nop())

	var wg sync.WaitGroup
	for _, cadence := range []monitor.Cadence{monitor.CadenceShort, monitor.CadenceLong} {
		wg.Add(1)
		go func(c monitor.Cadence) {
			defer wg.Done()
			if _, err := retrier.Run(context.Background(), c); err != nil {
				t.Errorf("Run(%s) returned error: %v", c, err)
			}
		}(cadence)
	}
	wg.Wait()

	if submitter.calls != 1 {
		t.Fatalf("expected one submission, got %d", submitter.calls)
	}
	got := status(t, store, item.ID)
	if got.Attempts != 2 || got.Status != db.StatusQueued {
		t.Fatalf("expected one counted retry, got %s with %d attempts", got.Status, got.Attempts)
	}
}
