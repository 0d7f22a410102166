package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/scenarr/scenarr/internal/downloader"
)

// FakeClient is a scriptable in-memory torrent client.
type FakeClient struct {
	mu       sync.Mutex
	torrents []downloader.ActiveTorrent

	// SubmitErr makes every Submit fail.
	SubmitErr error
	// ListErr makes every ListActive fail.
	ListErr error
	// Register controls whether submissions appear in ListActive.
	Register bool
	// HideHash makes Submit return an empty hash, like a URL add on qBittorrent.
	HideHash bool

	Submitted  []downloader.Submission
	Priorities map[string]downloader.Priority
	Paused     []string
	Resumed    []string
	Deleted    []string
	Limits     [2]int64
	nextHash   int
}

// NewFakeClient returns a client that registers submissions immediately.
func NewFakeClient(torrents ...downloader.ActiveTorrent) *FakeClient {
	return &FakeClient{
		torrents:   torrents,
		Register:   true,
		Priorities: make(map[string]downloader.Priority),
	}
}

func (f *FakeClient) Type() string                   { return "fake" }
func (f *FakeClient) Test(ctx context.Context) error { return nil }

// SetTorrents replaces what ListActive reports.
func (f *FakeClient) SetTorrents(torrents ...downloader.ActiveTorrent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents = torrents
}

func (f *FakeClient) ListActive(ctx context.Context) ([]downloader.ActiveTorrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]downloader.ActiveTorrent(nil), f.torrents...), nil
}

func (f *FakeClient) Submit(ctx context.Context, s downloader.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submitted = append(f.Submitted, s)
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}

	f.nextHash++
	hash := fmt.Sprintf("%040x", f.nextHash)
	if f.Register {
		f.torrents = append(f.torrents, downloader.ActiveTorrent{
			Hash:  hash,
			Name:  s.Name,
			State: downloader.StateQueued,
		})
	}
	if f.HideHash {
		return "", nil
	}
	return hash, nil
}

func (f *FakeClient) SetPriority(ctx context.Context, hash string, p downloader.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Priorities[hash] = p
	return nil
}

func (f *FakeClient) Pause(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Paused = append(f.Paused, hash)
	return nil
}

func (f *FakeClient) Resume(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resumed = append(f.Resumed, hash)
	return nil
}

func (f *FakeClient) Delete(ctx context.Context, hash string, keepFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, hash)
	return nil
}

func (f *FakeClient) SetGlobalThroughputLimits(ctx context.Context, downKiB, upKiB int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Limits = [2]int64{downKiB, upKiB}
	return nil
}
