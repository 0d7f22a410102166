package testsupport

import (
	"context"
	"sync"

	"github.com/scenarr/scenarr/internal/indexer"
)

// FakeIndexer returns canned releases per search term.
type FakeIndexer struct {
	IndexerName string
	Results     map[string][]indexer.Release
	Err         error

	mu    sync.Mutex
	Terms []string
}

// NewFakeIndexer builds an indexer that answers every term with releases.
func NewFakeIndexer(name string, releases ...indexer.Release) *FakeIndexer {
	for i := range releases {
		releases[i].Indexer = name
	}
	return &FakeIndexer{IndexerName: name, Results: map[string][]indexer.Release{"*": releases}}
}

func (f *FakeIndexer) Name() string { return f.IndexerName }

func (f *FakeIndexer) Search(ctx context.Context, term string) ([]indexer.Release, error) {
	f.mu.Lock()
	f.Terms = append(f.Terms, term)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if results, ok := f.Results[term]; ok {
		return results, nil
	}
	return f.Results["*"], nil
}

func (f *FakeIndexer) Test(ctx context.Context) error { return f.Err }
