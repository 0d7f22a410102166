package testsupport

import (
	"context"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/metadata"
)

// FakeProvider serves scenes from memory.
type FakeProvider struct {
	Scenes   map[string]metadata.Scene
	ByEntity map[string][]metadata.Scene
	PerPage  int
	Err      error
	Calls    int
}

// NewFakeProvider indexes scenes by id.
func NewFakeProvider(scenes ...metadata.Scene) *FakeProvider {
	p := &FakeProvider{
		Scenes:   make(map[string]metadata.Scene),
		ByEntity: make(map[string][]metadata.Scene),
		PerPage:  25,
	}
	for _, s := range scenes {
		p.Scenes[s.ID] = s
	}
	return p
}

func (p *FakeProvider) SceneByID(ctx context.Context, id string) (metadata.Scene, error) {
	p.Calls++
	if p.Err != nil {
		return metadata.Scene{}, p.Err
	}
	s, ok := p.Scenes[id]
	if !ok {
		return metadata.Scene{}, metadata.ErrNotFound
	}
	return s, nil
}

func (p *FakeProvider) ScenesForEntity(ctx context.Context, kind db.SubscriptionKind, id string, page int) ([]metadata.Scene, metadata.Pagination, error) {
	p.Calls++
	if p.Err != nil {
		return nil, metadata.Pagination{}, p.Err
	}
	all := p.ByEntity[id]
	pagination := metadata.Pagination{Page: page, PerPage: p.PerPage, Total: len(all)}
	start := (page - 1) * p.PerPage
	if start >= len(all) || start < 0 {
		return nil, pagination, nil
	}
	end := min(start+p.PerPage, len(all))
	return all[start:end], pagination, nil
}
