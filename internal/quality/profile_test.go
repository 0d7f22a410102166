package quality

import (
	"testing"

	"github.com/scenarr/scenarr/internal/config"
	"github.com/scenarr/scenarr/internal/indexer"
)

func TestSelectFallsThroughUnmetSeederFloor(t *testing.T) {
	profile := Profile{Rules: []Rule{
		NormalizeRule(Rule{Quality: "1080p", Source: "webdl", MinSeeders: 5}),
		NormalizeRule(Rule{Quality: "720p", Source: "any", MinSeeders: 0}),
	}}
	candidates := []indexer.Release{
		{Title: "a", Quality: "1080p", Source: "webdl", Seeders: 3},
		{Title: "b", Quality: "720p", Source: "webrip", Seeders: 10},
	}

	got, score, ok := profile.Select(candidates)
	if !ok {
		t.Fatal("expected a selection")
	}
	if got.Title != "b" || score.Rule != 1 {
		t.Fatalf("expected 720p release via rule 1, got %q rule %d", got.Title, score.Rule)
	}
}

func TestSelectTieBreaks(t *testing.T) {
	profile := Profile{Rules: []Rule{NormalizeRule(Rule{Quality: "1080p"})}}
	candidates := []indexer.Release{
		{Title: "low", Quality: "1080p", Seeders: 2},
		{Title: "first-high", Quality: "1080p", Seeders: 9},
		{Title: "second-high", Quality: "1080p", Seeders: 9},
	}
	for i := 0; i < 3; i++ {
		got, _, ok := profile.Select(candidates)
		if !ok || got.Title != "first-high" {
			t.Fatalf("run %d: expected first-high, got %q", i, got.Title)
		}
	}
}

func TestSelectMaxSizeAndNoMatch(t *testing.T) {
	profile := Profile{Rules: []Rule{NormalizeRule(Rule{Quality: "any", MaxSize: 100})}}
	if _, _, ok := profile.Select([]indexer.Release{{Title: "big", Size: 101}}); ok {
		t.Fatal("expected size ceiling to reject")
	}
	if got, _, ok := profile.Select([]indexer.Release{{Title: "small", Size: 100}}); !ok || got.Title != "small" {
		t.Fatalf("expected small release, got %q ok=%v", got.Title, ok)
	}
}

func TestNormalizeRuleLabels(t *testing.T) {
	r := NormalizeRule(Rule{Quality: "4K", Source: "WEB-DL"})
	if r.Quality != "2160p" || r.Source != "webdl" {
		t.Fatalf("unexpected normalized rule: %+v", r)
	}
	if r := NormalizeRule(Rule{}); r.Quality != Any || r.Source != Any {
		t.Fatalf("empty labels should become any: %+v", r)
	}
}

func TestRankOrdersByRuleThenSeeders(t *testing.T) {
	profile := Profile{Rules: []Rule{
		NormalizeRule(Rule{Quality: "1080p"}),
		NormalizeRule(Rule{Quality: "720p"}),
	}}
	ranked := profile.Rank([]indexer.Release{
		{Title: "720-hi", Quality: "720p", Seeders: 50},
		{Title: "480", Quality: "480p", Seeders: 99},
		{Title: "1080-lo", Quality: "1080p", Seeders: 1},
		{Title: "1080-hi", Quality: "1080p", Seeders: 7},
	})
	want := []string{"1080-hi", "1080-lo", "720-hi"}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d ranked releases, got %d", len(want), len(ranked))
	}
	for i, title := range want {
		if ranked[i].Title != title {
			t.Fatalf("rank %d: got %q want %q", i, ranked[i].Title, title)
		}
	}
}

func TestModelRoundTripAndConfig(t *testing.T) {
	profile := FromConfig(config.Quality{Rules: []config.QualityRule{{Quality: "1080P", Source: "BluRay", MinSeeders: 2, MaxSizeMiB: 4096}}})
	if profile.Rules[0].MaxSize != 4096*mebibyte || profile.Rules[0].Source != "bluray" {
		t.Fatalf("unexpected rule from config: %+v", profile.Rules[0])
	}
	model, err := profile.ToModel()
	if err != nil {
		t.Fatalf("ToModel: %v", err)
	}
	back, err := FromModel(model)
	if err != nil {
		t.Fatalf("FromModel: %v", err)
	}
	if len(back.Rules) != 1 || back.Rules[0] != profile.Rules[0] {
		t.Fatalf("profile changed in storage: %+v vs %+v", back.Rules, profile.Rules)
	}
}
