package matcher

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/scorer"
)

type fakeLearned struct {
	available bool
	score     float64
	err       error
	calls     int
}

func (f *fakeLearned) Available() bool    { return f.available }
func (f *fakeLearned) Threshold() float64 { return 0.75 }

func (f *fakeLearned) ScoreBatch(_ context.Context, queries, candidates []scorer.Descriptor) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		f.available = false
		return nil, f.err
	}
	out := make([][]float64, len(queries))
	for i := range out {
		out[i] = make([]float64, len(candidates))
		for j := range out[i] {
			out[i][j] = f.score
		}
	}
	return out, nil
}

func defaultStaged(learned Learned) *Staged {
	return NewStaged(StagedConfig{
		TruncatedRatio:        0.7,
		PartialMinLength:      20,
		EditDistanceThreshold: 0.85,
		DateBonus:             5,
	}, learned, zerolog.Nop())
}

func defaultTokenSet() *TokenSet {
	return NewTokenSet(TokenSetConfig{
		MinTokens:      2,
		Threshold:      0.7,
		GapRatio:       1.5,
		AmbiguityFloor: 0.3,
		MinOverlap:     0.10,
	}, zerolog.Nop())
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestStagedExactShortCircuits(t *testing.T) {
	learned := &fakeLearned{available: true, score: 0.99}
	m := defaultStaged(learned)
	scenes := []metadata.Scene{
		{ID: "near", Title: "Scene Title 2025"},
		{ID: "exact", Title: "Scene Title 2024"},
	}

	got, ok := m.Match(context.Background(), Query{Title: "scene title 2024"}, scenes)
	if !ok {
		t.Fatal("expected match")
	}
	if got.Scene.ID != "exact" || got.Score != 100 || got.Method != MethodExact {
		t.Fatalf("unexpected result: %+v", got)
	}
	if learned.calls != 0 {
		t.Fatalf("exact match must not score further candidates, learned called %d times", learned.calls)
	}
}

func TestStagedStages(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		scene      string
		wantMethod Method
		wantMin    float64
		wantMax    float64
	}{
		{"truncated", "Morning Light Over The", "Morning Light Over The City", MethodTruncated, 90, 95},
		{"partial", "The Grand Hotel Lobby Encounter Part Two", "Grand Hotel Lobby Encounter", MethodPartial, 80, 85},
		{"levenshtein", "Morning Lite Over The City", "Morning Light Over The City", MethodLevenshtein, 85, 100},
	}
	m := defaultStaged(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(context.Background(), Query{Title: tt.query}, []metadata.Scene{{ID: "s", Title: tt.scene}})
			if !ok {
				t.Fatal("expected match")
			}
			if got.Method != tt.wantMethod {
				t.Fatalf("method: got %s want %s", got.Method, tt.wantMethod)
			}
			if got.Score < tt.wantMin || got.Score > tt.wantMax {
				t.Fatalf("score %v outside [%v,%v]", got.Score, tt.wantMin, tt.wantMax)
			}
			if math.Abs(got.Confidence-got.Score/100) > 1e-9 {
				t.Fatalf("confidence %v does not follow score %v", got.Confidence, got.Score)
			}
		})
	}
}

func TestStagedTruncatedNeedsTokenBoundary(t *testing.T) {
	m := defaultStaged(nil)
	if got, ok := m.truncated("morning light over the", "morning light over theater"); ok {
		t.Fatalf("mid-token prefix accepted as truncated: %+v", got)
	}
	if _, ok := m.truncated("morning light over the", "morning light over the city"); !ok {
		t.Fatal("expected whole-token prefix to be accepted")
	}
	if _, ok := m.truncated("morning light over the", "morning light over the"); !ok {
		t.Fatal("expected equal strings to be accepted")
	}
}

func TestStagedRejectsUnrelated(t *testing.T) {
	m := defaultStaged(nil)
	if got, ok := m.Match(context.Background(), Query{Title: "Completely Different Words"}, []metadata.Scene{{ID: "s", Title: "Morning Light Over The City"}}); ok {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestStagedDecisionIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Morning Light Over The", "Morning Light Over The City"},
		{"The Grand Hotel Lobby Encounter Part Two", "Grand Hotel Lobby Encounter"},
		{"Short One", "Short One Plus A Much Longer Tail"},
		{"Morning Lite Over The City", "Morning Light Over The City"},
		{"Alpha Beta", "Gamma Delta"},
	}
	m := defaultStaged(nil)
	for _, p := range pairs {
		_, forward := m.Match(context.Background(), Query{Title: p[0]}, []metadata.Scene{{ID: "s", Title: p[1]}})
		_, backward := m.Match(context.Background(), Query{Title: p[1]}, []metadata.Scene{{ID: "s", Title: p[0]}})
		if forward != backward {
			t.Fatalf("%q vs %q: forward=%v backward=%v", p[0], p[1], forward, backward)
		}
	}
}

func TestStagedDateBonusAndBest(t *testing.T) {
	m := defaultStaged(nil)
	scenes := []metadata.Scene{
		{ID: "undated", Title: "Morning Light Over The City"},
		{ID: "dated", Title: "Morning Light Over The Cities", ReleaseDate: day(2024, 3, 15)},
	}
	got, ok := m.Match(context.Background(), Query{Title: "Morning Light Over The", Date: day(2024, 3, 15)}, scenes)
	if !ok {
		t.Fatal("expected match")
	}
	// The undated scene has the better prefix ratio but the dated one earns the bonus.
	if got.Scene.ID != "dated" {
		t.Fatalf("expected dated scene to win, got %+v", got)
	}
	if got.Score > 100 {
		t.Fatalf("score must be capped at 100, got %v", got.Score)
	}
}

func TestStagedUsesPerformerRendering(t *testing.T) {
	m := defaultStaged(nil)
	scene := metadata.Scene{ID: "s", Title: "Morning Light", Performers: []string{"Jane Doe"}, Studio: "Brightside"}
	got, ok := m.Match(context.Background(), Query{Title: "Brightside.24.03.15.Jane.Doe.Morning.Light.XXX.1080p.MP4-GRP"}, []metadata.Scene{scene})
	if !ok || got.Method != MethodExact {
		t.Fatalf("expected exact match on studio+performer rendering, got %+v ok=%v", got, ok)
	}
}

func TestStagedLearnedStage(t *testing.T) {
	learned := &fakeLearned{available: true, score: 0.9}
	m := defaultStaged(learned)
	got, ok := m.Match(context.Background(), Query{Title: "Sunset Rooftop Session"}, []metadata.Scene{{ID: "s", Title: "Evening On The Roof"}})
	if !ok || got.Method != MethodLearned {
		t.Fatalf("expected learned match, got %+v ok=%v", got, ok)
	}
	if math.Abs(got.Score-90) > 1e-9 {
		t.Fatalf("expected score 90, got %v", got.Score)
	}

	learned.score = 0.5
	if _, ok := m.Match(context.Background(), Query{Title: "Sunset Rooftop Session"}, []metadata.Scene{{ID: "s", Title: "Evening On The Roof"}}); ok {
		t.Fatal("expected rejection below learned threshold")
	}
}

func TestStagedLearnedFailureFallsBack(t *testing.T) {
	learned := &fakeLearned{available: true, err: errors.New("inference failed")}
	m := defaultStaged(learned)
	got, ok := m.Match(context.Background(), Query{Title: "Morning Lite Over The City"}, []metadata.Scene{{ID: "s", Title: "Morning Light Over The City"}})
	if !ok || got.Method != MethodLevenshtein {
		t.Fatalf("expected edit-distance fallback, got %+v ok=%v", got, ok)
	}
	if learned.calls != 1 {
		t.Fatalf("expected one learned call, got %d", learned.calls)
	}
}

func TestTokenSetScoreBounds(t *testing.T) {
	m := defaultTokenSet()
	scene := metadata.Scene{Title: "Morning Light", Performers: []string{"Jane Doe"}, Studio: "Brightside", ReleaseDate: day(2024, 3, 15)}
	queries := []Query{
		{Title: ""},
		{Title: "a 1 2"},
		{Title: "Morning Light"},
		{Title: "Brightside Jane Doe Morning Light", Date: day(2024, 3, 15), Studio: "brightside"},
		{Title: "Unrelated Words Entirely"},
	}
	for _, q := range queries {
		score, _ := m.Score(q, scene)
		if score < 0 || score > 1 {
			t.Fatalf("%q: score %v outside [0,1]", q.Title, score)
		}
	}
	if score, _ := m.Score(Query{Title: "a 1 2"}, scene); score != 0 {
		t.Fatalf("empty query token set must score 0, got %v", score)
	}
	if score, _ := m.Score(Query{Title: "Morning Light"}, metadata.Scene{Title: "1 2 3"}); score != 0 {
		t.Fatalf("empty scene token set must score 0, got %v", score)
	}
	full, b := m.Score(Query{Title: "Brightside Jane Doe Morning Light", Date: day(2024, 3, 15), Studio: "brightside"}, scene)
	if math.Abs(full-1) > 1e-9 || b.Date != 1 || b.Studio != 1 {
		t.Fatalf("expected perfect score with bonuses, got %v %+v", full, b)
	}
}

func TestTokenSetDecide(t *testing.T) {
	m := defaultTokenSet()
	tests := []struct {
		name    string
		tokens  int
		top     float64
		second  float64
		overlap float64
		want    bool
	}{
		{"gap too small", 4, 0.9, 0.61, 0.8, false},
		{"clear gap", 4, 0.9, 0.5, 0.8, true},
		{"runner-up below floor", 4, 0.75, 0.29, 0.8, true},
		{"below threshold", 4, 0.69, 0, 0.8, false},
		{"too few tokens", 1, 0.95, 0, 0.8, false},
		{"overlap too low", 4, 0.8, 0, 0.05, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := m.decide(tt.tokens, tt.top, tt.second, tt.overlap); got != tt.want {
				t.Fatalf("decide = %v want %v", got, tt.want)
			}
		})
	}
}

func TestTokenSetMatch(t *testing.T) {
	m := defaultTokenSet()
	scenes := []metadata.Scene{
		{ID: "other", Title: "Poolside Afternoon", Performers: []string{"Mia Roe"}, Studio: "Brightside"},
		{ID: "target", Title: "Morning Light", Performers: []string{"Jane Doe"}, Studio: "Brightside", ReleaseDate: day(2024, 3, 15)},
	}
	q := Query{Title: "Brightside.24.03.15.Jane.Doe.Morning.Light.XXX.1080p", Date: day(2024, 3, 15)}
	got, ok := m.Match(context.Background(), q, scenes)
	if !ok {
		t.Fatal("expected match")
	}
	if got.Scene.ID != "target" || got.Method != MethodTokenSet || got.Breakdown == nil {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Score < 70 || got.Score > 100 {
		t.Fatalf("unexpected score %v", got.Score)
	}
}

func TestTokenSetRejectsNearTie(t *testing.T) {
	m := defaultTokenSet()
	scenes := []metadata.Scene{
		{ID: "one", Title: "Morning Light Part Finale One"},
		{ID: "two", Title: "Morning Light Part Finale Two"},
	}
	if got, ok := m.Match(context.Background(), Query{Title: "Morning Light Part Finale"}, scenes); ok {
		t.Fatalf("expected ambiguous rejection, got %+v", got)
	}
}
