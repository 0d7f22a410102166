package matcher

import (
	"context"
	"strings"
	"time"

	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/scorer"
	"github.com/scenarr/scenarr/internal/textnorm"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodExact       Method = "exact"
	MethodTruncated   Method = "truncated"
	MethodPartial     Method = "partial"
	MethodLearned     Method = "learned"
	MethodLevenshtein Method = "levenshtein"
	MethodTokenSet    Method = "token_set"
)

// Query is the release side of a comparison.
type Query struct {
	Title  string
	Date   *time.Time
	Studio string
}

// Breakdown holds the per-factor token-set scores.
type Breakdown struct {
	Overlap  float64 `json:"overlap"`
	Sequence float64 `json:"sequence"`
	Length   float64 `json:"length"`
	Date     float64 `json:"date"`
	Studio   float64 `json:"studio"`
}

// Result is an accepted match. Score is on a 0-100 scale for every method.
type Result struct {
	Scene      metadata.Scene
	Score      float64
	Method     Method
	Confidence float64
	Breakdown  *Breakdown
}

// Learned is the optional relevance model consulted by the staged matcher.
type Learned interface {
	Available() bool
	Threshold() float64
	ScoreBatch(ctx context.Context, queries, candidates []scorer.Descriptor) ([][]float64, error)
}

// Matcher picks the scene a release most likely belongs to.
type Matcher interface {
	Match(ctx context.Context, q Query, scenes []metadata.Scene) (Result, bool)
	MatchOne(ctx context.Context, q Query, scene metadata.Scene) (Result, bool)
}

// sceneTexts renders the normalized forms a release title commonly takes for
// a scene: bare title, performers plus title, studio plus performers plus title.
func sceneTexts(scene metadata.Scene) []string {
	title := textnorm.Text(scene.Title)
	performers := textnorm.Text(strings.Join(scene.Performers, " "))
	studio := textnorm.Text(scene.Studio)

	texts := make([]string, 0, 3)
	add := func(parts ...string) {
		joined := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		if joined == "" {
			return
		}
		for _, t := range texts {
			if t == joined {
				return
			}
		}
		texts = append(texts, joined)
	}
	add(title)
	add(performers, title)
	add(studio, performers, title)
	return texts
}

func sceneDescriptor(scene metadata.Scene) scorer.Descriptor {
	return scorer.Descriptor{
		Performers: scene.Performers,
		Studio:     scene.Studio,
		Date:       scene.ReleaseDate,
		Title:      scene.Title,
	}
}

func queryDescriptor(q Query) scorer.Descriptor {
	return scorer.Descriptor{
		Studio: q.Studio,
		Date:   q.Date,
		Title:  textnorm.Text(q.Title),
	}
}
