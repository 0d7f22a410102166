package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/textnorm"
)

const (
	weightOverlap  = 0.50
	weightSequence = 0.25
	weightLength   = 0.15
	weightDate     = 0.06
	weightStudio   = 0.04
)

// TokenSetConfig holds the token-set decision rule.
type TokenSetConfig struct {
	MinTokens int
	Threshold float64
	GapRatio  float64
	// AmbiguityFloor is the second-best score above which the gap rule applies.
	AmbiguityFloor float64
	MinOverlap     float64
}

// TokenSet scores token overlap, order and length with small date and studio
// bonuses, and refuses to pick between near ties.
type TokenSet struct {
	cfg    TokenSetConfig
	logger zerolog.Logger
}

// NewTokenSet builds a token-set matcher.
func NewTokenSet(cfg TokenSetConfig, logger zerolog.Logger) *TokenSet {
	return &TokenSet{cfg: cfg, logger: logger.With().Str("component", "matcher").Logger()}
}

type scored struct {
	index     int
	score     float64
	breakdown Breakdown
}

// Score returns the weighted score in [0,1] of q against scene, using the
// scene rendering that scores highest.
func (m *TokenSet) Score(q Query, scene metadata.Scene) (float64, Breakdown) {
	queryTokens := textnorm.Tokens(q.Title)
	var (
		best      float64
		breakdown Breakdown
	)
	for _, text := range sceneTexts(scene) {
		b := factors(queryTokens, textnorm.TokensOfText(text), q, scene)
		if total := b.total(); total > best {
			best, breakdown = total, b
		}
	}
	return best, breakdown
}

// Match scores q against every scene and accepts the top one only when the
// decision rule holds.
func (m *TokenSet) Match(_ context.Context, q Query, scenes []metadata.Scene) (Result, bool) {
	if len(scenes) == 0 {
		return Result{}, false
	}
	queryTokens := textnorm.Tokens(q.Title)

	ranked := make([]scored, len(scenes))
	for i, scene := range scenes {
		score, breakdown := m.Score(q, scene)
		ranked[i] = scored{index: i, score: score, breakdown: breakdown}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	top := ranked[0]
	second := 0.0
	if len(ranked) > 1 {
		second = ranked[1].score
	}
	if ok, reason := m.decide(len(queryTokens), top.score, second, top.breakdown.Overlap); !ok {
		m.logger.Debug().
			Str("title", q.Title).
			Float64("top", top.score).
			Float64("second", second).
			Str("reason", reason).
			Msg("token-set match rejected")
		return Result{}, false
	}

	breakdown := top.breakdown
	return Result{
		Scene:      scenes[top.index],
		Score:      top.score * 100,
		Method:     MethodTokenSet,
		Confidence: top.score,
		Breakdown:  &breakdown,
	}, true
}

// MatchOne validates q against a single scene. With no competitor the gap
// rule cannot apply.
func (m *TokenSet) MatchOne(ctx context.Context, q Query, scene metadata.Scene) (Result, bool) {
	return m.Match(ctx, q, []metadata.Scene{scene})
}

// decide applies the fail-closed rule: enough query tokens, a high enough top
// score, a clear gap to the runner-up when that runner-up is itself plausible,
// and a minimum raw token overlap.
func (m *TokenSet) decide(queryTokens int, top, second, topOverlap float64) (bool, string) {
	if queryTokens < m.cfg.MinTokens {
		return false, "too few query tokens"
	}
	if top < m.cfg.Threshold {
		return false, "below threshold"
	}
	if second > m.cfg.AmbiguityFloor && top/second < m.cfg.GapRatio {
		return false, "ambiguous runner-up"
	}
	if topOverlap < m.cfg.MinOverlap {
		return false, "insufficient overlap"
	}
	return true, ""
}

func factors(queryTokens, sceneTokens []string, q Query, scene metadata.Scene) Breakdown {
	if len(queryTokens) == 0 || len(sceneTokens) == 0 {
		return Breakdown{}
	}
	b := Breakdown{
		Overlap:  jaccard(queryTokens, sceneTokens),
		Sequence: float64(lcs(queryTokens, sceneTokens)) / float64(max(len(queryTokens), len(sceneTokens))),
		Length:   float64(min(len(queryTokens), len(sceneTokens))) / float64(max(len(queryTokens), len(sceneTokens))),
	}
	if textnorm.SameDay(q.Date, scene.ReleaseDate) {
		b.Date = 1
	}
	if q.Studio != "" && strings.EqualFold(strings.TrimSpace(q.Studio), strings.TrimSpace(scene.Studio)) {
		b.Studio = 1
	}
	return b
}

func (b Breakdown) total() float64 {
	return weightOverlap*b.Overlap +
		weightSequence*b.Sequence +
		weightLength*b.Length +
		weightDate*b.Date +
		weightStudio*b.Studio
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// lcs is the length of the longest common subsequence of two token lists.
func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
