package matcher

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/scorer"
	"github.com/scenarr/scenarr/internal/textnorm"
)

// StagedConfig holds the staged matcher thresholds.
type StagedConfig struct {
	TruncatedRatio        float64
	PartialMinLength      int
	EditDistanceThreshold float64
	DateBonus             float64
}

// Staged tries exact, truncated, partial, learned and edit-distance comparisons
// in that order for each scene and keeps the best accepted scene.
type Staged struct {
	cfg     StagedConfig
	learned Learned
	logger  zerolog.Logger
}

// NewStaged builds a staged matcher. learned may be nil.
func NewStaged(cfg StagedConfig, learned Learned, logger zerolog.Logger) *Staged {
	return &Staged{
		cfg:     cfg,
		learned: learned,
		logger:  logger.With().Str("component", "matcher").Logger(),
	}
}

type stageHit struct {
	score  float64
	method Method
}

// Match returns the best scene for q. An exact match ends the search before
// any other stage runs.
func (s *Staged) Match(ctx context.Context, q Query, scenes []metadata.Scene) (Result, bool) {
	queryText := textnorm.Text(q.Title)
	if queryText == "" || len(scenes) == 0 {
		return Result{}, false
	}

	texts := make([][]string, len(scenes))
	for i, scene := range scenes {
		texts[i] = sceneTexts(scene)
		if exactAny(queryText, texts[i]) {
			return s.result(scene, stageHit{score: 100, method: MethodExact}, q), true
		}
	}

	var (
		best          Result
		found         bool
		learnedScores []float64
		learnedTried  bool
	)
	for i, scene := range scenes {
		hit, ok := s.deterministic(queryText, texts[i])
		if !ok {
			if !learnedTried {
				learnedScores = s.learnedScores(ctx, q, scenes)
				learnedTried = true
			}
			if learnedScores != nil && learnedScores[i] >= s.learned.Threshold() {
				hit, ok = stageHit{score: learnedScores[i] * 100, method: MethodLearned}, true
			}
		}
		if !ok {
			hit, ok = s.levenshtein(queryText, texts[i])
		}
		if !ok {
			continue
		}

		result := s.result(scene, hit, q)
		if !found || result.Score > best.Score {
			best, found = result, true
		}
	}
	return best, found
}

// MatchOne validates q against a single scene.
func (s *Staged) MatchOne(ctx context.Context, q Query, scene metadata.Scene) (Result, bool) {
	return s.Match(ctx, q, []metadata.Scene{scene})
}

// learnedScores returns one similarity per scene, or nil when the model is
// unavailable or fails. Failures degrade the scorer for the rest of the run.
func (s *Staged) learnedScores(ctx context.Context, q Query, scenes []metadata.Scene) []float64 {
	if s.learned == nil || !s.learned.Available() {
		return nil
	}
	candidates := make([]scorer.Descriptor, len(scenes))
	for i, scene := range scenes {
		candidates[i] = sceneDescriptor(scene)
	}
	scores, err := s.learned.ScoreBatch(ctx, []scorer.Descriptor{queryDescriptor(q)}, candidates)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", q.Title).Msg("learned scoring failed, falling back to edit distance")
		return nil
	}
	return scores[0]
}

// deterministic runs the truncated and partial stages across every rendering.
func (s *Staged) deterministic(query string, texts []string) (stageHit, bool) {
	for _, stage := range []func(a, b string) (stageHit, bool){s.truncated, s.partial} {
		var best stageHit
		found := false
		for _, text := range texts {
			if hit, ok := stage(query, text); ok && (!found || hit.score > best.score) {
				best, found = hit, true
			}
		}
		if found {
			return best, true
		}
	}
	return stageHit{}, false
}

func (s *Staged) levenshtein(query string, texts []string) (stageHit, bool) {
	var best float64
	for _, text := range texts {
		if sim := levenshteinSimilarity(query, text); sim > best {
			best = sim
		}
	}
	if best < s.cfg.EditDistanceThreshold {
		return stageHit{}, false
	}
	return stageHit{score: best * 100, method: MethodLevenshtein}, true
}

// truncated accepts when the shorter string is a whole-token prefix of the
// longer one and long enough relative to it. Score runs from 90 at the
// threshold to 95 at equal length.
func (s *Staged) truncated(a, b string) (stageHit, bool) {
	short, long := byLength(a, b)
	if short == "" || !strings.HasPrefix(long, short) {
		return stageHit{}, false
	}
	// "over the" must not count as a prefix of "over theater".
	if len(long) > len(short) && long[len(short)] != ' ' {
		return stageHit{}, false
	}
	ratio := lengthRatio(short, long)
	if ratio < s.cfg.TruncatedRatio {
		return stageHit{}, false
	}
	scaled := 1.0
	if s.cfg.TruncatedRatio < 1 {
		scaled = (ratio - s.cfg.TruncatedRatio) / (1 - s.cfg.TruncatedRatio)
	}
	return stageHit{score: 90 + 5*scaled, method: MethodTruncated}, true
}

// partial accepts when the shorter string is long enough and contained in the
// longer one. Score runs from 80 to 85 with the length ratio.
func (s *Staged) partial(a, b string) (stageHit, bool) {
	short, long := byLength(a, b)
	if utf8.RuneCountInString(short) <= s.cfg.PartialMinLength || !strings.Contains(long, short) {
		return stageHit{}, false
	}
	return stageHit{score: 80 + 5*lengthRatio(short, long), method: MethodPartial}, true
}

func (s *Staged) result(scene metadata.Scene, hit stageHit, q Query) Result {
	score := hit.score
	if textnorm.SameDay(q.Date, scene.ReleaseDate) {
		score = min(score+s.cfg.DateBonus, 100)
	}
	return Result{
		Scene:      scene,
		Score:      score,
		Method:     hit.method,
		Confidence: score / 100,
	}
}

func exactAny(query string, texts []string) bool {
	for _, t := range texts {
		if t == query {
			return true
		}
	}
	return false
}

// byLength orders two strings shortest first. Equal lengths are ordered
// lexically so swapping the arguments never changes the outcome.
func byLength(a, b string) (string, string) {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la < lb || (la == lb && a <= b) {
		return a, b
	}
	return b, a
}

func lengthRatio(short, long string) float64 {
	ll := utf8.RuneCountInString(long)
	if ll == 0 {
		return 0
	}
	return float64(utf8.RuneCountInString(short)) / float64(ll)
}

func levenshteinSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(edlib.LevenshteinDistance(a, b))/float64(maxLen)
}
