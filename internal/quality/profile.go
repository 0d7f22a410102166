package quality

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/scenarr/scenarr/internal/config"
	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/indexer"
)

// Any matches every quality or source label.
const Any = "any"

const mebibyte = 1 << 20

// Rule is one acceptance rule. MaxSize is in bytes; zero means no ceiling.
type Rule struct {
	Quality    string `json:"quality"`
	Source     string `json:"source"`
	MinSeeders int    `json:"min_seeders"`
	MaxSize    int64  `json:"max_size"`
}

// Profile is an ordered rule list. Earlier rules are preferred.
type Profile struct {
	Name  string
	Rules []Rule
}

// Score explains how a release fared against a profile.
type Score struct {
	Rule   int // index of the first satisfied rule, -1 when none
	Reason string
}

// Acceptable reports whether any rule was satisfied.
func (s Score) Acceptable() bool {
	return s.Rule >= 0
}

// NormalizeRule lowercases labels and maps them onto the release label set.
func NormalizeRule(r Rule) Rule {
	r.Quality = strings.ToLower(strings.TrimSpace(r.Quality))
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	if r.Quality == "" || r.Quality == Any {
		r.Quality = Any
	} else {
		r.Quality = indexer.NormalizeQuality(r.Quality)
	}
	if r.Source == "" || r.Source == Any {
		r.Source = Any
	} else {
		r.Source = indexer.NormalizeSource(r.Source)
	}
	return r
}

// Satisfied reports whether release meets every constraint of the rule.
func (r Rule) Satisfied(release indexer.Release) bool {
	if r.Quality != Any && r.Quality != release.Quality {
		return false
	}
	if r.Source != Any && r.Source != release.Source {
		return false
	}
	if release.Seeders < r.MinSeeders {
		return false
	}
	if r.MaxSize > 0 && release.Size > r.MaxSize {
		return false
	}
	return true
}

func (r Rule) String() string {
	s := fmt.Sprintf("%s/%s seeders>=%d", r.Quality, r.Source, r.MinSeeders)
	if r.MaxSize > 0 {
		s += fmt.Sprintf(" size<=%dMiB", r.MaxSize/mebibyte)
	}
	return s
}

// ScoreRelease finds the first rule the release satisfies.
func (p Profile) ScoreRelease(release indexer.Release) Score {
	for i, rule := range p.Rules {
		if rule.Satisfied(release) {
			return Score{Rule: i, Reason: "matches " + rule.String()}
		}
	}
	return Score{Rule: -1, Reason: "no rule satisfied"}
}

// Select picks one release. Rules are tried in profile order; the first rule
// with any satisfying candidate wins, and among those the highest seeder count
// wins, ties going to the earlier candidate.
func (p Profile) Select(candidates []indexer.Release) (indexer.Release, Score, bool) {
	for ruleIndex, rule := range p.Rules {
		best := -1
		for i, c := range candidates {
			if !rule.Satisfied(c) {
				continue
			}
			if best < 0 || c.Seeders > candidates[best].Seeders {
				best = i
			}
		}
		if best >= 0 {
			return candidates[best], Score{Rule: ruleIndex, Reason: "matches " + rule.String()}, true
		}
	}
	return indexer.Release{}, Score{Rule: -1, Reason: "no rule satisfied"}, false
}

// Rank orders acceptable releases by rule preference then seeders. Releases
// satisfying no rule are dropped. The sort is stable.
func (p Profile) Rank(candidates []indexer.Release) []indexer.Release {
	type scored struct {
		release indexer.Release
		rule    int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if s := p.ScoreRelease(c); s.Acceptable() {
			ranked = append(ranked, scored{release: c, rule: s.Rule})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].rule != ranked[j].rule {
			return ranked[i].rule < ranked[j].rule
		}
		return ranked[i].release.Seeders > ranked[j].release.Seeders
	})
	out := make([]indexer.Release, len(ranked))
	for i, r := range ranked {
		out[i] = r.release
	}
	return out
}

// FromConfig builds the default profile from the quality section.
func FromConfig(cfg config.Quality) Profile {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, NormalizeRule(Rule{
			Quality:    r.Quality,
			Source:     r.Source,
			MinSeeders: r.MinSeeders,
			MaxSize:    r.MaxSizeMiB * mebibyte,
		}))
	}
	return Profile{Name: "default", Rules: rules}
}

// FromModel decodes a stored profile.
func FromModel(m db.QualityProfile) (Profile, error) {
	var rules []Rule
	if strings.TrimSpace(m.Rules) != "" {
		if err := json.Unmarshal([]byte(m.Rules), &rules); err != nil {
			return Profile{}, fmt.Errorf("decode quality profile %q: %w", m.Name, err)
		}
	}
	for i := range rules {
		rules[i] = NormalizeRule(rules[i])
	}
	return Profile{Name: m.Name, Rules: rules}, nil
}

// ToModel encodes the profile for storage.
func (p Profile) ToModel() (db.QualityProfile, error) {
	data, err := json.Marshal(p.Rules)
	if err != nil {
		return db.QualityProfile{}, err
	}
	return db.QualityProfile{Name: p.Name, Rules: string(data)}, nil
}
