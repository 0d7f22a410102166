package search

import (
	"strings"

	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/textnorm"
)

// Group is a set of releases whose normalized titles denote the same work.
type Group struct {
	Key      string
	Releases []indexer.Release
}

// Indexers counts the distinct indexers that contributed to the group.
func (g Group) Indexers() int {
	seen := make(map[string]bool, len(g.Releases))
	for _, r := range g.Releases {
		seen[strings.ToLower(r.Indexer)] = true
	}
	return len(seen)
}

// Dedup drops releases whose content hash was already seen, keeping the first.
// Releases without a hash are kept.
func Dedup(releases []indexer.Release) []indexer.Release {
	seen := make(map[string]bool, len(releases))
	out := make([]indexer.Release, 0, len(releases))
	for _, r := range releases {
		if r.ContentHash != "" {
			if seen[r.ContentHash] {
				continue
			}
			seen[r.ContentHash] = true
		}
		out = append(out, r)
	}
	return out
}

// Filter keeps releases that name the entity: every significant token of the
// entity name, or of one of its aliases, must occur in the release title. A
// name written without spaces in the title ("brightside" for "Bright Side")
// also counts.
func Filter(releases []indexer.Release, names []string) []indexer.Release {
	required := make([][]string, 0, len(names))
	for _, name := range names {
		if tokens := textnorm.Tokens(name); len(tokens) > 0 {
			required = append(required, tokens)
		}
	}

	out := make([]indexer.Release, 0, len(releases))
	for _, r := range releases {
		if strings.TrimSpace(r.Title) == "" || r.Size < 0 {
			continue
		}
		if len(required) == 0 || namesEntity(r.Title, required) {
			out = append(out, r)
		}
	}
	return out
}

func namesEntity(title string, required [][]string) bool {
	text := textnorm.Text(title)
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(text) {
		tokens[t] = true
	}
	squashed := strings.ReplaceAll(text, " ", "")

	for _, name := range required {
		all := true
		for _, t := range name {
			if !tokens[t] {
				all = false
				break
			}
		}
		if all || strings.Contains(squashed, strings.Join(name, "")) {
			return true
		}
	}
	return false
}

// GroupReleases clusters releases by normalized title, in order of first
// appearance. Releases whose title normalizes to nothing are dropped.
func GroupReleases(releases []indexer.Release) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, r := range releases {
		key := textnorm.Text(r.Title)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Releases = append(groups[i].Releases, r)
	}
	return groups
}
