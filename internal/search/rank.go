package search

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/somepatt/tgbot-search-films/internal/movies"
)

// Tier orders how well a title matches a query. Lower is better.
type Tier int

const (
	TierExact Tier = iota
	TierPrefix
	TierContains
	TierFuzzy
	TierNone
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierContains:
		return "contains"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

var leadingArticles = []string{"the ", "a ", "an "}

// MatchTier scores a record against an already normalized query. Both the
// display title and the original title are considered, each with and without
// a leading English article, and the best tier wins.
func MatchTier(query string, record movies.MovieRecord) Tier {
	best := TierNone
	for _, title := range []string{record.Title, record.OriginalTitle} {
		if title == "" {
			continue
		}
		for _, form := range titleForms(Normalize(title)) {
			if tier := matchForm(query, form); tier < best {
				best = tier
			}
		}
	}
	return best
}

func titleForms(title string) []string {
	forms := []string{title}
	for _, article := range leadingArticles {
		if rest, ok := strings.CutPrefix(title, article); ok && rest != "" {
			forms = append(forms, rest)
			break
		}
	}
	return forms
}

func matchForm(query, title string) Tier {
	switch {
	case query == "" || title == "":
		return TierNone
	case title == query:
		return TierExact
	case strings.HasPrefix(title, query):
		return TierPrefix
	case strings.Contains(title, query):
		return TierContains
	case fuzzy.Match(query, title):
		return TierFuzzy
	default:
		return TierNone
	}
}

type rankedRecord struct {
	record movies.MovieRecord
	tier   Tier
}

// Rank orders candidates for query: by tier, then newest year first, then by
// id. Numeric ids compare numerically. Duplicate ids keep their best-ranked
// occurrence. The output depends only on the set of candidates, not on the
// order the provider returned them in.
func Rank(query string, candidates []movies.MovieRecord) []movies.MovieRecord {
	ranked := make([]rankedRecord, 0, len(candidates))
	for _, record := range candidates {
		ranked = append(ranked, rankedRecord{record: record, tier: MatchTier(query, record)})
	}

	slices.SortStableFunc(ranked, func(a, b rankedRecord) int {
		if c := cmp.Compare(a.tier, b.tier); c != 0 {
			return c
		}
		if c := cmp.Compare(b.record.Year, a.record.Year); c != 0 {
			return c
		}
		if c := compareIDs(a.record.ID, b.record.ID); c != 0 {
			return c
		}
		if c := strings.Compare(a.record.Title, b.record.Title); c != 0 {
			return c
		}
		return strings.Compare(a.record.OriginalTitle, b.record.OriginalTitle)
	})

	out := make([]movies.MovieRecord, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		if _, dup := seen[r.record.ID]; dup {
			continue
		}
		seen[r.record.ID] = struct{}{}
		out = append(out, r.record)
	}
	return out
}

// compareIDs sorts numeric ids numerically and ahead of non-numeric ones.
func compareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
