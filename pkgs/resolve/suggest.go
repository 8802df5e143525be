package resolve

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// closestMatch returns the candidate most similar to target, or "" when
// nothing is close enough to be a plausible typo
func closestMatch(target string, candidates []string) string {
	pool := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != target {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return ""
	}

	if ranks := fuzzy.RankFindFold(target, pool); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", -1
	for _, c := range pool {
		d := fuzzy.LevenshteinDistance(target, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist <= max(2, len(target)/3) {
		return best
	}
	return ""
}
