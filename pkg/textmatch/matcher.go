package textmatch

import "sort"

// DefaultMatchThreshold is the minimum score AllMatches keeps when the
// caller passes no explicit threshold.
const DefaultMatchThreshold = 0.7

// Match pairs a candidate with its similarity score. Index is the
// candidate's position in the input list, preserved so callers can map
// back to roster entries.
type Match struct {
	Candidate string
	Score     float64
	Index     int
}

// BestMatch returns the highest-scoring candidate for a detected name.
// The name is cleaned before scoring. Ties keep the first-encountered
// candidate, so iteration order over candidates is significant and must
// be deterministic. Returns false when candidates is empty.
func BestMatch(name string, candidates []string) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}

	cleaned := Clean(name)

	best := Match{Index: -1}
	for i, c := range candidates {
		score := Similarity(cleaned, c)
		if best.Index < 0 || score > best.Score {
			best = Match{Candidate: c, Score: score, Index: i}
		}
	}

	return best, true
}

// AllMatches returns every candidate scoring at or above threshold,
// sorted descending by score. Sorting is stable so equal scores keep
// input order.
func AllMatches(name string, candidates []string, threshold float64) []Match {
	cleaned := Clean(name)

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score := Similarity(cleaned, c)
		if score >= threshold {
			matches = append(matches, Match{Candidate: c, Score: score, Index: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}
