package matcher

import (
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// NormalizeName lower-cases s, trims it and collapses internal whitespace
// so that "  SOMCHAI   Jaidee " and "somchai jaidee" compare equal.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity scores two normalized strings on a 0-100 scale.
//
// The score is ((L - d) / L) * 100 rounded to the nearest integer, where d is
// the edit distance with unit insert, delete and substitute costs and L is
// the rune length of the longer string. Two empty strings score 100.
// The function is symmetric in its arguments.
func Similarity(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}

	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	score := int(math.Round(float64(longest-distance) / float64(longest) * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BestSimilarity returns the highest score of target against any candidate
// and the candidate that produced it. Inputs are normalized here. An exact
// match short-circuits to 100.
func BestSimilarity(target string, candidates []string) (int, string) {
	target = NormalizeName(target)

	best, bestName := 0, ""
	for _, candidate := range candidates {
		normalized := NormalizeName(candidate)
		if normalized == target {
			return 100, candidate
		}
		if score := Similarity(target, normalized); score > best || bestName == "" {
			best, bestName = score, candidate
		}
	}
	return best, bestName
}
