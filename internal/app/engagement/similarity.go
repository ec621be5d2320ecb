package engagement

import "strings"

// DefaultSimilarityThreshold is the similarity above which two quest titles
// count as duplicates.
const DefaultSimilarityThreshold = 0.7

// LevenshteinDistance returns the edit distance between a and b, counted in
// runes. Comparison is case-sensitive; callers normalize beforehand.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Full (len(a)+1) x (len(b)+1) matrix.
	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := 0; j <= len(rb); j++ {
		d[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}
	return d[len(ra)][len(rb)]
}

// Similarity returns a score in [0,1]: 1 for identical strings (including two
// empty ones), falling linearly with edit distance over the longer length.
func Similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	return float64(longest-LevenshteinDistance(a, b)) / float64(longest)
}

// IsUnique reports whether candidate is distinct from every title in
// existing under the default threshold.
func IsUnique(candidate string, existing []string) bool {
	return isUniqueWithin(candidate, existing, DefaultSimilarityThreshold)
}

// isUniqueWithin rejects an exact normalized match or any title whose
// similarity to candidate exceeds threshold. The first offending title
// short-circuits.
func isUniqueWithin(candidate string, existing []string, threshold float64) bool {
	c := normalizeTitle(candidate)
	for _, title := range existing {
		t := normalizeTitle(title)
		if c == t || Similarity(c, t) > threshold {
			return false
		}
	}
	return true
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
