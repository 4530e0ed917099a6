package merge

import (
	"strings"
	"unicode/utf8"
)

// indelRatio computes normalized indel similarity between two strings over
// runes: 1 - (insertions+deletions)/(len(a)+len(b)). This is the scale
// difflib's SequenceMatcher.ratio reports, so thresholds tuned against it
// carry over.
func indelRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0.0
	}

	// Indel distance via LCS: dist = la + lb - 2*lcs.
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[lb]
	return float64(2*lcs) / float64(la+lb)
}

// containsEither reports whether one non-empty string wholly contains the
// other.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Thresholds hold the similarity cut-offs driving merge decisions.
type Thresholds struct {
	// Merge is the floor every merge must clear (default 0.9).
	Merge float64
	// Name is the plain-similarity cut-off when no containment applies
	// (default 0.95).
	Name float64
	// NameBoost is the score a containment match is raised to (default 0.92).
	NameBoost float64
	// Content weighs into the combined score when the name alone falls short
	// (default 0.8).
	Content float64
	// MinContainmentRunes gates the containment boost: very short contained
	// names (张三 in 张三丰) are usually different people, while longer
	// contained forms are honorifics or abbreviations.
	MinContainmentRunes int
}

// DefaultThresholds returns the standard cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Merge:               0.9,
		Name:                0.95,
		NameBoost:           0.92,
		Content:             0.8,
		MinContainmentRunes: 3,
	}
}

// NameScore scores two normalized names. When one name contains the other
// and the shorter side has at least MinContainmentRunes runes, the score is
// boosted to NameBoost (honorifics and abbreviations are common).
func (t Thresholds) NameScore(a, b string) (score float64, contained bool) {
	score = indelRatio(a, b)
	if containsEither(a, b) {
		shorter := utf8.RuneCountInString(a)
		if n := utf8.RuneCountInString(b); n < shorter {
			shorter = n
		}
		if shorter >= t.MinContainmentRunes {
			contained = true
			if score < t.NameBoost {
				score = t.NameBoost
			}
		}
	}
	return score, contained
}

// jaccard computes set overlap between two keyword sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
