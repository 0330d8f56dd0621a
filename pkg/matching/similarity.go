package matching

import (
	"math"
	"slices"
	"strings"
)

// Ratio is 2*LCS / (len(a)+len(b)) over bytes. Both inputs are slugs or token strings,
// so they are ASCII.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	return 2 * float64(LongestCommonSubsequence(a, b)) / float64(total)
}

// LongestCommonSubsequence returns the LCS length of two byte strings
func LongestCommonSubsequence(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				row[j] = prevRow[j-1] + 1
			} else {
				row[j] = max(row[j-1], prevRow[j])
			}
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// TokenSortRatio compares the sorted token strings of both sides
func TokenSortRatio(a, b []string) float64 {
	return Ratio(joinSorted(a), joinSorted(b))
}

// TokenSetRatio compares the shared tokens against each side's remainder, so that
// "a senna" and "ayrton senna" are judged on "senna" plus what differs.
func TokenSetRatio(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := toSet(a)
	setB := toSet(b)

	var inter, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}

	t0 := joinSorted(inter)
	t1 := strings.TrimSpace(t0 + " " + joinSorted(onlyA))
	t2 := strings.TrimSpace(t0 + " " + joinSorted(onlyB))

	best := Ratio(t1, t2)
	if t0 != "" {
		best = max(best, Ratio(t0, t1), Ratio(t0, t2))
	}
	return best
}

// NumericProximity returns 1.0 for equal values, decaying linearly to 0.0 at maxDiff
func NumericProximity(a, b, maxDiff float64) float64 {
	if a == b {
		return 1.0
	}
	diff := math.Abs(a - b)
	if maxDiff <= 0 || diff >= maxDiff {
		return 0.0
	}
	return 1.0 - (diff / maxDiff)
}

func joinSorted(tokens []string) string {
	sorted := slices.Clone(tokens)
	slices.Sort(sorted)
	return strings.Join(sorted, " ")
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
