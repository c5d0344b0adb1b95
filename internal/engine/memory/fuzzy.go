package memory

// Elasticsearch AUTO fuzziness: terms of 0-2 runes must match exactly, 3-5
// runes allow one edit, longer terms two.
func autoEdits(runeLen int) int {
	switch {
	case runeLen < 3:
		return 0
	case runeLen < 6:
		return 1
	default:
		return 2
	}
}

// fuzzyMatch reports whether term is within AUTO edits of query, requiring
// the first prefixLen runes to match exactly. It returns the edit distance.
func fuzzyMatch(query, term []rune, prefixLen int) (int, bool) {
	maxEdits := autoEdits(len(query))
	if maxEdits == 0 {
		return 0, false
	}
	if abs(len(query)-len(term)) > maxEdits {
		return 0, false
	}
	if len(query) < prefixLen || len(term) < prefixLen {
		return 0, false
	}
	for i := 0; i < prefixLen; i++ {
		if query[i] != term[i] {
			return 0, false
		}
	}
	d := editDistance(query[prefixLen:], term[prefixLen:], maxEdits)
	return d, d <= maxEdits
}

// fuzzyPrefix reports whether some prefix of input is within AUTO edits of
// query, the way a fuzzy completion suggester matches.
func fuzzyPrefix(query, input []rune, prefixLen, minLen int) bool {
	if len(query) < minLen {
		return false
	}
	maxEdits := autoEdits(len(query))
	for n := len(query) - maxEdits; n <= len(query)+maxEdits; n++ {
		if n < prefixLen || n > len(input) {
			continue
		}
		if _, ok := fuzzyMatch(query, input[:n], prefixLen); ok {
			return true
		}
	}
	return false
}

// editDistance is the optimal string alignment distance (Levenshtein plus
// adjacent transpositions). It stops early and returns limit+1 once every
// cell of a row exceeds limit.
func editDistance(a, b []rune, limit int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prevPrev := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[j] = min(curr[j], prevPrev[j-2]+1)
			}
			rowMin = min(rowMin, curr[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prevPrev, prev, curr = prev, curr, prevPrev
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
