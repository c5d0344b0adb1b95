package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stemmer is a table-driven approximation of the Elasticsearch light_french
// stemmer: it only conflates plural and feminine surface forms.
type stemmer struct {
	minLength      int
	rewrites       []SuffixRewrite
	strip          []string
	collapseDouble bool
}

func newStemmer(r StemmerRules) *stemmer {
	return &stemmer{
		minLength:      r.MinLength,
		rewrites:       r.Rewrites,
		strip:          r.Strip,
		collapseDouble: r.CollapseDouble,
	}
}

// Stem expects a lowercased token.
func (s *stemmer) Stem(word string) string {
	if utf8.RuneCountInString(word) < s.minLength {
		return word
	}
	for _, rw := range s.rewrites {
		if rw.Suffix != "" && strings.HasSuffix(word, rw.Suffix) {
			return strings.TrimSuffix(word, rw.Suffix) + rw.Replace
		}
	}
	for _, suffix := range s.strip {
		if suffix != "" && strings.HasSuffix(word, suffix) && len(word) > len(suffix) {
			word = strings.TrimSuffix(word, suffix)
		}
	}
	if s.collapseDouble {
		word = collapseFinalDouble(word)
	}
	return word
}

func collapseFinalDouble(word string) string {
	last, size := utf8.DecodeLastRuneInString(word)
	if size == 0 || !unicode.IsLetter(last) {
		return word
	}
	prev, _ := utf8.DecodeLastRuneInString(word[:len(word)-size])
	if prev == last {
		return word[:len(word)-size]
	}
	return word
}
