// Package analysis implements the catalog text pipeline: word segmentation,
// elision, lowercasing, stop-word removal, light stemming, synonym expansion and
// edge n-grams for autocomplete. The Elasticsearch index settings are generated
// from the same tables so that both engines agree on what a term is.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/segment"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Analyzer is safe for concurrent use; all state is read-only after New.
type Analyzer struct {
	tables    *Tables
	lang      language.Tag
	elisions  map[string]struct{}
	stopwords map[string]struct{}
	stemmer   *stemmer
	synonyms  map[string][]string
}

// New builds an analyzer from validated tables.
func New(t *Tables) *Analyzer {
	a := &Analyzer{
		tables:    t,
		lang:      languageTag(t.Language),
		elisions:  make(map[string]struct{}, len(t.Elisions)),
		stopwords: make(map[string]struct{}, len(t.Stopwords)),
		stemmer:   newStemmer(t.Stemmer),
		synonyms:  make(map[string][]string),
	}
	for _, e := range t.Elisions {
		a.elisions[a.Lower(e)] = struct{}{}
	}
	for _, s := range t.Stopwords {
		a.stopwords[a.Lower(s)] = struct{}{}
	}
	for _, group := range t.Synonyms {
		stemmed := make([]string, 0, len(group))
		seen := make(map[string]bool, len(group))
		for _, term := range group {
			for _, s := range a.Terms(term) {
				if !seen[s] {
					seen[s] = true
					stemmed = append(stemmed, s)
				}
			}
		}
		for _, s := range stemmed {
			a.synonyms[s] = appendUnique(a.synonyms[s], stemmed...)
		}
	}
	return a
}

// Default returns an analyzer over the embedded tables.
func Default() (*Analyzer, error) {
	t, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	return New(t), nil
}

// Tables returns the tables the analyzer was built from.
func (a *Analyzer) Tables() *Tables { return a.tables }

// Lower applies NFC normalization and language-aware lowercasing.
func (a *Analyzer) Lower(s string) string {
	return cases.Lower(a.lang).String(norm.NFC.String(s))
}

// Tokens splits text into UAX#29 words, dropping punctuation and whitespace.
func (a *Analyzer) Tokens(text string) []string {
	seg := segment.NewWordSegmenterDirect([]byte(norm.NFC.String(text)))
	var out []string
	for seg.Segment() {
		if seg.Type() == segment.None {
			continue
		}
		out = append(out, string(seg.Bytes()))
	}
	return out
}

// Terms runs the search-side pipeline: no synonym expansion.
func (a *Analyzer) Terms(text string) []string {
	var out []string
	for _, tok := range a.Tokens(text) {
		tok = a.elide(a.Lower(tok))
		if tok == "" {
			continue
		}
		if _, stop := a.stopwords[tok]; stop {
			continue
		}
		out = append(out, a.stemmer.Stem(tok))
	}
	return out
}

// IndexTerms runs the index-side pipeline. Every term is followed by the other
// members of its synonym group, so a query for any member matches.
func (a *Analyzer) IndexTerms(text string) []string {
	terms := a.Terms(text)
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t)
		for _, syn := range a.synonyms[t] {
			if syn != t {
				out = append(out, syn)
			}
		}
	}
	return out
}

// Synonyms returns the stemmed synonym group of an analyzed term, or nil.
func (a *Analyzer) Synonyms(term string) []string {
	return a.synonyms[term]
}

// EdgeNGrams emits the lowercased leading n-grams of every letter/digit run,
// bounded by the autocomplete range.
func (a *Analyzer) EdgeNGrams(text string) []string {
	minGram, maxGram := a.tables.Autocomplete.MinGram, a.tables.Autocomplete.MaxGram
	words := strings.FieldsFunc(a.Lower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, w := range words {
		runes := []rune(w)
		for n := minGram; n <= maxGram && n <= len(runes); n++ {
			out = append(out, string(runes[:n]))
		}
	}
	return out
}

// PrefixTerms lowercases and splits text the way the autocomplete search side
// does, without producing n-grams.
func (a *Analyzer) PrefixTerms(text string) []string {
	return strings.FieldsFunc(a.Lower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (a *Analyzer) elide(tok string) string {
	i := strings.IndexAny(tok, "'’")
	if i <= 0 {
		return tok
	}
	if _, ok := a.elisions[tok[:i]]; !ok {
		return tok
	}
	_, size := utf8.DecodeRuneInString(tok[i:])
	return tok[i+size:]
}

func languageTag(name string) language.Tag {
	switch strings.ToLower(name) {
	case "french", "fr":
		return language.French
	case "english", "en":
		return language.English
	}
	if tag, err := language.Parse(name); err == nil {
		return tag
	}
	return language.Und
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
