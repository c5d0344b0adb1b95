package memory

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/agrilogistic/search/internal/domain"
)

// Completion fuzziness mirrors the Elasticsearch suggester defaults.
const (
	completionPrefixLength = 1
	completionMinLength    = 3
)

type suggestion struct {
	text  string
	exact bool
	seq   uint64
}

// Suggest matches prefix against the start of every completion input. Exact
// prefix matches rank above fuzzy ones and duplicate strings are collapsed.
func (e *Engine) Suggest(ctx context.Context, prefix string, category *string, size int) ([]string, error) {
	if err := checkContext(ctx, "memory suggest"); err != nil {
		return nil, err
	}
	if size <= 0 || size > domain.MaxSuggestions {
		size = domain.MaxSuggestions
	}
	p := e.completionForm(prefix)
	if p == "" {
		return []string{}, nil
	}
	pr := []rune(p)

	e.mu.RLock()
	var found []suggestion
	for _, en := range e.docs {
		if category != nil && !containsTerm(en.doc.Suggest.Contexts.Category, *category) {
			continue
		}
		for _, input := range en.doc.Suggest.Input {
			form := e.completionForm(input)
			switch {
			case strings.HasPrefix(form, p):
				found = append(found, suggestion{text: input, exact: true, seq: en.seq})
			case fuzzyPrefix(pr, []rune(form), completionPrefixLength, completionMinLength):
				found = append(found, suggestion{text: input, seq: en.seq})
			}
		}
	}
	e.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.text != b.text {
			return a.text < b.text
		}
		return a.seq < b.seq
	})

	out := make([]string, 0, size)
	seen := make(map[string]bool, size)
	for _, s := range found {
		if seen[s.text] {
			continue
		}
		seen[s.text] = true
		out = append(out, s.text)
		if len(out) == size {
			break
		}
	}
	return out, nil
}

// completionForm lowercases and keeps letter runs separated by single spaces,
// like the simple analyzer of a completion field.
func (e *Engine) completionForm(s string) string {
	return strings.Join(strings.FieldsFunc(e.analyzer.Lower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	}), " ")
}
