package elasticsearch

import (
	"context"

	"github.com/agrilogistic/search/internal/domain"
)

const suggestName = "product-suggest"

// esSuggestResponse is the structure used to decode completion suggester responses.
type esSuggestResponse struct {
	Suggest map[string][]struct {
		Options []struct {
			Text string `json:"text"`
		} `json:"options"`
	} `json:"suggest"`
}

// Suggest returns completion suggestions for the given prefix, optionally
// restricted to a category context. Duplicate strings are skipped by the
// suggester itself.
func (e *Engine) Suggest(ctx context.Context, prefix string, category *string, size int) ([]string, error) {
	if size <= 0 || size > domain.MaxSuggestions {
		size = domain.MaxSuggestions
	}

	var esResp esSuggestResponse
	if err := e.search(ctx, "suggest", buildSuggestQuery(prefix, category, size), &esResp); err != nil {
		return nil, err
	}

	names := make([]string, 0, size)
	for _, entry := range esResp.Suggest[suggestName] {
		for _, opt := range entry.Options {
			names = append(names, opt.Text)
		}
	}
	return names, nil
}

func buildSuggestQuery(prefix string, category *string, size int) map[string]interface{} {
	completion := map[string]interface{}{
		"field":           "suggest",
		"size":            size,
		"skip_duplicates": true,
		"fuzzy": map[string]interface{}{
			"fuzziness": "AUTO",
		},
	}
	if category != nil {
		completion["contexts"] = map[string]interface{}{
			suggestContext: []string{*category},
		}
	}

	return map[string]interface{}{
		"_source": false,
		"suggest": map[string]interface{}{
			suggestName: map[string]interface{}{
				"prefix":     prefix,
				"completion": completion,
			},
		},
	}
}
