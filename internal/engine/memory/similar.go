package memory

import (
	"context"
	"math"
	"sort"

	"github.com/agrilogistic/search/internal/domain"
)

// similarityFields are the fields salient terms are drawn from.
var similarityFields = []string{fieldName, fieldDescription, fieldTags, fieldCategory}

// minShouldMatchRatio is the share of selected terms a candidate must contain.
const minShouldMatchRatio = 0.3

type weightedTerm struct {
	term   string
	weight float64
}

// MoreLikeThis ranks other documents by the salient terms they share with the
// indexed document id.
func (e *Engine) MoreLikeThis(ctx context.Context, id string, limit int) ([]domain.ProductDocument, error) {
	if err := checkContext(ctx, "memory more like this"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = domain.DefaultSimilarLimit
	}
	limit = min(limit, domain.MaxSimilarLimit)

	e.mu.RLock()
	defer e.mu.RUnlock()

	anchor, ok := e.docs[id]
	if !ok {
		return []domain.ProductDocument{}, nil
	}

	termSets := make(map[string]map[string]bool, len(e.docs))
	for docID, en := range e.docs {
		termSets[docID] = similarityTerms(en)
	}

	tf := make(map[string]int)
	for _, f := range similarityFields {
		for _, t := range anchor.fields[f] {
			tf[t]++
		}
	}

	params := e.opts.Similarity
	n := float64(len(e.docs))
	selected := make([]weightedTerm, 0, len(tf))
	for term, freq := range tf {
		if freq < params.MinTermFreq {
			continue
		}
		df := 0
		for _, set := range termSets {
			if set[term] {
				df++
			}
		}
		if df < params.MinDocFreq {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		selected = append(selected, weightedTerm{term: term, weight: float64(freq) * idf})
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].weight != selected[j].weight {
			return selected[i].weight > selected[j].weight
		}
		return selected[i].term < selected[j].term
	})
	if params.MaxQueryTerms > 0 && len(selected) > params.MaxQueryTerms {
		selected = selected[:params.MaxQueryTerms]
	}
	if len(selected) == 0 {
		return []domain.ProductDocument{}, nil
	}
	required := max(1, int(float64(len(selected))*minShouldMatchRatio))

	var hits []hit
	for docID, en := range e.docs {
		if docID == id {
			continue
		}
		matched, score := 0, 0.0
		for _, wt := range selected {
			if termSets[docID][wt.term] {
				matched++
				score += wt.weight
			}
		}
		if matched >= required {
			hits = append(hits, hit{entry: en, score: score})
		}
	}
	sortHits(hits, domain.SortFieldScore, domain.SortDesc)

	out := make([]domain.ProductDocument, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, h.doc)
	}
	return out, nil
}

func similarityTerms(en *entry) map[string]bool {
	set := make(map[string]bool)
	for _, f := range similarityFields {
		for _, t := range en.fields[f] {
			set[t] = true
		}
	}
	return set
}
