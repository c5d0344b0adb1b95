package elasticsearch

import (
	"context"
	"net/http"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
)

// similarityFields are the fields more-like-this draws salient terms from.
var similarityFields = []string{"name", "description", "tags.text", "category.text"}

// MoreLikeThis returns documents sharing salient terms with the indexed
// document id. A missing anchor yields an empty slice.
func (e *Engine) MoreLikeThis(ctx context.Context, id string, limit int) ([]domain.ProductDocument, error) {
	if limit <= 0 {
		limit = domain.DefaultSimilarLimit
	}
	limit = min(limit, domain.MaxSimilarLimit)

	found, err := e.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		e.logger.Debug("similarity anchor not found", "id", id)
		return []domain.ProductDocument{}, nil
	}

	var esResp esSearchResponse
	if err := e.search(ctx, "more like this", buildMoreLikeThisQuery(e.indexName, id, limit, e.opts.Similarity), &esResp); err != nil {
		return nil, err
	}

	docs := make([]domain.ProductDocument, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}

func (e *Engine) exists(ctx context.Context, id string) (bool, error) {
	res, err := e.client.Exists(e.indexName, id, e.client.Exists.WithContext(ctx))
	if err != nil {
		return false, apperrors.StoreUnavailable("elasticsearch exists", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, classify("exists", res.StatusCode, decodeError(res))
	}
	return true, nil
}

func buildMoreLikeThisQuery(index, id string, limit int, p engine.SimilarityParams) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"more_like_this": map[string]interface{}{
				"fields": similarityFields,
				"like": []interface{}{
					map[string]interface{}{"_index": index, "_id": id},
				},
				"min_term_freq":        p.MinTermFreq,
				"min_doc_freq":         p.MinDocFreq,
				"max_query_terms":      p.MaxQueryTerms,
				"minimum_should_match": "30%",
			},
		},
		"size": limit,
	}
}
