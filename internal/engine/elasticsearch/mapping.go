package elasticsearch

import (
	"encoding/json"
	"strings"

	"github.com/agrilogistic/search/internal/analysis"
)

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "agrilogistic_products"

// Analyzer names declared in the index settings.
const (
	analyzerText               = "catalog_text"
	analyzerSearch             = "catalog_search"
	analyzerAutocomplete       = "autocomplete_index"
	analyzerAutocompleteSearch = "autocomplete_search"
)

// suggestContext is the completion context products are scoped by.
const suggestContext = "category"

// buildIndexBody returns the settings and mappings of the products index. The
// analysis chain is generated from the same tables the in-process analyzer
// uses; synonyms are expanded at index time only.
func buildIndexBody(t *analysis.Tables, shards, replicas int) ([]byte, error) {
	synonyms := make([]string, 0, len(t.Synonyms))
	for _, group := range t.Synonyms {
		synonyms = append(synonyms, strings.Join(group, ", "))
	}

	baseChain := []string{"catalog_elision", "lowercase", "catalog_stop", "catalog_stemmer"}
	body := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
			"analysis": map[string]interface{}{
				"filter": map[string]interface{}{
					"catalog_elision": map[string]interface{}{
						"type":          "elision",
						"articles_case": true,
						"articles":      t.Elisions,
					},
					"catalog_stop": map[string]interface{}{
						"type":      "stop",
						"stopwords": t.Stopwords,
					},
					"catalog_stemmer": map[string]interface{}{
						"type":     "stemmer",
						"language": t.Stemmer.Name,
					},
					"catalog_synonyms": map[string]interface{}{
						"type":     "synonym",
						"synonyms": synonyms,
					},
				},
				"tokenizer": map[string]interface{}{
					"autocomplete_tokenizer": map[string]interface{}{
						"type":        "edge_ngram",
						"min_gram":    t.Autocomplete.MinGram,
						"max_gram":    t.Autocomplete.MaxGram,
						"token_chars": []string{"letter", "digit"},
					},
				},
				"analyzer": map[string]interface{}{
					analyzerText: map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    append(append([]string{}, baseChain...), "catalog_synonyms"),
					},
					analyzerSearch: map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    baseChain,
					},
					analyzerAutocomplete: map[string]interface{}{
						"type":      "custom",
						"tokenizer": "autocomplete_tokenizer",
						"filter":    []string{"lowercase"},
					},
					analyzerAutocompleteSearch: map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"dynamic": false,
			"_meta": map[string]interface{}{
				"analysis_version": t.Version,
				"language":         t.Language,
			},
			"properties": map[string]interface{}{
				"id": keyword(),
				"name": withFields(analyzedText(), map[string]interface{}{
					"exact": map[string]interface{}{"type": "keyword", "ignore_above": 256},
					"autocomplete": map[string]interface{}{
						"type":            "text",
						"analyzer":        analyzerAutocomplete,
						"search_analyzer": analyzerAutocompleteSearch,
					},
				}),
				"description":      analyzedText(),
				"shortDescription": analyzedText(),
				"category":         withFields(keyword(), map[string]interface{}{"text": analyzedText()}),
				"subCategory":      keyword(),
				"tags":             withFields(keyword(), map[string]interface{}{"text": analyzedText()}),
				"price":            typed("double"),
				"originalPrice":    typed("double"),
				"unit":             keyword(),
				"stock":            typed("integer"),
				"sku":              keyword(),
				"images":           map[string]interface{}{"type": "keyword", "index": false},
				"sellerId":         keyword(),
				"sellerName":       withFields(analyzedText(), map[string]interface{}{"exact": keyword()}),
				"rating":           typed("float"),
				"reviewCount":      typed("integer"),
				"certifications":   keyword(),
				"organic":          typed("boolean"),
				"featured":         typed("boolean"),
				"status":           keyword(),
				"createdAt":        typed("date"),
				"updatedAt":        typed("date"),
				"harvestDate":      typed("date"),
				"expiryDate":       typed("date"),
				"suggest": map[string]interface{}{
					"type":     "completion",
					"analyzer": "simple",
					"contexts": []interface{}{
						map[string]interface{}{"name": suggestContext, "type": "category"},
					},
				},
			},
		},
	}
	return json.Marshal(body)
}

func typed(t string) map[string]interface{} {
	return map[string]interface{}{"type": t}
}

func keyword() map[string]interface{} {
	return typed("keyword")
}

func analyzedText() map[string]interface{} {
	return map[string]interface{}{
		"type":            "text",
		"analyzer":        analyzerText,
		"search_analyzer": analyzerSearch,
	}
}

func withFields(base, fields map[string]interface{}) map[string]interface{} {
	base["fields"] = fields
	return base
}
