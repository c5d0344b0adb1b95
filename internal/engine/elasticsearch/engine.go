// Package elasticsearch implements engine.SearchEngine on Elasticsearch 8.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/agrilogistic/search/internal/analysis"
	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
)

// Config holds the index settings the engine declares on creation.
type Config struct {
	Index    string
	Shards   int
	Replicas int
}

// Engine is an Elasticsearch-backed implementation of the SearchEngine interface.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	shards    int
	replicas  int
	analyzer  *analysis.Analyzer
	opts      engine.Options
	logger    *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

var errMissingID = errors.New(engine.MissingID)

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an engine over an injected client. It does not touch the
// cluster; call EnsureIndex at startup.
func New(client *elasticsearch.Client, analyzer *analysis.Analyzer, cfg Config, opts engine.Options, logger *slog.Logger) *Engine {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	return &Engine{
		client:    client,
		indexName: cfg.Index,
		shards:    cfg.Shards,
		replicas:  cfg.Replicas,
		analyzer:  analyzer,
		opts:      opts,
		logger:    logger,
	}
}

// IndexName returns the index the engine reads and writes.
func (e *Engine) IndexName() string { return e.indexName }

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch ping", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return apperrors.StoreUnavailable("elasticsearch ping", fmt.Errorf("unexpected status %s", res.Status()))
	}
	return nil
}

// EnsureIndex checks whether the products index exists and creates it if not.
// An existing index is left untouched, whatever its settings.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch check index", err)
	}
	_ = res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	case http.StatusNotFound:
	default:
		return apperrors.StoreUnavailable("elasticsearch check index", fmt.Errorf("unexpected status %s", res.Status()))
	}

	body, err := buildIndexBody(e.analyzer.Tables(), e.shards, e.replicas)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: marshal mapping: %w", err)
	}
	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch create index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp := decodeError(res)
		// Another replica won the race.
		if errResp.Error.Type == "resource_already_exists_exception" {
			e.logger.Info("elasticsearch index created concurrently", "index", e.indexName)
			return nil
		}
		return classify("create index", res.StatusCode, errResp)
	}

	e.logger.Info("elasticsearch index created",
		"index", e.indexName,
		"analysis_version", e.analyzer.Tables().Version,
	)
	return nil
}

// Index adds or replaces a single product document.
func (e *Engine) Index(ctx context.Context, doc *domain.ProductDocument, opts engine.WriteOptions) error {
	if strings.TrimSpace(doc.ID) == "" {
		return apperrors.IndexWriteFailed("", errMissingID)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.IndexWriteFailed(doc.ID, fmt.Errorf("marshal document: %w", err))
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh(refreshParam(opts)),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp := decodeError(res)
		if isStoreFailure(res.StatusCode) {
			return classify("index", res.StatusCode, errResp)
		}
		return apperrors.IndexWriteFailed(doc.ID, describe("index", res.StatusCode, errResp))
	}

	e.logger.Debug("indexed product", "id", doc.ID, "name", doc.Name)
	return nil
}

// Delete removes a product document by its ID.
// It does not return an error if the document does not exist (404 is ignored).
func (e *Engine) Delete(ctx context.Context, id string, opts engine.WriteOptions) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh(refreshParam(opts)),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch delete", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		e.logger.Info("delete of absent product ignored", "id", id, "index", e.indexName)
		return nil
	}
	if res.IsError() {
		return classify("delete", res.StatusCode, decodeError(res))
	}

	e.logger.Debug("deleted product", "id", id)
	return nil
}

// BulkIndex adds or replaces documents using the bulk NDJSON API in a single
// request. Per-item outcomes are reported in the result; documents without an
// ID fail locally and are never sent.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.ProductDocument, opts engine.WriteOptions) (*domain.BulkResult, error) {
	result := domain.NewBulkResult()
	if len(docs) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	positions := make([]int, 0, len(docs))

	for i := range docs {
		if strings.TrimSpace(docs[i].ID) == "" {
			result.Failed = append(result.Failed, domain.BulkFailure{Position: i, Reason: engine.MissingID})
			continue
		}
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.indexName,
				"_id":    docs[i].ID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(&docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
		positions = append(positions, i)
	}
	if len(positions) == 0 {
		return result, nil
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(refreshParam(opts)),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, apperrors.StoreUnavailable("elasticsearch bulk index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, classify("bulk index", res.StatusCode, decodeError(res))
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}
	if len(bulkResp.Items) != len(positions) {
		return nil, fmt.Errorf("elasticsearch bulk index: %d items in response for %d documents", len(bulkResp.Items), len(positions))
	}

	for k, item := range bulkResp.Items {
		pos := positions[k]
		for _, outcome := range item {
			if outcome.Error != nil || outcome.Status >= http.StatusMultipleChoices {
				reason := fmt.Sprintf("status %d", outcome.Status)
				if outcome.Error != nil {
					reason = fmt.Sprintf("%s: %s", outcome.Error.Type, outcome.Error.Reason)
				}
				result.Failed = append(result.Failed, domain.BulkFailure{Position: pos, ID: docs[pos].ID, Reason: reason})
				continue
			}
			result.Succeeded = append(result.Succeeded, docs[pos].ID)
		}
	}
	sort.SliceStable(result.Failed, func(i, j int) bool {
		return result.Failed[i].Position < result.Failed[j].Position
	})

	e.logger.Info("bulk indexed products",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result, nil
}

// DeleteIndex removes the entire Elasticsearch index.
// It is intended for testing and administrative operations only.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch delete index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return classify("delete index", res.StatusCode, decodeError(res))
	}

	e.logger.Info("elasticsearch index deleted", "index", e.indexName)
	return nil
}

// Refresh makes all pending writes visible to search.
func (e *Engine) Refresh(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.indexName),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch refresh", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return classify("refresh", res.StatusCode, decodeError(res))
	}
	return nil
}

// search runs a search request body and decodes the response into out.
func (e *Engine) search(ctx context.Context, op string, body map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("elasticsearch %s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return apperrors.StoreUnavailable("elasticsearch "+op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp := decodeError(res)
		if isStoreFailure(res.StatusCode) {
			return classify(op, res.StatusCode, errResp)
		}
		return apperrors.InvalidQuery(describe(op, res.StatusCode, errResp).Error())
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}
	return nil
}

func refreshParam(opts engine.WriteOptions) string {
	if opts.Refresh {
		return "wait_for"
	}
	return "false"
}

func decodeError(res *esapi.Response) esErrorResponse {
	var errResp esErrorResponse
	data, _ := io.ReadAll(res.Body)
	_ = json.Unmarshal(data, &errResp)
	return errResp
}

func describe(op string, status int, errResp esErrorResponse) error {
	if errResp.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("elasticsearch %s: unexpected status %d", op, status)
}

// classify maps an error response to the error taxonomy: overload and server
// errors mean the store is unavailable, anything else is reported as is.
func classify(op string, status int, errResp esErrorResponse) error {
	err := describe(op, status, errResp)
	if isStoreFailure(status) {
		return apperrors.StoreUnavailable("elasticsearch "+op, err)
	}
	return err
}

func isStoreFailure(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
