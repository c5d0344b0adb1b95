// Package memory provides an in-process SearchEngine that evaluates the same
// analysis tables, ranking rules and facets as the Elasticsearch engine.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/agrilogistic/search/internal/analysis"
	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
)

// Text fields of a document as they are analyzed at index time.
const (
	fieldName         = "name"
	fieldAutocomplete = "name.autocomplete"
	fieldDescription  = "description"
	fieldShortDesc    = "shortDescription"
	fieldTags         = "tags.text"
	fieldCategory     = "category.text"
	fieldSellerName   = "sellerName"
)

// entry is a stored document with its analyzed fields.
type entry struct {
	doc    domain.ProductDocument
	seq    uint64
	fields map[string][]string
}

// Engine is an in-memory implementation of the SearchEngine interface.
// Writes are visible immediately. Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	docs     map[string]*entry
	nextSeq  uint64
	analyzer *analysis.Analyzer
	opts     engine.Options
	logger   *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

var errMissingID = errors.New(engine.MissingID)

// New creates a new in-memory search engine.
func New(analyzer *analysis.Analyzer, opts engine.Options, logger *slog.Logger) *Engine {
	return &Engine{
		docs:     make(map[string]*entry),
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
	}
}

// EnsureIndex is a no-op; the in-memory index always exists.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	return checkContext(ctx, "memory ensure index")
}

// Ping always succeeds unless ctx is done.
func (e *Engine) Ping(ctx context.Context) error {
	return checkContext(ctx, "memory ping")
}

// Index adds or replaces a single document.
func (e *Engine) Index(ctx context.Context, doc *domain.ProductDocument, _ engine.WriteOptions) error {
	if err := checkContext(ctx, "memory index"); err != nil {
		return err
	}
	if strings.TrimSpace(doc.ID) == "" {
		return apperrors.IndexWriteFailed("", errMissingID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.put(*doc)
	e.logger.Debug("indexed product", "id", doc.ID, "name", doc.Name)
	return nil
}

// Delete removes a document by ID. Absent IDs are logged and ignored.
func (e *Engine) Delete(ctx context.Context, id string, _ engine.WriteOptions) error {
	if err := checkContext(ctx, "memory delete"); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.docs[id]; !ok {
		e.logger.Info("delete of absent product ignored", "id", id)
		return nil
	}
	delete(e.docs, id)
	e.logger.Debug("deleted product", "id", id)
	return nil
}

// BulkIndex adds or replaces many documents; documents without an ID fail
// individually.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.ProductDocument, _ engine.WriteOptions) (*domain.BulkResult, error) {
	if err := checkContext(ctx, "memory bulk index"); err != nil {
		return nil, err
	}

	result := domain.NewBulkResult()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range docs {
		if strings.TrimSpace(docs[i].ID) == "" {
			result.Failed = append(result.Failed, domain.BulkFailure{Position: i, Reason: engine.MissingID})
			continue
		}
		e.put(docs[i])
		result.Succeeded = append(result.Succeeded, docs[i].ID)
	}
	e.logger.Debug("bulk indexed products",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result, nil
}

// Len returns the number of stored documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// put stores doc under its ID, keeping the original insertion sequence of a
// replaced document. Caller must hold the write lock.
func (e *Engine) put(doc domain.ProductDocument) {
	seq := e.nextSeq
	if prev, ok := e.docs[doc.ID]; ok {
		seq = prev.seq
	} else {
		e.nextSeq++
	}
	e.docs[doc.ID] = &entry{doc: doc, seq: seq, fields: e.analyze(&doc)}
}

func (e *Engine) analyze(doc *domain.ProductDocument) map[string][]string {
	a := e.analyzer
	return map[string][]string{
		fieldName:         a.IndexTerms(doc.Name),
		fieldAutocomplete: a.EdgeNGrams(doc.Name),
		fieldDescription:  a.IndexTerms(deref(doc.Description)),
		fieldShortDesc:    a.IndexTerms(deref(doc.ShortDescription)),
		fieldTags:         a.IndexTerms(strings.Join(doc.Tags, " ")),
		fieldCategory:     a.IndexTerms(doc.Category),
		fieldSellerName:   a.IndexTerms(deref(doc.SellerName)),
	}
}

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailable(op, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
