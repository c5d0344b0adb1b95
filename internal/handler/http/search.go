package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	"github.com/agrilogistic/search/internal/service"
	"github.com/agrilogistic/search/pkg/httputil"
	"github.com/agrilogistic/search/pkg/logger"
	"github.com/agrilogistic/search/pkg/validator"
)

const (
	maxIndexBody = 1 << 20
	maxBulkBody  = 32 << 20
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// BulkIndexRequest is the JSON request body for bulk indexing products.
// Products are validated one by one so a bad item fails alone.
type BulkIndexRequest struct {
	Products []domain.CanonicalProduct `json:"products" validate:"required,min=1,max=5000"`
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Autocomplete handles GET /api/v1/search/autocomplete
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := h.service.Autocomplete(r.Context(), q.Get("q"), optionalString(q.Get("category")))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"suggestions": suggestions}})
}

// Similar handles GET /api/v1/search/products/{id}/similar
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.WriteBadRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := h.service.Similar(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"products": docs}})
}

// IndexProduct handles POST /api/v1/search/index. Non-searchable products are
// removed from the index instead of stored.
func (h *SearchHandler) IndexProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIndexBody)

	var product domain.CanonicalProduct
	if err := validator.DecodeAndValidate(r, &product); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	if err := h.service.IndexProduct(r.Context(), &product, writeOptions(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := "indexed"
	if !domain.IsSearchable(product.Status) {
		status = "removed"
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": product.ID, "status": status}})
}

// DeleteProduct handles DELETE /api/v1/search/{id}
func (h *SearchHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteProduct(r.Context(), id, writeOptions(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "deleted"}})
}

// BulkIndex handles POST /api/v1/search/bulk
func (h *SearchHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBody)

	var req BulkIndexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	result, err := h.service.BulkIndex(r.Context(), req.Products, writeOptions(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Reindex handles POST /api/v1/search/reindex. The run continues in the
// background; ?wait=true blocks until it finishes and returns the summary.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		result, err := h.service.Reindex(r.Context())
		if err != nil {
			h.writeReindexError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
		return
	}

	if err := h.service.StartReindex(r.Context(), nil); err != nil {
		h.writeReindexError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).InfoContext(r.Context(), "reindex started in background")
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}

func (h *SearchHandler) writeReindexError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrReindexInProgress):
		writeErrorCode(w, r, http.StatusConflict, "REINDEX_IN_PROGRESS", err.Error())
	case errors.Is(err, service.ErrNoCatalog):
		writeErrorCode(w, r, http.StatusServiceUnavailable, "REINDEX_UNAVAILABLE", err.Error())
	default:
		httputil.WriteError(w, r, err, h.logger)
	}
}

func (h *SearchHandler) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	var valErr *validator.ValidationError
	switch {
	case errors.As(err, &maxErr):
		writeErrorCode(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			"request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
	case errors.As(err, &valErr):
		httputil.WriteError(w, r, err, h.logger)
	default:
		httputil.WriteBadRequest(w, r, "invalid request body: "+err.Error())
	}
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:      code,
			Message:   message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}

func writeOptions(r *http.Request) engine.WriteOptions {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return engine.WriteOptions{Refresh: refresh}
}

// parseSearchRequest maps query parameters onto a SearchRequest. Absent
// parameters stay nil so no filter is applied for them.
func parseSearchRequest(r *http.Request) (*domain.SearchRequest, error) {
	q := r.URL.Query()
	req := &domain.SearchRequest{
		Query:     q.Get("q"),
		Category:  optionalString(q.Get("category")),
		Status:    optionalString(q.Get("status")),
		SellerID:  optionalString(q.Get("seller_id")),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}

	var err error
	if req.Organic, err = optionalBool(q, "organic"); err != nil {
		return nil, err
	}
	if req.Featured, err = optionalBool(q, "featured"); err != nil {
		return nil, err
	}
	if req.MinPrice, err = optionalPrice(q, "min_price"); err != nil {
		return nil, err
	}
	if req.MaxPrice, err = optionalPrice(q, "max_price"); err != nil {
		return nil, err
	}
	if req.Page, err = optionalInt(q, "page"); err != nil {
		return nil, err
	}
	if req.Limit, err = optionalInt(q, "limit"); err != nil {
		return nil, err
	}

	for _, raw := range q["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}
	return req, nil
}

type paramError struct {
	name string
	want string
}

func (e *paramError) Error() string {
	return e.name + " must be " + e.want
}

func optionalString(v string) *string {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}

func optionalBool(q map[string][]string, name string) (*bool, error) {
	v := first(q, name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &paramError{name: name, want: "true or false"}
	}
	return &b, nil
}

func optionalPrice(q map[string][]string, name string) (*float64, error) {
	v := first(q, name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &paramError{name: name, want: "a non-negative number"}
	}
	return &f, nil
}

func optionalInt(q map[string][]string, name string) (int, error) {
	v := first(q, name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, &paramError{name: name, want: "a positive integer"}
	}
	return n, nil
}

func first(q map[string][]string, name string) string {
	if vs := q[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}
