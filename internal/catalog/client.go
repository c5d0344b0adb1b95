// Package catalog reads canonical products from the product service. It is the
// source a full reindex pages through.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/pkg/httpclient"
	"github.com/agrilogistic/search/pkg/httputil"
)

const serviceName = "catalog"

// Config configures the catalog client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client lists products through a retrying, circuit-broken HTTP client.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// New creates a catalog client for the product service at cfg.BaseURL.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog: invalid base url %q", cfg.BaseURL)
	}

	hc := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries >= 0 {
		hc.MaxRetries = cfg.MaxRetries
	}

	return &Client{
		baseURL: base.String(),
		http: httpclient.NewCircuitBreakerClient(
			httpclient.New(hc),
			httpclient.DefaultCircuitBreakerConfig(serviceName),
			logger,
		),
		logger: logger,
	}, nil
}

// ListProducts fetches one page of the catalog. Pages are 1-based.
func (c *Client) ListProducts(ctx context.Context, page, perPage int) (*domain.ProductPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	endpoint := c.baseURL + "/api/v1/products?" + q.Encode()

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list products page %d: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list products page %d: %w", page, httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	var body httputil.PaginatedResponse[domain.CanonicalProduct]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode products page %d: %w", page, err)
	}

	c.logger.DebugContext(ctx, "fetched catalog page",
		slog.Int("page", body.Page),
		slog.Int("total_pages", body.TotalPages),
		slog.Int("products", len(body.Data)),
	)

	return &domain.ProductPage{
		Products:   body.Data,
		Page:       page,
		TotalPages: body.TotalPages,
	}, nil
}
