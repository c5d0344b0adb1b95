package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/agrilogistic/search/internal/engine"
	"github.com/agrilogistic/search/internal/service"
	pkgconfig "github.com/agrilogistic/search/pkg/config"
)

// Search engine implementations selectable with SEARCH_ENGINE.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the search service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"search"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort          int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout    time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"SEARCH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AutocompleteCache time.Duration `env:"SEARCH_AUTOCOMPLETE_CACHE" envDefault:"30s"`
	CORSOrigins       []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofEnabled      bool          `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURLs       []string `env:"ELASTICSEARCH_URLS" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername   string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword   string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex      string   `env:"ELASTICSEARCH_INDEX" envDefault:"agrilogistic_products"`
	ElasticsearchShards     int      `env:"ELASTICSEARCH_SHARDS" envDefault:"1"`
	ElasticsearchReplicas   int      `env:"ELASTICSEARCH_REPLICAS" envDefault:"0"`
	ElasticsearchMaxRetries int      `env:"ELASTICSEARCH_MAX_RETRIES" envDefault:"3"`

	// Indexing and query tuning
	StoreTimeout   time.Duration `env:"SEARCH_STORE_TIMEOUT" envDefault:"5s"`
	BulkBatchSize  int           `env:"SEARCH_BULK_BATCH_SIZE" envDefault:"500"`
	RefreshOnWrite bool          `env:"SEARCH_REFRESH_ON_WRITE" envDefault:"false"`
	SlowThreshold  time.Duration `env:"SEARCH_SLOW_THRESHOLD" envDefault:"1s"`
	AnalysisTables string        `env:"SEARCH_ANALYSIS_TABLES"`

	BoostName         float64 `env:"SEARCH_BOOST_NAME" envDefault:"3"`
	BoostAutocomplete float64 `env:"SEARCH_BOOST_AUTOCOMPLETE" envDefault:"2"`
	BoostTags         float64 `env:"SEARCH_BOOST_TAGS" envDefault:"1.5"`
	BoostDescription  float64 `env:"SEARCH_BOOST_DESCRIPTION" envDefault:"1"`
	BoostSellerName   float64 `env:"SEARCH_BOOST_SELLER_NAME" envDefault:"1"`

	MLTMinTermFreq   int `env:"SEARCH_MLT_MIN_TERM_FREQ" envDefault:"1"`
	MLTMinDocFreq    int `env:"SEARCH_MLT_MIN_DOC_FREQ" envDefault:"1"`
	MLTMaxQueryTerms int `env:"SEARCH_MLT_MAX_QUERY_TERMS" envDefault:"12"`

	// Catalog service, source of full reindexes
	CatalogServiceURL string        `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	CatalogMaxRetries int           `env:"CATALOG_MAX_RETRIES" envDefault:"3"`
	CatalogPageSize   int           `env:"CATALOG_PAGE_SIZE" envDefault:"200"`

	// Kafka
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID      string        `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaMaxRetries   int           `env:"KAFKA_MAX_RETRIES" envDefault:"3"`
	KafkaRetryBackoff time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	KafkaDLQEnabled   bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`

	// Redis backs event deduplication when set; memory is used otherwise.
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects settings the service cannot start with.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return fmt.Errorf("ELASTICSEARCH_URLS is required when SEARCH_ENGINE=%s", EngineElasticsearch)
		}
		if c.ElasticsearchIndex == "" {
			return fmt.Errorf("ELASTICSEARCH_INDEX must not be empty")
		}
		if c.ElasticsearchShards < 1 || c.ElasticsearchReplicas < 0 {
			return fmt.Errorf("invalid index layout: %d shards, %d replicas", c.ElasticsearchShards, c.ElasticsearchReplicas)
		}
	case EngineMemory:
	default:
		return fmt.Errorf("invalid SEARCH_ENGINE %q: want %s or %s", c.SearchEngine, EngineElasticsearch, EngineMemory)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("SEARCH_STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.BulkBatchSize < 1 {
		return fmt.Errorf("SEARCH_BULK_BATCH_SIZE must be positive, got %d", c.BulkBatchSize)
	}
	if c.CatalogPageSize < 1 || c.CatalogPageSize > 1000 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be between 1 and 1000, got %d", c.CatalogPageSize)
	}
	if c.CatalogServiceURL != "" {
		if u, err := url.Parse(c.CatalogServiceURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid CATALOG_SERVICE_URL %q", c.CatalogServiceURL)
		}
	}
	for name, b := range map[string]float64{
		"SEARCH_BOOST_NAME":         c.BoostName,
		"SEARCH_BOOST_AUTOCOMPLETE": c.BoostAutocomplete,
		"SEARCH_BOOST_TAGS":         c.BoostTags,
		"SEARCH_BOOST_DESCRIPTION":  c.BoostDescription,
		"SEARCH_BOOST_SELLER_NAME":  c.BoostSellerName,
	} {
		if b < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.MLTMaxQueryTerms < 1 {
		return fmt.Errorf("SEARCH_MLT_MAX_QUERY_TERMS must be positive, got %d", c.MLTMaxQueryTerms)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %g", c.OTelSampleRate)
	}
	return nil
}

// EngineOptions returns the ranking parameters shared by both engines.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Boosts: engine.Boosts{
			Name:         c.BoostName,
			Autocomplete: c.BoostAutocomplete,
			Tags:         c.BoostTags,
			Description:  c.BoostDescription,
			SellerName:   c.BoostSellerName,
		},
		Similarity: engine.SimilarityParams{
			MinTermFreq:   c.MLTMinTermFreq,
			MinDocFreq:    c.MLTMinDocFreq,
			MaxQueryTerms: c.MLTMaxQueryTerms,
		},
	}
}

// ServiceConfig returns the search service tunables.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		StoreTimeout:           c.StoreTimeout,
		BulkBatchSize:          c.BulkBatchSize,
		RefreshOnWrite:         c.RefreshOnWrite,
		ReindexPageSize:        c.CatalogPageSize,
		SlowOperationThreshold: c.SlowThreshold,
	}
}

// RedisEnabled reports whether event deduplication is shared through Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
