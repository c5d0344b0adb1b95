package elasticsearch

import (
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// ClientConfig holds the connection settings of the Elasticsearch client.
type ClientConfig struct {
	Addresses  []string
	Username   string
	Password   string
	MaxRetries int
}

// NewClient builds a client. The caller owns it and passes it to New.
func NewClient(cfg ClientConfig) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}
	return client, nil
}
