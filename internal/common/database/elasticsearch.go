package database

import (
	"context"
	"fmt"
	"net/http"

	"service-intake/internal/common/config"
	"service-intake/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient backs full-text search over the service catalog.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	Index  string
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 {
		if url := cfg.GetURL(); url != "" {
			addresses = []string{url}
		}
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	})
	if err != nil {
		return nil, errors.NewDatabaseError("create elasticsearch client", err)
	}

	index := cfg.ServicesIndex
	if index == "" {
		index = "services"
	}
	return &ElasticsearchClient{Client: es, Index: index}, nil
}

// Ping checks the cluster answers. A missing services index is not an error:
// searches fall back to the SQL catalog until `intake-admin seed` indexes it.
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return errors.NewNetworkError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewDatabaseError("ping elasticsearch", fmt.Errorf("status %s", res.Status()))
	}
	return nil
}
