package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"service-intake/internal/common/errors"
	"service-intake/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticSearcher ranks services with a multi_match query over the services index.
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSearcher(client *elasticsearch.Client, index string) *ElasticSearcher {
	return &ElasticSearcher{client: client, index: index}
}

type searchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			Score  float64        `json:"_score"`
			Source models.Service `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildSearchQuery(query string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^3", "synonyms^2", "description"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
}

func (s *ElasticSearcher) Search(ctx context.Context, query string, limit int) ([]ServiceMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	body, err := json.Marshal(buildSearchQuery(query, limit))
	if err != nil {
		return nil, errors.NewSystemError(err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, errors.NewNetworkError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewDatabaseError("search services", fmt.Errorf("elasticsearch: %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewDatabaseError("decode search response", err)
	}

	matches := make([]ServiceMatch, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		score := hit.Score
		if parsed.Hits.MaxScore > 0 {
			score /= parsed.Hits.MaxScore
		}
		matches = append(matches, ServiceMatch{Service: hit.Source, Score: score})
	}
	return matches, nil
}

// IndexServices writes services into the index keyed by code.
func (s *ElasticSearcher) IndexServices(ctx context.Context, services []models.Service) error {
	for _, svc := range services {
		doc, err := json.Marshal(svc)
		if err != nil {
			return errors.NewSystemError(err)
		}
		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: svc.Code,
			Body:       bytes.NewReader(doc),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return errors.NewNetworkError("elasticsearch", err)
		}
		res.Body.Close()
		if res.IsError() {
			return errors.NewDatabaseError("index service "+svc.Code, fmt.Errorf("elasticsearch: %s", res.Status()))
		}
	}
	return nil
}
