// Package catalog is the read-mostly reference store of services, zones and
// service availability per zone.
package catalog

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/textutil"
	"service-intake/internal/models"
)

var ErrNotFound = stderrors.New("catalog entry not found")

type ServiceMatch struct {
	Service models.Service `json:"service"`
	Score   float64        `json:"score"`
}

type Catalog interface {
	GetService(ctx context.Context, code string) (models.Service, error)
	GetZone(ctx context.Context, code string) (models.Zone, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListZones(ctx context.Context) ([]models.Zone, error)
	SearchServices(ctx context.Context, query string, limit int) ([]ServiceMatch, error)
	IsServiceAvailable(ctx context.Context, serviceCode, zoneCode string) (bool, error)
	ZoneAvailability(ctx context.Context, zoneCode string) ([]models.Availability, error)
}

// Searcher ranks services for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]ServiceMatch, error)
}

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func notFound(resource, code string) error {
	se := errors.NewResourceNotFoundError(resource, code)
	se.Err = ErrNotFound
	return se
}

// ScoreServices ranks services by weighted token hits (name 3, synonyms 2,
// description 1), normalized by the best score. Zero scores are dropped.
func ScoreServices(services []models.Service, query string, limit int) []ServiceMatch {
	queryTokens := textutil.TokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var matches []ServiceMatch
	best := 0.0
	for _, svc := range services {
		score := 3*hits(queryTokens, svc.Name+" "+svc.Code) +
			2*hits(queryTokens, strings.Join(svc.Synonyms, " ")) +
			hits(queryTokens, svc.Description)
		if score == 0 {
			continue
		}
		if score > best {
			best = score
		}
		matches = append(matches, ServiceMatch{Service: svc, Score: score})
	}

	for i := range matches {
		matches[i].Score /= best
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Service.Code < matches[j].Service.Code
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func hits(query map[string]struct{}, text string) float64 {
	n := 0.0
	for t := range textutil.TokenSet(text) {
		if _, ok := query[t]; ok {
			n++
		}
	}
	return n
}
