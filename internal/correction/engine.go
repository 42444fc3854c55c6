// Package correction resolves near-miss service and zone codes against the catalog.
package correction

import (
	"context"
	"strings"

	"service-intake/internal/catalog"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/textutil"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

const DefaultThreshold = 0.6

var levenshtein = func() *metrics.Levenshtein {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return m
}()

// Similarity is the normalized Levenshtein similarity of a and b, in [0,1].
func Similarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, levenshtein)
}

// WordOverlap is the Jaccard similarity of the lowercased token sets.
func WordOverlap(a, b string) float64 {
	return textutil.Jaccard(a, b)
}

// Match is the closest catalog entry for a code.
type Match struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

type Engine struct {
	catalog   catalog.Catalog
	threshold float64
	logger    logger.Logger
}

func NewEngine(cat catalog.Catalog, threshold float64, log logger.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		catalog:   cat,
		threshold: threshold,
		logger:    logger.Component(log, "correction"),
	}
}

func (e *Engine) Threshold() float64 {
	return e.threshold
}

// BestServiceMatch compares code against every service code, name and synonym
// and returns the service with the highest similarity at or above the threshold.
func (e *Engine) BestServiceMatch(ctx context.Context, code string) (Match, bool, error) {
	services, err := e.catalog.ListServices(ctx)
	if err != nil {
		return Match{}, false, err
	}

	var best Match
	for _, svc := range services {
		score := bestOf(code, append([]string{svc.Code, svc.Name}, svc.Synonyms...))
		if score > best.Similarity {
			best = Match{Code: svc.Code, Name: svc.Name, Similarity: score}
		}
	}
	return e.accept(code, "service", best)
}

func (e *Engine) BestZoneMatch(ctx context.Context, code string) (Match, bool, error) {
	zones, err := e.catalog.ListZones(ctx)
	if err != nil {
		return Match{}, false, err
	}

	var best Match
	for _, z := range zones {
		score := bestOf(code, []string{z.Code, z.Name})
		if score > best.Similarity {
			best = Match{Code: z.Code, Name: z.Name, Similarity: score}
		}
	}
	return e.accept(code, "zone", best)
}

func (e *Engine) accept(input, entity string, best Match) (Match, bool, error) {
	if best.Code == "" || best.Similarity < e.threshold {
		e.logger.Debug("no fuzzy match", map[string]interface{}{
			"entity": entity,
			"input":  input,
			"best":   best.Similarity,
		})
		return Match{}, false, nil
	}
	e.logger.Debug("fuzzy match", map[string]interface{}{
		"entity":     entity,
		"input":      input,
		"suggestion": best.Code,
		"similarity": best.Similarity,
	})
	return best, true, nil
}

func bestOf(input string, candidates []string) float64 {
	best := 0.0
	for _, c := range candidates {
		if s := Similarity(input, c); s > best {
			best = s
		}
	}
	return best
}
