// Package suggestion generates ranked alternatives when a request cannot be
// resolved automatically.
package suggestion

import (
	"context"
	"sort"
	"time"

	"service-intake/internal/catalog"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/metrics"
	"service-intake/internal/models"

	"golang.org/x/sync/errgroup"
)

var typeWeights = map[models.SuggestionKind]float64{
	models.AlternativeService:   1.0,
	models.NearbyZone:           0.9,
	models.HistoricalPreference: 0.85,
	models.SimilarService:       0.8,
	models.AvailabilityBased:    0.75,
	models.PriceBased:           0.7,
	models.PopularService:       0.6,
}

var priorityMultipliers = map[models.Priority]float64{
	models.PriorityLow:    1.0,
	models.PriorityMedium: 1.2,
	models.PriorityHigh:   1.5,
	models.PriorityUrgent: 2.0,
}

// AllKinds is the strategy order used when a request names none.
var AllKinds = []models.SuggestionKind{
	models.AlternativeService,
	models.NearbyZone,
	models.SimilarService,
	models.PopularService,
	models.HistoricalPreference,
	models.PriceBased,
	models.AvailabilityBased,
}

type Request struct {
	Query    string
	ZoneCode string
	UserID   string
	// Budget in XAF; zero means unknown. Bracket wins when both are set.
	Budget  float64
	Bracket Bracket
	Kinds   []models.SuggestionKind
}

type Config struct {
	MaxSuggestions         int
	NearbyRadiusKm         float64
	SimilarThreshold       float64
	AvailabilityMaxMinutes float64
	HistoryMinCount        int
}

func (c *Config) defaults() {
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = 10
	}
	if c.NearbyRadiusKm <= 0 {
		c.NearbyRadiusKm = 25
	}
	if c.SimilarThreshold <= 0 {
		c.SimilarThreshold = 0.3
	}
	if c.AvailabilityMaxMinutes <= 0 {
		c.AvailabilityMaxMinutes = 60
	}
	if c.HistoryMinCount <= 0 {
		c.HistoryMinCount = 2
	}
}

type strategy func(ctx context.Context, req Request) ([]models.Suggestion, error)

type Engine struct {
	catalog    catalog.Catalog
	history    History
	cfg        Config
	strategies map[models.SuggestionKind]strategy
	logger     logger.Logger
}

func NewEngine(cat catalog.Catalog, history History, cfg Config, log logger.Logger) *Engine {
	cfg.defaults()
	e := &Engine{
		catalog: cat,
		history: history,
		cfg:     cfg,
		logger:  logger.Component(log, "suggestion"),
	}
	e.strategies = map[models.SuggestionKind]strategy{
		models.AlternativeService:   e.alternativeServices,
		models.NearbyZone:           e.nearbyZones,
		models.SimilarService:       e.similarServices,
		models.PopularService:       e.popularServices,
		models.HistoricalPreference: e.historicalPreferences,
		models.PriceBased:           e.priceBased,
		models.AvailabilityBased:    e.availabilityBased,
	}
	return e
}

// Generate runs the requested strategies concurrently and ranks their output.
// A failing strategy is logged and contributes nothing.
func (e *Engine) Generate(ctx context.Context, req Request) (models.SuggestionResponse, error) {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	results := make([][]models.Suggestion, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		run, ok := e.strategies[kind]
		if !ok {
			continue
		}
		g.Go(func() error {
			out, err := run(gctx, req)
			if err != nil {
				e.logger.Warn("suggestion strategy failed", map[string]interface{}{
					"strategy": string(kind),
					"error":    err,
				})
				return nil
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.SuggestionResponse{}, err
	}

	var all []models.Suggestion
	for _, r := range results {
		all = append(all, r...)
	}
	resp := Rank(all, e.cfg.MaxSuggestions)

	for kind, n := range resp.ByKind {
		metrics.SuggestionsGenerated.WithLabelValues(string(kind)).Add(float64(n))
	}
	e.logger.Debug("suggestions generated", map[string]interface{}{
		"userId":     req.UserID,
		"candidates": len(all),
		"returned":   resp.TotalCount,
		"confidence": resp.RecommendationConfidence,
	})
	return resp, nil
}

// Rank scores suggestions by confidence x type weight x priority multiplier,
// keeps the best limit and summarizes them.
func Rank(in []models.Suggestion, limit int) models.SuggestionResponse {
	seen := make(map[string]bool, len(in))
	ranked := make([]models.Suggestion, 0, len(in))
	for _, s := range in {
		key := string(s.Kind) + "|" + s.ServiceCode + "|" + s.ZoneCode
		if seen[key] {
			continue
		}
		seen[key] = true

		mult, ok := priorityMultipliers[s.Priority]
		if !ok {
			mult = 1
		}
		s.Score = s.Confidence * typeWeights[s.Kind] * mult
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	resp := models.SuggestionResponse{
		Suggestions: ranked,
		TotalCount:  len(ranked),
		ByKind:      make(map[models.SuggestionKind]int),
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range ranked {
		resp.ByKind[s.Kind]++
	}

	top := ranked
	if len(top) > 5 {
		top = top[:5]
	}
	if len(top) > 0 {
		sum := 0.0
		for _, s := range top {
			sum += s.Confidence
		}
		coverage := float64(resp.TotalCount) / 10
		if coverage > 1 {
			coverage = 1
		}
		resp.RecommendationConfidence = sum / float64(len(top)) * coverage
	}
	return resp
}

func priorityFor(confidence float64) models.Priority {
	switch {
	case confidence >= 0.8:
		return models.PriorityHigh
	case confidence >= 0.5:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}
