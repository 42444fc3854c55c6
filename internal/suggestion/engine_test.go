package suggestion

import (
	"context"
	"testing"

	"service-intake/internal/catalog"
	"service-intake/internal/catalog/catalogtest"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, cat catalog.Catalog, history History) *Engine {
	t.Helper()
	return NewEngine(cat, history, Config{}, logger.NewTestLogger(t))
}

func codes(suggestions []models.Suggestion, kind models.SuggestionKind) []string {
	var out []string
	for _, s := range suggestions {
		if s.Kind != kind {
			continue
		}
		if s.ServiceCode != "" && kind != models.NearbyZone {
			out = append(out, s.ServiceCode)
		} else {
			out = append(out, s.ZoneCode)
		}
	}
	return out
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 1.9, Haversine(4.0903, 9.7431, 4.079, 9.756), 0.05)
	assert.Equal(t, 0.0, Haversine(4.0, 9.7, 4.0, 9.7))
}

func TestNearbyZones_FiltersByAvailability(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.nearbyZones(context.Background(), Request{Query: "fuite", ZoneCode: "bonamoussadi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"makepe", "deido", "akwa"}, codes(out, models.NearbyZone))
	assert.Equal(t, models.PriorityHigh, out[0].Priority)
	assert.Equal(t, models.PriorityHigh, out[1].Priority)
	assert.Equal(t, models.PriorityMedium, out[2].Priority)
	assert.Equal(t, []string{"plomberie"}, out[0].Metadata["available_services"])
}

func TestNearbyZones_ExcludesSelfAndAscending(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.nearbyZones(context.Background(), Request{ZoneCode: "bonamoussadi"})
	require.NoError(t, err)

	got := codes(out, models.NearbyZone)
	assert.Equal(t, []string{"makepe", "deido", "akwa", "bonapriso"}, got)
	assert.NotContains(t, got, "bonamoussadi")
	assert.NotContains(t, got, "douala")

	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].Metadata["distance_km"].(float64), out[i].Metadata["distance_km"].(float64))
	}
}

func TestNearbyZones_UnknownZone(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)
	_, err := e.nearbyZones(context.Background(), Request{ZoneCode: "garoua"})
	assert.True(t, catalog.IsNotFound(err))
}

func TestPopularServices(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.popularServices(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"menage", "plomberie", "electricite", "climatisation", "menuiserie"}, codes(out, models.PopularService))
}

func TestSimilarServices(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.similarServices(context.Background(), Request{Query: "nettoyage de maison"})
	require.NoError(t, err)
	assert.Equal(t, []string{"menage"}, codes(out, models.SimilarService))
	assert.InDelta(t, 3.0/7, out[0].Confidence, 1e-9)
}

func TestHistoricalPreferences(t *testing.T) {
	ctx := context.Background()
	history := NewMemoryHistory(10)
	for _, code := range []string{"plomberie", "menage", "plomberie", "plomberie"} {
		require.NoError(t, history.Record(ctx, "u1", code))
	}
	e := newEngine(t, catalogtest.New(), history)

	out, err := e.historicalPreferences(ctx, Request{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "plomberie", out[0].ServiceCode)
	assert.InDelta(t, 0.3, out[0].Confidence, 1e-9)

	out, err = e.historicalPreferences(ctx, Request{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPriceBased(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.priceBased(context.Background(), Request{Budget: 8000})
	require.NoError(t, err)
	assert.Equal(t, []string{"menage"}, codes(out, models.PriceBased))

	out, err = e.priceBased(context.Background(), Request{Bracket: BracketMedium})
	require.NoError(t, err)
	assert.Equal(t, []string{"electricite", "plomberie"}, codes(out, models.PriceBased))

	out, err = e.priceBased(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBracketFor(t *testing.T) {
	assert.Equal(t, BracketLow, BracketFor(9999))
	assert.Equal(t, BracketMedium, BracketFor(10000))
	assert.Equal(t, BracketMedium, BracketFor(24999))
	assert.Equal(t, BracketHigh, BracketFor(25000))
}

func TestAvailabilityBased(t *testing.T) {
	e := newEngine(t, catalogtest.New(), nil)

	out, err := e.availabilityBased(context.Background(), Request{ZoneCode: "bonamoussadi"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"electricite", "plomberie"}, codes(out, models.AvailabilityBased))
	for _, s := range out {
		assert.Less(t, s.Metadata["avg_response_minutes"].(float64), 60.0)
	}
}

func TestRank(t *testing.T) {
	in := []models.Suggestion{
		{Kind: models.PopularService, Priority: models.PriorityLow, ServiceCode: "menage", Confidence: 0.9},
		{Kind: models.NearbyZone, Priority: models.PriorityHigh, ZoneCode: "makepe", Confidence: 0.6},
		{Kind: models.AlternativeService, Priority: models.PriorityMedium, ServiceCode: "plomberie", Confidence: 0.3},
		{Kind: models.AlternativeService, Priority: models.PriorityMedium, ServiceCode: "plomberie", Confidence: 0.3},
	}

	resp := Rank(in, 10)
	require.Equal(t, 3, resp.TotalCount)
	assert.Equal(t, models.NearbyZone, resp.Suggestions[0].Kind)
	assert.InDelta(t, 0.6*0.9*1.5, resp.Suggestions[0].Score, 1e-9)
	assert.Equal(t, models.PopularService, resp.Suggestions[1].Kind)
	assert.InDelta(t, 0.9*0.6*1.0, resp.Suggestions[1].Score, 1e-9)
	assert.Equal(t, 1, resp.ByKind[models.AlternativeService])
	assert.InDelta(t, (0.9+0.6+0.3)/3*0.3, resp.RecommendationConfidence, 1e-9)
}

func TestRank_Truncates(t *testing.T) {
	var in []models.Suggestion
	for i := 0; i < 15; i++ {
		in = append(in, models.Suggestion{
			Kind:        models.SimilarService,
			Priority:    models.PriorityLow,
			ServiceCode: string(rune('a' + i)),
			Confidence:  float64(i+1) / 15,
		})
	}
	resp := Rank(in, 10)
	assert.Equal(t, 10, resp.TotalCount)
	assert.Equal(t, "o", resp.Suggestions[0].ServiceCode)
	for i := 1; i < len(resp.Suggestions); i++ {
		assert.GreaterOrEqual(t, resp.Suggestions[i-1].Score, resp.Suggestions[i].Score)
	}
}

type noListing struct {
	catalog.Catalog
}

func (noListing) ListServices(context.Context) ([]models.Service, error) {
	return nil, assert.AnError
}

func TestGenerate_StrategyFailureIsNotFatal(t *testing.T) {
	e := newEngine(t, noListing{Catalog: catalogtest.New()}, nil)

	resp, err := e.Generate(context.Background(), Request{Query: "fuite robinet"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, resp.TotalCount, resp.ByKind[models.AlternativeService])
	assert.Equal(t, "plomberie", resp.Suggestions[0].ServiceCode)
}

func TestGenerate_AllStrategies(t *testing.T) {
	ctx := context.Background()
	history := NewMemoryHistory(10)
	require.NoError(t, history.Record(ctx, "u1", "electricite"))
	require.NoError(t, history.Record(ctx, "u1", "electricite"))
	e := newEngine(t, catalogtest.New(), history)

	resp, err := e.Generate(ctx, Request{Query: "fuite", ZoneCode: "bonamoussadi", UserID: "u1", Budget: 15000})
	require.NoError(t, err)

	assert.LessOrEqual(t, resp.TotalCount, 10)
	assert.Greater(t, resp.RecommendationConfidence, 0.0)
	sum := 0
	for _, n := range resp.ByKind {
		sum += n
	}
	assert.Equal(t, resp.TotalCount, sum)
	assert.NotZero(t, resp.ByKind[models.NearbyZone])
}
