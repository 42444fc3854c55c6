package correction

import (
	"context"
	"testing"

	"service-intake/internal/catalog"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(&catalog.Seed{
		Services: []models.Service{
			{Code: "plomberie", Name: "Plomberie", Synonyms: []string{"plombier", "fuite"}},
			{Code: "electricite", Name: "Électricité", Synonyms: []string{"électricien"}},
			{Code: "menage", Name: "Ménage", Synonyms: []string{"nettoyage"}},
		},
		Zones: []models.Zone{
			{Code: "bonamoussadi", Name: "Bonamoussadi", Level: models.ZoneDistrict},
			{Code: "akwa", Name: "Akwa", Level: models.ZoneDistrict},
		},
	})
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1-1.0/9, Similarity("plombrie", "plomberie"), 1e-9)
	assert.Equal(t, 1.0, Similarity("Akwa", "akwa"))
	assert.Equal(t, 0.0, Similarity("", "akwa"))
	assert.Less(t, Similarity("menage", "plomberie"), DefaultThreshold)
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 1.0/3, WordOverlap("fuite eau", "fuite robinet"), 1e-9)
	assert.Equal(t, 0.0, WordOverlap("", ""))
}

func TestBestServiceMatch(t *testing.T) {
	e := NewEngine(testCatalog(), 0, logger.NewTestLogger(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "typo in code", input: "plombrie", want: "plomberie", found: true},
		{name: "synonym", input: "electricien", want: "electricite", found: true},
		{name: "accent free name", input: "menag", want: "menage", found: true},
		{name: "unrelated", input: "jardinage", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok, err := e.BestServiceMatch(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, m.Code)
				assert.GreaterOrEqual(t, m.Similarity, DefaultThreshold)
			}
		})
	}
}

func TestBestZoneMatch(t *testing.T) {
	e := NewEngine(testCatalog(), 0.6, logger.NewNoOpLogger())

	m, ok, err := e.BestZoneMatch(context.Background(), "bonamousadi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bonamoussadi", m.Code)
	assert.InDelta(t, Similarity("bonamousadi", "bonamoussadi"), m.Similarity, 1e-9)

	_, ok, err = e.BestZoneMatch(context.Background(), "yaounde")
	require.NoError(t, err)
	assert.False(t, ok)
}
