package catalog_test

import (
	"context"
	"testing"

	"service-intake/internal/catalog"
	"service-intake/internal/catalog/catalogtest"
	"service-intake/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeed_MatchesFixture(t *testing.T) {
	seed, err := catalog.LoadSeed("../../configs/catalog.yaml")
	require.NoError(t, err)

	fixture := catalogtest.Seed()
	assert.Equal(t, fixture.Services, seed.Services)
	assert.Equal(t, fixture.Zones, seed.Zones)
	assert.Equal(t, fixture.Availability, seed.Availability)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate service", "services:\n  - {code: a, name: A}\n  - {code: a, name: B}\n"},
		{"missing zone code", "zones:\n  - {name: Akwa}\n"},
		{"malformed", "services: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.ParseSeed([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestMemoryCatalog_Lookups(t *testing.T) {
	ctx := context.Background()
	c := catalogtest.New()

	svc, err := c.GetService(ctx, "plomberie")
	require.NoError(t, err)
	assert.Equal(t, "Plomberie", svc.Name)

	_, err = c.GetService(ctx, "plombrie")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	ok, err := c.IsServiceAvailable(ctx, "plomberie", "bonamoussadi")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsServiceAvailable(ctx, "menuiserie", "deido")
	require.NoError(t, err)
	assert.False(t, ok, "inactive availability rows do not count")

	rows, err := c.ZoneAvailability(ctx, "akwa")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestMemoryCatalog_SearchServices(t *testing.T) {
	c := catalogtest.New()

	matches, err := c.SearchServices(context.Background(), "fuite d'eau", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "plomberie", matches[0].Service.Code)
	assert.Equal(t, 1.0, matches[0].Score)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}

	none, err := c.SearchServices(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
