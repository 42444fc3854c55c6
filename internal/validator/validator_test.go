package validator

import (
	"context"
	"testing"

	"service-intake/internal/audit"
	"service-intake/internal/catalog"
	"service-intake/internal/catalog/catalogtest"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/correction"
	"service-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T, cat catalog.Catalog) (*Validator, *audit.MemorySink) {
	t.Helper()
	log := logger.NewTestLogger(t)
	sink := audit.NewMemorySink()
	return New(cat, correction.NewEngine(cat, 0.6, log), sink, Options{}, log), sink
}

func price(v float64) *float64 { return &v }

func TestValidate_ExactMatch(t *testing.T) {
	v, sink := newValidator(t, catalogtest.New())

	res, err := v.Validate(context.Background(), models.Extraction{
		ServiceCode: "plomberie",
		ZoneCode:    "bonamoussadi",
		Confidence:  0.9,
	}, "", Context{UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Corrections)
	assert.Equal(t, 0.9, res.ConfidenceScore)
	assert.Nil(t, res.CorrectedData)

	logs := sink.Validations()
	require.Len(t, logs, 1)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.True(t, logs[0].IsValid)
}

func TestValidate_TypoAutoCorrected(t *testing.T) {
	v, sink := newValidator(t, catalogtest.New())

	res, err := v.Validate(context.Background(), models.Extraction{
		ServiceCode: "plombrie",
		ZoneCode:    "bonamoussadi",
		Confidence:  0.95,
	}, "plombrie fuite bonamoussadi", Context{})
	require.NoError(t, err)

	require.Len(t, res.Corrections, 1)
	c := res.Corrections[0]
	assert.Equal(t, models.ServiceCodeCorrection, c.Kind)
	assert.Equal(t, "plombrie", c.Original)
	assert.Equal(t, "plomberie", c.Suggestion)
	assert.InDelta(t, correction.Similarity("plombrie", "plomberie"), c.Confidence, 1e-9)
	assert.InDelta(t, 0.89, c.Confidence, 0.01)

	assert.Equal(t, []string{string(models.SemanticError)}, res.ErrorKinds())
	assert.InDelta(t, 0.95*0.8+0.1*c.Confidence, res.ConfidenceScore, 1e-9)
	assert.Greater(t, res.ConfidenceScore, DefaultAutoCorrectThreshold)

	require.NotNil(t, res.CorrectedData)
	assert.Equal(t, "plomberie", res.CorrectedData.ServiceCode)
	assert.Equal(t, "bonamoussadi", res.CorrectedData.ZoneCode)

	require.Len(t, sink.Validations(), 1)
	assert.Equal(t, 1, sink.Validations()[0].CorrectionCount)
}

func TestValidate_LowConfidenceCorrectionIsAdvisory(t *testing.T) {
	v, _ := newValidator(t, catalogtest.New())

	res, err := v.Validate(context.Background(), models.Extraction{
		ServiceCode: "plombrie",
		Confidence:  0.5,
	}, "", Context{})
	require.NoError(t, err)

	assert.True(t, res.IsValid)
	assert.Nil(t, res.CorrectedData)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, models.SimilarService, res.Suggestions[0].Kind)
	assert.Equal(t, "plomberie", res.Suggestions[0].ServiceCode)
}

func TestValidate_ZoneCorrection(t *testing.T) {
	v, _ := newValidator(t, catalogtest.New())

	res, err := v.Validate(context.Background(), models.Extraction{
		ServiceCode: "plomberie",
		ZoneCode:    "bonamousadi",
		Confidence:  0.9,
	}, "", Context{})
	require.NoError(t, err)

	require.Len(t, res.Corrections, 1)
	assert.Equal(t, models.ZoneCodeCorrection, res.Corrections[0].Kind)
	require.NotNil(t, res.CorrectedData)
	assert.Equal(t, "bonamoussadi", res.CorrectedData.ZoneCode)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		candidate models.Extraction
		wantKind  models.ValidationErrorKind
		severity  errors.Severity
	}{
		{
			name:      "unknown service",
			candidate: models.Extraction{ServiceCode: "jardinage", Confidence: 0.9},
			wantKind:  models.InvalidServiceCode,
			severity:  errors.SeverityHigh,
		},
		{
			name:      "unknown zone",
			candidate: models.Extraction{ZoneCode: "garoua", Confidence: 0.9},
			wantKind:  models.InvalidZoneCode,
			severity:  errors.SeverityHigh,
		},
		{
			name:      "service not offered in zone",
			candidate: models.Extraction{ServiceCode: "climatisation", ZoneCode: "bonamoussadi", Confidence: 0.9},
			wantKind:  models.ZoneServiceMismatch,
			severity:  errors.SeverityMedium,
		},
		{
			name:      "price above range",
			candidate: models.Extraction{ServiceCode: "plomberie", PriceEstimate: price(60001), Confidence: 0.9},
			wantKind:  models.InvalidPriceRange,
			severity:  errors.SeverityMedium,
		},
		{
			name:      "price below range",
			candidate: models.Extraction{ServiceCode: "plomberie", PriceEstimate: price(2499), Confidence: 0.9},
			wantKind:  models.InvalidPriceRange,
			severity:  errors.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newValidator(t, catalogtest.New())
			res, err := v.Validate(context.Background(), tt.candidate, "", Context{})
			require.NoError(t, err)

			assert.False(t, res.IsValid)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.wantKind, res.Errors[0].Kind)
			assert.Equal(t, tt.severity, res.Errors[0].Severity)
			assert.InDelta(t, 0.9*severityFactor[tt.severity], res.ConfidenceScore, 1e-9)
		})
	}
}

func TestValidate_PriceBoundsInclusive(t *testing.T) {
	v, _ := newValidator(t, catalogtest.New())
	for _, p := range []float64{2500, 60000} {
		res, err := v.Validate(context.Background(), models.Extraction{
			ServiceCode:   "plomberie",
			PriceEstimate: price(p),
			Confidence:    0.9,
		}, "", Context{})
		require.NoError(t, err)
		assert.True(t, res.IsValid, "price %v", p)
	}
}

func TestValidate_SemanticAlternatives(t *testing.T) {
	v, _ := newValidator(t, catalogtest.New())

	res, err := v.Validate(context.Background(), models.Extraction{
		ServiceCode: "menage",
		Confidence:  0.9,
	}, "panne de courant électricien", Context{})
	require.NoError(t, err)

	assert.Equal(t, []string{string(models.SemanticError)}, res.ErrorKinds())
	require.NotEmpty(t, res.Suggestions)
	assert.LessOrEqual(t, len(res.Suggestions), 3)
	assert.Equal(t, "electricite", res.Suggestions[0].ServiceCode)
	for _, s := range res.Suggestions {
		assert.NotEqual(t, "menage", s.ServiceCode)
	}
}

func TestConfidence_SeverityOrdering(t *testing.T) {
	single := func(s errors.Severity) float64 {
		return Confidence(0.9, []models.ValidationError{{Severity: s}}, nil)
	}
	assert.Less(t, single(errors.SeverityCritical), single(errors.SeverityHigh))
	assert.Less(t, single(errors.SeverityHigh), single(errors.SeverityMedium))
	assert.Less(t, single(errors.SeverityMedium), single(errors.SeverityLow))
	assert.Less(t, single(errors.SeverityLow), 0.9)
}

func TestConfidence_OrderIndependent(t *testing.T) {
	a := []models.ValidationError{
		{Severity: errors.SeverityMedium},
		{Severity: errors.SeverityHigh},
		{Severity: errors.SeverityLow},
		{Severity: errors.SeverityCritical},
	}
	b := []models.ValidationError{a[2], a[0], a[3], a[1]}
	corrections := []models.Correction{{Confidence: 0.7}, {Confidence: 0.9}}

	assert.Equal(t, Confidence(0.8, a, corrections), Confidence(0.8, b, corrections))
}

func TestConfidence_Clamped(t *testing.T) {
	assert.Equal(t, 1.0, Confidence(0.98, nil, []models.Correction{{Confidence: 1}}))
	assert.Equal(t, 0.0, Confidence(-0.2, nil, nil))
}

type brokenCatalog struct {
	catalog.Catalog
}

func (brokenCatalog) GetService(context.Context, string) (models.Service, error) {
	return models.Service{}, errors.NewDatabaseError("get service", assert.AnError)
}

func TestValidate_CatalogFailurePropagates(t *testing.T) {
	v, sink := newValidator(t, brokenCatalog{Catalog: catalogtest.New()})

	_, err := v.Validate(context.Background(), models.Extraction{ServiceCode: "plomberie"}, "", Context{})
	require.Error(t, err)
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))
	assert.Empty(t, sink.Validations())
}
