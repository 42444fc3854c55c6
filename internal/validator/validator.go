// Package validator checks an extraction against the catalog, proposes fuzzy
// corrections and recomputes the confidence of the result.
package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"service-intake/internal/audit"
	"service-intake/internal/catalog"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/metrics"
	"service-intake/internal/correction"
	"service-intake/internal/models"
)

const (
	DefaultSemanticThreshold    = 0.7
	DefaultAutoCorrectThreshold = 0.8
	maxSemanticAlternatives     = 3
	correctionBoost             = 0.1
)

var severityFactor = map[errors.Severity]float64{
	errors.SeverityCritical: 0.3,
	errors.SeverityHigh:     0.6,
	errors.SeverityMedium:   0.8,
	errors.SeverityLow:      0.9,
}

// Context carries caller data recorded alongside the validation log.
type Context struct {
	UserID    string
	SessionID string
}

type Options struct {
	SemanticThreshold    float64
	AutoCorrectThreshold float64
}

type Validator struct {
	catalog   catalog.Catalog
	corrector *correction.Engine
	sink      audit.Sink
	opts      Options
	logger    logger.Logger
}

func New(cat catalog.Catalog, corrector *correction.Engine, sink audit.Sink, opts Options, log logger.Logger) *Validator {
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}
	if opts.AutoCorrectThreshold <= 0 {
		opts.AutoCorrectThreshold = DefaultAutoCorrectThreshold
	}
	if sink == nil {
		sink = audit.Discard
	}
	return &Validator{
		catalog:   cat,
		corrector: corrector,
		sink:      sink,
		opts:      opts,
		logger:    logger.Component(log, "validator"),
	}
}

// Validate runs the code, consistency and semantic checks in order. A
// non-nil error means a catalog lookup failed; catalog mismatches are
// reported in the result, never as an error.
func (v *Validator) Validate(ctx context.Context, candidate models.Extraction, query string, vc Context) (models.ValidationResult, error) {
	result := models.ValidationResult{
		Errors:      []models.ValidationError{},
		Corrections: []models.Correction{},
		Suggestions: []models.Suggestion{},
	}

	service, hasService, err := v.checkService(ctx, candidate.ServiceCode, &result)
	if err != nil {
		return result, err
	}
	zone, hasZone, err := v.checkZone(ctx, candidate.ZoneCode, &result)
	if err != nil {
		return result, err
	}

	if hasService && hasZone {
		ok, err := v.catalog.IsServiceAvailable(ctx, service.Code, zone.Code)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Errors = append(result.Errors, models.ValidationError{
				Kind:     models.ZoneServiceMismatch,
				Message:  fmt.Sprintf("Le service %s n'est pas disponible à %s", service.Name, zone.Name),
				Severity: errors.SeverityMedium,
				Field:    "zone_code",
				Value:    zone.Code,
			})
		}
	}

	if hasService && candidate.PriceEstimate != nil {
		price := *candidate.PriceEstimate
		low, high := 0.5*service.MinPrice, 2*service.MaxPrice
		if price < low || price > high {
			result.Errors = append(result.Errors, models.ValidationError{
				Kind:     models.InvalidPriceRange,
				Message:  fmt.Sprintf("Prix %.0f hors de la fourchette %.0f-%.0f", price, low, high),
				Severity: errors.SeverityMedium,
				Field:    "price_estimate",
				Value:    price,
			})
		}
	}

	if hasService && strings.TrimSpace(query) != "" {
		if err := v.checkSemantics(ctx, service, query, &result); err != nil {
			return result, err
		}
	}

	result.ConfidenceScore = Confidence(candidate.Confidence, result.Errors, result.Corrections)
	result.IsValid = len(result.Errors) == 0

	if len(result.Corrections) > 0 {
		if result.ConfidenceScore > v.opts.AutoCorrectThreshold {
			corrected := applyCorrections(candidate, result.Corrections)
			result.CorrectedData = &corrected
			for _, c := range result.Corrections {
				metrics.CorrectionsApplied.WithLabelValues(string(c.Kind)).Inc()
			}
		} else {
			result.Suggestions = append(result.Suggestions, advisory(result.Corrections)...)
		}
	}

	v.record(ctx, candidate, query, vc, result)
	return result, nil
}

func (v *Validator) checkService(ctx context.Context, code string, result *models.ValidationResult) (models.Service, bool, error) {
	if code == "" {
		return models.Service{}, false, nil
	}
	svc, err := v.catalog.GetService(ctx, code)
	if err == nil {
		return svc, true, nil
	}
	if !catalog.IsNotFound(err) {
		return models.Service{}, false, err
	}

	match, ok, err := v.corrector.BestServiceMatch(ctx, code)
	if err != nil {
		return models.Service{}, false, err
	}
	if !ok {
		result.Errors = append(result.Errors, models.ValidationError{
			Kind:     models.InvalidServiceCode,
			Message:  fmt.Sprintf("Service inconnu: %s", code),
			Severity: errors.SeverityHigh,
			Field:    "service_code",
			Value:    code,
		})
		return models.Service{}, false, nil
	}

	result.Corrections = append(result.Corrections, models.Correction{
		Kind:       models.ServiceCodeCorrection,
		Original:   code,
		Suggestion: match.Code,
		Confidence: match.Similarity,
	})
	svc, err = v.catalog.GetService(ctx, match.Code)
	if err != nil {
		return models.Service{}, false, err
	}
	return svc, true, nil
}

func (v *Validator) checkZone(ctx context.Context, code string, result *models.ValidationResult) (models.Zone, bool, error) {
	if code == "" {
		return models.Zone{}, false, nil
	}
	zone, err := v.catalog.GetZone(ctx, code)
	if err == nil {
		return zone, true, nil
	}
	if !catalog.IsNotFound(err) {
		return models.Zone{}, false, err
	}

	match, ok, err := v.corrector.BestZoneMatch(ctx, code)
	if err != nil {
		return models.Zone{}, false, err
	}
	if !ok {
		result.Errors = append(result.Errors, models.ValidationError{
			Kind:     models.InvalidZoneCode,
			Message:  fmt.Sprintf("Zone inconnue: %s", code),
			Severity: errors.SeverityHigh,
			Field:    "zone_code",
			Value:    code,
		})
		return models.Zone{}, false, nil
	}

	result.Corrections = append(result.Corrections, models.Correction{
		Kind:       models.ZoneCodeCorrection,
		Original:   code,
		Suggestion: match.Code,
		Confidence: match.Similarity,
	})
	zone, err = v.catalog.GetZone(ctx, match.Code)
	if err != nil {
		return models.Zone{}, false, err
	}
	return zone, true, nil
}

func (v *Validator) checkSemantics(ctx context.Context, service models.Service, query string, result *models.ValidationResult) error {
	similarity := correction.WordOverlap(query, service.Name+" "+service.Description)
	if similarity >= v.opts.SemanticThreshold {
		return nil
	}

	result.Errors = append(result.Errors, models.ValidationError{
		Kind:     models.SemanticError,
		Message:  fmt.Sprintf("La demande ne correspond pas clairement au service %s", service.Name),
		Severity: errors.SeverityMedium,
		Field:    "service_code",
		Value:    similarity,
	})

	matches, err := v.catalog.SearchServices(ctx, query, maxSemanticAlternatives+1)
	if err != nil {
		return err
	}
	added := 0
	for _, m := range matches {
		if m.Service.Code == service.Code || added == maxSemanticAlternatives {
			continue
		}
		result.Suggestions = append(result.Suggestions, models.Suggestion{
			Kind:        models.AlternativeService,
			Priority:    models.PriorityMedium,
			ServiceCode: m.Service.Code,
			Title:       m.Service.Name,
			Description: m.Service.Description,
			Confidence:  m.Score,
			Reasoning:   "Service proche de la demande",
		})
		added++
	}
	return nil
}

// Confidence applies the severity penalties, most severe first, then the
// correction boosts, clamping after each step.
func Confidence(base float64, errs []models.ValidationError, corrections []models.Correction) float64 {
	severities := make([]errors.Severity, 0, len(errs))
	for _, e := range errs {
		severities = append(severities, e.Severity)
	}
	sort.Slice(severities, func(i, j int) bool { return severities[i] > severities[j] })

	score := clamp(base)
	for _, s := range severities {
		factor, ok := severityFactor[s]
		if !ok {
			factor = severityFactor[errors.SeverityLow]
		}
		score *= factor
	}
	for _, c := range corrections {
		score = clamp(score + correctionBoost*c.Confidence)
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func applyCorrections(e models.Extraction, corrections []models.Correction) models.Extraction {
	out := e
	out.LandmarkReferences = append([]string(nil), e.LandmarkReferences...)
	for _, c := range corrections {
		switch c.Kind {
		case models.ServiceCodeCorrection:
			out.ServiceCode = c.Suggestion
		case models.ZoneCodeCorrection:
			out.ZoneCode = c.Suggestion
		}
	}
	return out
}

func advisory(corrections []models.Correction) []models.Suggestion {
	out := make([]models.Suggestion, 0, len(corrections))
	for _, c := range corrections {
		s := models.Suggestion{
			Priority:   models.PriorityHigh,
			Confidence: c.Confidence,
			Title:      c.Suggestion,
			Reasoning:  fmt.Sprintf("Vouliez-vous dire %s au lieu de %s ?", c.Suggestion, c.Original),
			Metadata:   map[string]interface{}{"original": c.Original},
		}
		switch c.Kind {
		case models.ServiceCodeCorrection:
			s.Kind = models.SimilarService
			s.ServiceCode = c.Suggestion
		case models.ZoneCodeCorrection:
			s.Kind = models.NearbyZone
			s.ZoneCode = c.Suggestion
		}
		out = append(out, s)
	}
	return out
}

func (v *Validator) record(ctx context.Context, candidate models.Extraction, query string, vc Context, result models.ValidationResult) {
	outcome := "valid"
	switch {
	case result.CorrectedData != nil:
		outcome = "corrected"
	case !result.IsValid:
		outcome = "invalid"
	}
	metrics.ValidationsTotal.WithLabelValues(outcome).Inc()

	fields := map[string]interface{}{
		"userId":      vc.UserID,
		"serviceCode": candidate.ServiceCode,
		"zoneCode":    candidate.ZoneCode,
		"outcome":     outcome,
		"errors":      result.ErrorKinds(),
		"corrections": len(result.Corrections),
		"confidence":  result.ConfidenceScore,
	}
	v.logger.Info("validation completed", fields)

	err := v.sink.LogValidation(ctx, models.ValidationLog{
		UserID:          vc.UserID,
		Query:           query,
		ServiceCode:     candidate.ServiceCode,
		ZoneCode:        candidate.ZoneCode,
		IsValid:         result.IsValid,
		ErrorKinds:      result.ErrorKinds(),
		CorrectionCount: len(result.Corrections),
		Confidence:      result.ConfidenceScore,
	})
	if err != nil {
		v.logger.Warn("failed to write validation log", map[string]interface{}{
			"error":     err,
			"errorKind": errors.KindOf(err),
		})
	}
}
