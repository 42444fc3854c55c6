package models

import "service-intake/internal/common/errors"

type ValidationErrorKind string

const (
	InvalidServiceCode  ValidationErrorKind = "INVALID_SERVICE_CODE"
	InvalidZoneCode     ValidationErrorKind = "INVALID_ZONE_CODE"
	ZoneServiceMismatch ValidationErrorKind = "ZONE_SERVICE_MISMATCH"
	InvalidPriceRange   ValidationErrorKind = "INVALID_PRICE_RANGE"
	SemanticError       ValidationErrorKind = "SEMANTIC_ERROR"
)

type ValidationError struct {
	Kind     ValidationErrorKind `json:"kind"`
	Message  string              `json:"message"`
	Severity errors.Severity     `json:"severity"`
	Field    string              `json:"field,omitempty"`
	Value    interface{}         `json:"value,omitempty"`
}

type CorrectionKind string

const (
	ServiceCodeCorrection CorrectionKind = "service_code_correction"
	ZoneCodeCorrection    CorrectionKind = "zone_code_correction"
)

type Correction struct {
	Kind       CorrectionKind `json:"kind"`
	Original   string         `json:"original"`
	Suggestion string         `json:"suggestion"`
	Confidence float64        `json:"confidence"`
}

type ValidationResult struct {
	IsValid         bool              `json:"is_valid"`
	Errors          []ValidationError `json:"errors"`
	Corrections     []Correction      `json:"corrections"`
	ConfidenceScore float64           `json:"confidence_score"`
	Suggestions     []Suggestion      `json:"suggestions"`
	CorrectedData   *Extraction       `json:"corrected_data,omitempty"`
}

// ErrorKinds lists the distinct validation error kinds in order of first appearance.
func (r ValidationResult) ErrorKinds() []string {
	seen := make(map[ValidationErrorKind]bool, len(r.Errors))
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if !seen[e.Kind] {
			seen[e.Kind] = true
			out = append(out, string(e.Kind))
		}
	}
	return out
}
