// Package extraction turns raw extractor output into a typed Extraction and
// builds the prompts sent to the extractor.
package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/validation"
	"service-intake/internal/models"
)

const extractionSchema = `{
  "type": "object",
  "required": ["confidence"],
  "properties": {
    "service_code":           {"type": ["string", "null"]},
    "zone_code":              {"type": ["string", "null"]},
    "service_type":           {"type": ["string", "null"]},
    "location":               {"type": ["string", "null"]},
    "description":            {"type": ["string", "null"]},
    "urgency":                {"type": ["string", "null"]},
    "scheduling_preference":  {"type": ["string", "null"]},
    "preferred_time_details": {"type": ["string", "null"]},
    "landmark_references":    {"type": ["array", "null"], "items": {"type": "string"}},
    "price_estimate":         {"type": ["number", "null"], "minimum": 0},
    "confidence":             {"type": "number", "minimum": 0, "maximum": 1},
    "location_confidence":    {"type": ["number", "null"], "minimum": 0, "maximum": 1}
  }
}`

var schema = validation.MustCompile("extraction", extractionSchema)

const fence = "```"

// ExtractJSON returns the JSON object embedded in raw. A ```json fence wins
// when present; otherwise the span from the first '{' to the last '}' is used.
func ExtractJSON(raw string) (string, error) {
	body := raw
	if start := strings.Index(strings.ToLower(raw), fence+"json"); start >= 0 {
		rest := raw[start+len(fence)+len("json"):]
		if end := strings.Index(rest, fence); end >= 0 {
			body = rest[:end]
		} else {
			body = rest
		}
	}

	open := strings.Index(body, "{")
	closing := strings.LastIndex(body, "}")
	if open < 0 || closing < open {
		return "", errors.NewParseError("no JSON object in extractor output", nil)
	}
	return body[open : closing+1], nil
}

// Parse validates raw against the extraction schema and decodes it.
// Any failure is a PARSE_ERROR.
func Parse(raw string) (models.Extraction, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return models.Extraction{}, err
	}

	result, err := schema.ValidateBytes([]byte(doc))
	if err != nil {
		return models.Extraction{}, errors.NewParseError("malformed JSON", err)
	}
	if !result.Valid {
		return models.Extraction{}, errors.NewParseError(strings.Join(result.GetErrorMessages(), "; "), nil)
	}

	var ext models.Extraction
	if err := json.NewDecoder(strings.NewReader(doc)).Decode(&ext); err != nil {
		return models.Extraction{}, errors.NewParseError("decode extraction", err)
	}
	return clean(ext), nil
}

func clean(e models.Extraction) models.Extraction {
	e.ServiceCode = strings.ToLower(strings.TrimSpace(e.ServiceCode))
	e.ZoneCode = strings.ToLower(strings.TrimSpace(e.ZoneCode))
	e.ServiceType = strings.TrimSpace(e.ServiceType)
	e.Location = strings.TrimSpace(e.Location)
	e.Description = strings.TrimSpace(e.Description)
	e.Urgency = strings.ToLower(strings.TrimSpace(e.Urgency))
	e.SchedulingPreference = strings.TrimSpace(e.SchedulingPreference)
	e.PreferredTimeDetails = strings.TrimSpace(e.PreferredTimeDetails)
	return e
}

// Describe renders an extraction for logs.
func Describe(e models.Extraction) string {
	return fmt.Sprintf("service=%q zone=%q confidence=%.2f", e.ServiceCode, e.ZoneCode, e.Confidence)
}
