// Package accumulator owns the per-user RequestInfo of an active conversation
// and merges each turn's extraction into it.
package accumulator

import (
	"strings"

	"service-intake/internal/models"
)

// Missing field names, in the order MissingFields reports them.
const (
	FieldServiceType = "service_type"
	FieldLocation    = "location"
	FieldDescription = "description"
	FieldTiming      = "timing"
)

// Merge folds incoming into existing. A non-empty incoming scalar replaces the
// stored one, an empty one never does. Confidences keep the maximum and
// landmarks are a deduplicated union in first-seen order.
func Merge(existing, incoming models.RequestInfo) models.RequestInfo {
	out := existing
	out.ServiceType = pick(existing.ServiceType, incoming.ServiceType)
	out.Location = pick(existing.Location, incoming.Location)
	out.Description = pick(existing.Description, incoming.Description)
	out.Urgency = pick(existing.Urgency, incoming.Urgency)
	out.SchedulingPreference = pick(existing.SchedulingPreference, incoming.SchedulingPreference)
	out.PreferredTimeDetails = pick(existing.PreferredTimeDetails, incoming.PreferredTimeDetails)
	out.ConfidenceScore = max(existing.ConfidenceScore, incoming.ConfidenceScore)
	out.LocationConfidence = max(existing.LocationConfidence, incoming.LocationConfidence)
	out.LandmarkReferences = union(existing.LandmarkReferences, incoming.LandmarkReferences)
	return out
}

func pick(current, next string) string {
	if strings.TrimSpace(next) != "" {
		return next
	}
	return current
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// IsComplete reports whether r can be turned into a booking request.
func IsComplete(r models.RequestInfo) bool {
	return len(MissingFields(r)) == 0
}

// MissingFields lists what still has to be asked, in a fixed order.
// "timing" is satisfied by either urgency or a scheduling preference.
func MissingFields(r models.RequestInfo) []string {
	missing := []string{}
	if blank(r.ServiceType) {
		missing = append(missing, FieldServiceType)
	}
	if blank(r.Location) {
		missing = append(missing, FieldLocation)
	}
	if blank(r.Description) {
		missing = append(missing, FieldDescription)
	}
	if blank(r.Urgency) && blank(r.SchedulingPreference) {
		missing = append(missing, FieldTiming)
	}
	return missing
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
