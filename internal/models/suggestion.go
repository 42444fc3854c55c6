package models

import "time"

type SuggestionKind string

const (
	AlternativeService   SuggestionKind = "alternative_service"
	NearbyZone           SuggestionKind = "nearby_zone"
	SimilarService       SuggestionKind = "similar_service"
	PopularService       SuggestionKind = "popular_service"
	HistoricalPreference SuggestionKind = "historical_preference"
	PriceBased           SuggestionKind = "price_based"
	AvailabilityBased    SuggestionKind = "availability_based"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type Suggestion struct {
	Kind        SuggestionKind         `json:"kind"`
	Priority    Priority               `json:"priority"`
	ServiceCode string                 `json:"service_code,omitempty"`
	ZoneCode    string                 `json:"zone_code,omitempty"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Reasoning   string                 `json:"reasoning"`
	Score       float64                `json:"score"`
}

type SuggestionResponse struct {
	Suggestions              []Suggestion           `json:"suggestions"`
	TotalCount               int                    `json:"total_count"`
	ByKind                   map[SuggestionKind]int `json:"by_kind"`
	RecommendationConfidence float64                `json:"recommendation_confidence"`
	GeneratedAt              time.Time              `json:"generated_at"`
}
