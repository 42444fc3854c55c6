package generatesuggestions

import (
	"time"

	"service-intake/internal/models"
)

type Input struct {
	Query    string   `json:"query" validate:"required_without=ZoneCode"`
	ZoneCode string   `json:"zoneCode"`
	UserID   string   `json:"userId"`
	Budget   float64  `json:"budget" validate:"gte=0"`
	Bracket  string   `json:"bracket" validate:"omitempty,oneof=low medium high"`
	Kinds    []string `json:"kinds" validate:"omitempty,dive,oneof=alternative_service nearby_zone similar_service popular_service historical_preference price_based availability_based"`
	Limit    int      `json:"limit" validate:"gte=0"`
}

type Output struct {
	Suggestions              []models.Suggestion `json:"suggestions"`
	TotalCount               int                 `json:"totalCount"`
	ByKind                   map[string]int      `json:"byKind"`
	RecommendationConfidence float64             `json:"recommendationConfidence"`
	GeneratedAt              time.Time           `json:"generatedAt"`
}
