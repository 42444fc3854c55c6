package handlefailure

import (
	"service-intake/internal/models"
)

// Input describes a failure reported by another task of the process.
type Input struct {
	ErrorMessage string `json:"errorMessage" validate:"required"`
	// ErrorKind skips message classification when the caller already knows it.
	ErrorKind string             `json:"errorKind" validate:"omitempty,oneof=VALIDATION_ERROR PROCESSING_ERROR PARSE_ERROR DATABASE_ERROR NETWORK_ERROR TIMEOUT_ERROR RATE_LIMIT_ERROR AUTHENTICATION_ERROR RESOURCE_NOT_FOUND SYSTEM_ERROR"`
	ErrorID   string             `json:"errorId"`
	UserID    string             `json:"userId"`
	SessionID string             `json:"sessionId"`
	Query     string             `json:"query"`
	ZoneCode  string             `json:"zoneCode"`
	Candidate *models.Extraction `json:"candidate"`
	TimeoutMs int                `json:"timeoutMs" validate:"gte=0"`
}

type Output struct {
	ErrorID          string              `json:"errorId"`
	ErrorKind        string              `json:"errorKind"`
	Severity         string              `json:"severity"`
	Resolved         bool                `json:"resolved"`
	ResolutionMethod string              `json:"resolutionMethod"`
	CorrectedData    *models.Extraction  `json:"correctedData,omitempty"`
	RetryNeeded      bool                `json:"retryNeeded"`
	RetryDelayMs     int64               `json:"retryDelayMs"`
	TimeoutMs        int64               `json:"timeoutMs,omitempty"`
	MaxTokens        int                 `json:"maxTokens,omitempty"`
	EscalationNeeded bool                `json:"escalationNeeded"`
	Suggestions      []models.Suggestion `json:"suggestions"`
	FallbackMessage  string              `json:"fallbackMessage,omitempty"`
}
