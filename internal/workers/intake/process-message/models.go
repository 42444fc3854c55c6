package processmessage

import (
	"service-intake/internal/models"
)

type Input struct {
	UserID    string `json:"userId" validate:"required"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message" validate:"required_unless=Reset true"`
	// Reset drops the accumulated request before the message, if any, is processed.
	Reset bool `json:"reset"`
}

type Output struct {
	Request         models.RequestInfo       `json:"request"`
	Complete        bool                     `json:"complete"`
	MissingFields   []string                 `json:"missingFields"`
	Suggestions     []models.Suggestion      `json:"suggestions"`
	Validation      *models.ValidationResult `json:"validation,omitempty"`
	Escalated       bool                     `json:"escalated"`
	ErrorID         string                   `json:"errorId,omitempty"`
	FallbackMessage string                   `json:"fallbackMessage,omitempty"`
}
