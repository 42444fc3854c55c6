package models

import (
	"encoding/json"
	"time"

	"service-intake/internal/common/errors"

	"github.com/google/uuid"
)

// ErrorContext describes one failure instance. Retry counters are keyed by ID.
type ErrorContext struct {
	ID              string                 `json:"id"`
	Kind            errors.ErrorKind       `json:"kind"`
	Severity        errors.Severity        `json:"severity"`
	Message         string                 `json:"message"`
	OriginalRequest json.RawMessage        `json:"original_request,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	UserID          string                 `json:"user_id,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// NewErrorContext classifies err and stamps a fresh id.
func NewErrorContext(err error, userID string) ErrorContext {
	kind := errors.KindOf(err)
	ec := ErrorContext{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  errors.SeverityOf(kind),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Metadata:  map[string]interface{}{},
	}
	if err != nil {
		ec.Message = err.Error()
	}
	return ec
}

type ErrorLog struct {
	ID        string                 `json:"id"`
	ErrorID   string                 `json:"error_id"`
	Kind      errors.ErrorKind       `json:"kind"`
	Severity  errors.Severity        `json:"severity"`
	Message   string                 `json:"message"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type ValidationLog struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id,omitempty"`
	Query           string    `json:"query"`
	ServiceCode     string    `json:"service_code,omitempty"`
	ZoneCode        string    `json:"zone_code,omitempty"`
	IsValid         bool      `json:"is_valid"`
	ErrorKinds      []string  `json:"error_kinds,omitempty"`
	CorrectionCount int       `json:"correction_count"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

type RetryAttempt struct {
	ID        string           `json:"id"`
	ErrorID   string           `json:"error_id"`
	Kind      errors.ErrorKind `json:"kind"`
	Attempt   int              `json:"attempt"`
	Success   bool             `json:"success"`
	Delay     time.Duration    `json:"delay"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

const EscalationRetryExhaustion = "retry_exhaustion"

type EscalationRecord struct {
	ID         string           `json:"id"`
	ErrorID    string           `json:"error_id"`
	Kind       errors.ErrorKind `json:"kind"`
	Reason     string           `json:"reason"`
	FinalError string           `json:"final_error"`
	UserID     string           `json:"user_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// RetryHints adjust the next extraction attempt after a failure.
type RetryHints struct {
	Timeout      time.Duration `json:"timeout,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	ExtraContext string        `json:"extra_context,omitempty"`
}
