// Package errors provides the typed failure taxonomy shared by the intake pipeline.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Error Kinds & Severity
// ==========================

// ErrorKind is the classified category of a pipeline failure.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION_ERROR"
	KindProcessing     ErrorKind = "PROCESSING_ERROR"
	KindParse          ErrorKind = "PARSE_ERROR"
	KindDatabase       ErrorKind = "DATABASE_ERROR"
	KindNetwork        ErrorKind = "NETWORK_ERROR"
	KindTimeout        ErrorKind = "TIMEOUT_ERROR"
	KindRateLimit      ErrorKind = "RATE_LIMIT_ERROR"
	KindAuthentication ErrorKind = "AUTHENTICATION_ERROR"
	KindNotFound       ErrorKind = "RESOURCE_NOT_FOUND"
	KindSystem         ErrorKind = "SYSTEM_ERROR"
)

// AllKinds lists every kind in table order.
var AllKinds = []ErrorKind{
	KindValidation,
	KindProcessing,
	KindParse,
	KindDatabase,
	KindNetwork,
	KindTimeout,
	KindRateLimit,
	KindAuthentication,
	KindNotFound,
	KindSystem,
}

// Severity is ordered: a larger value is more severe.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity converts a name such as "HIGH" into a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// SeverityOf returns the fixed severity of a kind.
func SeverityOf(kind ErrorKind) Severity {
	switch kind {
	case KindSystem, KindDatabase:
		return SeverityCritical
	case KindAuthentication, KindNetwork:
		return SeverityHigh
	case KindValidation, KindProcessing, KindParse:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ==========================
// 2. Standard Error Type
// ==========================

// StandardError is a failure whose kind is known at the call site.
type StandardError struct {
	Kind      ErrorKind              `json:"kind"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Err       error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Err
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(kind ErrorKind, message string, err error) *StandardError {
	se := &StandardError{
		Kind:      kind,
		Message:   message,
		Retryable: PolicyFor(kind).ShouldRetry,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
	if err != nil {
		se.Details = err.Error()
	}
	return se
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError reports a locally correctable catalog or consistency mismatch.
func NewValidationError(message string) *StandardError {
	return newError(KindValidation, message, nil)
}

// NewProcessingError reports an upstream extractor failure.
func NewProcessingError(err error) *StandardError {
	return newError(KindProcessing, "Upstream extraction failed", err)
}

// NewParseError reports extractor output that could not be parsed into an extraction.
func NewParseError(details string, err error) *StandardError {
	se := newError(KindParse, "Extraction output could not be parsed", err)
	if details != "" {
		se.Details = details
	}
	return se
}

// NewDatabaseError reports a catalog or log store failure.
func NewDatabaseError(operation string, err error) *StandardError {
	return newError(KindDatabase, fmt.Sprintf("Database operation %q failed", operation), err)
}

// NewNetworkError reports a transport level failure reaching an external service.
func NewNetworkError(service string, err error) *StandardError {
	return newError(KindNetwork, fmt.Sprintf("Network error reaching %s", service), err)
}

// NewTimeoutError reports an external call that exceeded its bounded timeout.
func NewTimeoutError(service string, err error) *StandardError {
	return newError(KindTimeout, fmt.Sprintf("Service '%s' timeout", service), err)
}

// NewRateLimitError reports throttling. retryAfter of zero means no hint was given.
func NewRateLimitError(service string, retryAfter time.Duration, err error) *StandardError {
	se := newError(KindRateLimit, fmt.Sprintf("Rate limit exceeded for %s", service), err)
	if retryAfter > 0 {
		se.Details = fmt.Sprintf("retry after %d seconds", int(retryAfter.Seconds()))
		se.WithMetadata("retryAfterSeconds", int(retryAfter.Seconds()))
	}
	return se
}

// NewAuthenticationError reports rejected credentials or permissions. Never retried.
func NewAuthenticationError(details string) *StandardError {
	se := newError(KindAuthentication, "Authentication failed", nil)
	se.Details = details
	return se
}

// NewResourceNotFoundError reports a missing catalog entry or record.
func NewResourceNotFoundError(resource, details string) *StandardError {
	se := newError(KindNotFound, fmt.Sprintf("Resource not found in %s", resource), nil)
	se.Details = details
	return se
}

// NewSystemError wraps an unexpected internal failure.
func NewSystemError(err error) *StandardError {
	return newError(KindSystem, "Unexpected error", err)
}

// ==========================
// 4. Classification
// ==========================

// substringRules drive the fallback classifier. Order matters.
var substringRules = []struct {
	needles []string
	kind    ErrorKind
}{
	{[]string{"validation"}, KindValidation},
	{[]string{"database", "sql"}, KindDatabase},
	{[]string{"network", "connection"}, KindNetwork},
	{[]string{"timeout"}, KindTimeout},
	{[]string{"rate limit"}, KindRateLimit},
	{[]string{"auth", "permission"}, KindAuthentication},
	{[]string{"not found"}, KindNotFound},
}

// Classify returns the kind of err. Typed errors are looked up directly; the
// substring rules only apply to opaque third-party failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies the ordered substring rules to a raw failure message.
func ClassifyMessage(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.kind
			}
		}
	}
	return KindSystem
}

// KindOf is Classify with a SYSTEM_ERROR default for nil-safe callers.
func KindOf(err error) ErrorKind {
	if kind := Classify(err); kind != "" {
		return kind
	}
	return KindSystem
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryable reports whether the kind of err allows any retry.
func IsRetryable(err error) bool {
	return PolicyFor(KindOf(err)).ShouldRetry
}

// GetErrorCategory groups kinds for dashboards and log fields.
func GetErrorCategory(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "VALIDATION"
	case KindProcessing, KindParse:
		return "EXTRACTION"
	case KindDatabase, KindNotFound:
		return "CATALOG"
	case KindNetwork, KindTimeout, KindRateLimit:
		return "TRANSPORT"
	case KindAuthentication:
		return "AUTH"
	default:
		return "OTHER"
	}
}
