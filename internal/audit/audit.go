// Package audit holds the append-only logs written by the pipeline and read
// back by the improvement analyzer.
package audit

import (
	"context"
	"time"

	"service-intake/internal/models"
)

type Sink interface {
	LogError(ctx context.Context, entry models.ErrorLog) error
	LogValidation(ctx context.Context, entry models.ValidationLog) error
	LogRetryAttempt(ctx context.Context, entry models.RetryAttempt) error
	LogEscalation(ctx context.Context, entry models.EscalationRecord) error
}

type Reader interface {
	ErrorsSince(ctx context.Context, since time.Time) ([]models.ErrorLog, error)
	ValidationsSince(ctx context.Context, since time.Time) ([]models.ValidationLog, error)
	RetryAttemptsSince(ctx context.Context, since time.Time) ([]models.RetryAttempt, error)
	EscalationsSince(ctx context.Context, since time.Time) ([]models.EscalationRecord, error)
}

type Store interface {
	Sink
	Reader
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) LogError(context.Context, models.ErrorLog) error              { return nil }
func (discard) LogValidation(context.Context, models.ValidationLog) error    { return nil }
func (discard) LogRetryAttempt(context.Context, models.RetryAttempt) error   { return nil }
func (discard) LogEscalation(context.Context, models.EscalationRecord) error { return nil }
