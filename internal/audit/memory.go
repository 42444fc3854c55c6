package audit

import (
	"context"
	"sync"
	"time"

	"service-intake/internal/models"

	"github.com/google/uuid"
)

// MemorySink keeps every entry in memory. Used by tests and local runs.
type MemorySink struct {
	mu          sync.Mutex
	errors      []models.ErrorLog
	validations []models.ValidationLog
	attempts    []models.RetryAttempt
	escalations []models.EscalationRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = time.Now().UTC()
	}
}

func (m *MemorySink) LogError(_ context.Context, e models.ErrorLog) error {
	stamp(&e.ID, &e.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, e)
	return nil
}

func (m *MemorySink) LogValidation(_ context.Context, v models.ValidationLog) error {
	stamp(&v.ID, &v.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations = append(m.validations, v)
	return nil
}

func (m *MemorySink) LogRetryAttempt(_ context.Context, a models.RetryAttempt) error {
	stamp(&a.ID, &a.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *MemorySink) LogEscalation(_ context.Context, r models.EscalationRecord) error {
	stamp(&r.ID, &r.Timestamp)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = append(m.escalations, r)
	return nil
}

func (m *MemorySink) ErrorsSince(_ context.Context, since time.Time) ([]models.ErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ErrorLog
	for _, e := range m.errors {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemorySink) ValidationsSince(_ context.Context, since time.Time) ([]models.ValidationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ValidationLog
	for _, v := range m.validations {
		if !v.CreatedAt.Before(since) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemorySink) RetryAttemptsSince(_ context.Context, since time.Time) ([]models.RetryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RetryAttempt
	for _, a := range m.attempts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemorySink) EscalationsSince(_ context.Context, since time.Time) ([]models.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EscalationRecord
	for _, r := range m.escalations {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Errors returns a copy of every error entry.
func (m *MemorySink) Errors() []models.ErrorLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ErrorLog(nil), m.errors...)
}

func (m *MemorySink) Validations() []models.ValidationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ValidationLog(nil), m.validations...)
}

func (m *MemorySink) RetryAttempts() []models.RetryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RetryAttempt(nil), m.attempts...)
}

func (m *MemorySink) Escalations() []models.EscalationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EscalationRecord(nil), m.escalations...)
}
