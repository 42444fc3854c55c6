// Package recovery decides how a classified failure is retried, resolved
// locally or escalated.
package recovery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"service-intake/internal/audit"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/metrics"
	"service-intake/internal/models"
	"service-intake/internal/notify"
	"service-intake/internal/suggestion"
	"service-intake/internal/validator"
)

// FallbackMessage is shown to the user when a processing failure could not be
// recovered. Internal error text is never surfaced.
const FallbackMessage = "Désolé, nous rencontrons un souci technique. Un conseiller va reprendre votre demande très vite."

const (
	MethodAutoCorrection = "auto_correction"
	MethodSuggestions    = "suggestions"
	MethodRetry          = "retry"
	MethodEscalated      = "escalated"
	MethodSurfaced       = "surfaced"

	ReasonUnreachable = "unreachable"
)

var ErrRetriesExhausted = stderrors.New("retries exhausted")

// ExhaustedError is returned by RetryOperation once every attempt failed.
type ExhaustedError struct {
	ErrorID  string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

type Validator interface {
	Validate(ctx context.Context, candidate models.Extraction, query string, vc validator.Context) (models.ValidationResult, error)
}

type Suggester interface {
	Generate(ctx context.Context, req suggestion.Request) (models.SuggestionResponse, error)
}

// FailureContext is what the caller knows about the failed operation.
type FailureContext struct {
	// ErrorID continues the attempt count of an earlier failure of the same operation.
	ErrorID         string
	UserID          string
	SessionID       string
	Query           string
	ZoneCode        string
	Candidate       *models.Extraction
	Timeout         time.Duration
	MaxTokens       int
	OriginalRequest json.RawMessage
}

type ErrorResolution struct {
	ErrorID          string              `json:"error_id"`
	Kind             errors.ErrorKind    `json:"kind"`
	Severity         errors.Severity     `json:"severity"`
	Resolved         bool                `json:"resolved"`
	Method           string              `json:"resolution_method"`
	CorrectedData    *models.Extraction  `json:"corrected_data,omitempty"`
	RetryNeeded      bool                `json:"retry_needed"`
	RetryDelay       time.Duration       `json:"retry_delay"`
	Hints            models.RetryHints   `json:"hints"`
	EscalationNeeded bool                `json:"escalation_needed"`
	Suggestions      []models.Suggestion `json:"suggestions"`
	FallbackMessage  string              `json:"fallback_message,omitempty"`
}

type Config struct {
	ProbeTimeout    time.Duration
	DefaultTimeout  time.Duration
	MaxTimeout      time.Duration
	ShrunkMaxTokens int
	RateLimitWait   time.Duration
	Sleep           func(ctx context.Context, d time.Duration) error
}

func (c *Config) defaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = 120 * time.Second
	}
	if c.ShrunkMaxTokens <= 0 {
		c.ShrunkMaxTokens = 400
	}
	if c.RateLimitWait <= 0 {
		c.RateLimitWait = 60 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deps are the collaborators of the engine. Nil members disable the
// corresponding behaviour.
type Deps struct {
	Sink         audit.Sink
	Notifier     notify.EscalationNotifier
	Validator    Validator
	Suggester    Suggester
	NetworkProbe Prober
	DBProbe      Prober
}

type Engine struct {
	deps   Deps
	cfg    Config
	logger logger.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewEngine(deps Deps, cfg Config, log logger.Logger) *Engine {
	cfg.defaults()
	if deps.Sink == nil {
		deps.Sink = audit.Discard
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		logger:   logger.Component(log, "recovery"),
		attempts: make(map[string]int),
	}
}

// Attempts returns the attempts consumed so far for an error id.
func (e *Engine) Attempts(errorID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[errorID]
}

// ShouldRetry reports whether the policy of ec's kind allows another attempt.
func (e *Engine) ShouldRetry(ec models.ErrorContext) bool {
	policy := errors.PolicyFor(ec.Kind)
	return policy.ShouldRetry && e.Attempts(ec.ID) < policy.MaxAttempts
}

func (e *Engine) consume(errorID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.attempts[errorID]
	e.attempts[errorID] = n + 1
	return n
}

// Clear forgets the attempt counter of an error id.
func (e *Engine) Clear(errorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attempts, errorID)
}

// Operation is one attempt of a retried call. attempt is zero based.
type Operation func(ctx context.Context, attempt int) error

// RetryOperation runs op up to the max attempts of ec's kind, sleeping the
// policy delay between attempts. When every attempt fails an escalation
// record is written and an *ExhaustedError returned.
func (e *Engine) RetryOperation(ctx context.Context, ec models.ErrorContext, op Operation) error {
	policy := errors.PolicyFor(ec.Kind)
	if !policy.ShouldRetry || policy.MaxAttempts == 0 {
		return &errors.StandardError{
			Kind:      ec.Kind,
			Message:   "Failure is not retryable",
			Details:   ec.Message,
			Timestamp: time.Now().UTC(),
		}
	}
	defer e.Clear(ec.ID)

	var last error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		e.consume(ec.ID)
		err := op(ctx, attempt)

		var delay time.Duration
		if err != nil && attempt < policy.MaxAttempts-1 {
			delay = errors.Delay(policy, attempt)
		}
		e.logAttempt(ctx, ec, attempt+1, err, delay)

		if err == nil {
			return nil
		}
		last = err

		if attempt < policy.MaxAttempts-1 {
			if err := e.cfg.Sleep(ctx, delay); err != nil {
				return errors.NewTimeoutError("retry", err)
			}
		}
	}

	e.escalate(ctx, ec, models.EscalationRetryExhaustion, last)
	return &ExhaustedError{ErrorID: ec.ID, Attempts: policy.MaxAttempts, Last: last}
}

func (e *Engine) logAttempt(ctx context.Context, ec models.ErrorContext, attempt int, err error, delay time.Duration) {
	success := err == nil
	metrics.RecoveryAttempts.WithLabelValues(string(ec.Kind), strconv.FormatBool(success)).Inc()

	entry := models.RetryAttempt{
		ErrorID: ec.ID,
		Kind:    ec.Kind,
		Attempt: attempt,
		Success: success,
		Delay:   delay,
	}
	fields := map[string]interface{}{
		"errorId": ec.ID,
		"kind":    string(ec.Kind),
		"attempt": attempt,
		"success": success,
	}
	if err != nil {
		entry.Error = err.Error()
		fields["error"] = err
		fields["nextDelay"] = delay.String()
	}
	e.logger.Info("retry attempt", fields)

	if werr := e.deps.Sink.LogRetryAttempt(ctx, entry); werr != nil {
		e.logger.Warn("failed to write retry attempt", map[string]interface{}{"error": werr})
	}
}

func (e *Engine) escalate(ctx context.Context, ec models.ErrorContext, reason string, final error) {
	rec := models.EscalationRecord{
		ErrorID:   ec.ID,
		Kind:      ec.Kind,
		Reason:    reason,
		UserID:    ec.UserID,
		Timestamp: time.Now().UTC(),
	}
	if final != nil {
		rec.FinalError = final.Error()
	} else {
		rec.FinalError = ec.Message
	}
	e.Clear(ec.ID)
	metrics.Escalations.WithLabelValues(reason).Inc()

	e.logger.Error("failure escalated", map[string]interface{}{
		"errorId":  ec.ID,
		"kind":     string(ec.Kind),
		"severity": ec.Severity.String(),
		"reason":   reason,
		"userId":   ec.UserID,
	})
	if err := e.deps.Sink.LogEscalation(ctx, rec); err != nil {
		e.logger.Warn("failed to write escalation", map[string]interface{}{"error": err})
	}
	if err := e.deps.Notifier.NotifyEscalation(ctx, rec); err != nil {
		e.logger.Warn("failed to notify escalation", map[string]interface{}{"error": err})
	}
}

// HandleFailure classifies failure, logs it and decides between local
// resolution, a retry with adjusted hints, or escalation.
func (e *Engine) HandleFailure(ctx context.Context, failure error, fc FailureContext) ErrorResolution {
	ec := models.NewErrorContext(failure, fc.UserID)
	if fc.ErrorID != "" {
		ec.ID = fc.ErrorID
	}
	ec.SessionID = fc.SessionID
	ec.OriginalRequest = fc.OriginalRequest

	e.logFailure(ctx, ec)

	res := ErrorResolution{
		ErrorID:     ec.ID,
		Kind:        ec.Kind,
		Severity:    ec.Severity,
		Suggestions: []models.Suggestion{},
	}

	switch ec.Kind {
	case errors.KindValidation:
		e.resolveValidation(ctx, ec, fc, &res)
	case errors.KindProcessing, errors.KindParse:
		res.Hints = models.RetryHints{
			MaxTokens:    e.cfg.ShrunkMaxTokens,
			ExtraContext: "La tentative précédente a échoué: " + ec.Message,
		}
		e.planRetry(ctx, ec, fc, &res, failure, -1)
	case errors.KindDatabase:
		if e.deps.DBProbe != nil && strings.Contains(strings.ToLower(ec.Message), "connection") {
			ok := e.probe(ctx, e.deps.DBProbe) == nil
			e.logger.Info("database reconnect probe", map[string]interface{}{"errorId": ec.ID, "reachable": ok})
		}
		e.planRetry(ctx, ec, fc, &res, failure, -1)
	case errors.KindNetwork:
		if e.deps.NetworkProbe != nil {
			if err := e.probe(ctx, e.deps.NetworkProbe); err != nil {
				e.logger.Warn("network unreachable, escalating", map[string]interface{}{"errorId": ec.ID, "error": err})
				e.giveUp(ctx, ec, fc, &res, ReasonUnreachable, failure)
				return res
			}
		}
		e.planRetry(ctx, ec, fc, &res, failure, -1)
	case errors.KindTimeout:
		timeout := fc.Timeout
		if timeout <= 0 {
			timeout = e.cfg.DefaultTimeout
		}
		timeout *= 2
		if timeout > e.cfg.MaxTimeout {
			timeout = e.cfg.MaxTimeout
		}
		res.Hints = models.RetryHints{Timeout: timeout}
		e.planRetry(ctx, ec, fc, &res, failure, -1)
	case errors.KindRateLimit:
		wait, ok := errors.ParseRetryAfter(ec.Message)
		if !ok {
			wait = e.cfg.RateLimitWait
		}
		e.planRetry(ctx, ec, fc, &res, failure, wait)
	case errors.KindAuthentication:
		// Surfaced to the caller as is: no retry budget, no escalation record.
		res.Method = MethodSurfaced
		res.FallbackMessage = FallbackMessage
		res.EscalationNeeded = true
		e.Clear(ec.ID)
	case errors.KindNotFound:
		res.Method = MethodSuggestions
		res.Suggestions = e.suggest(ctx, fc)
	default:
		e.planRetry(ctx, ec, fc, &res, failure, -1)
	}
	return res
}

func (e *Engine) logFailure(ctx context.Context, ec models.ErrorContext) {
	e.logger.Error("pipeline failure", map[string]interface{}{
		"errorId":   ec.ID,
		"errorKind": string(ec.Kind),
		"severity":  ec.Severity.String(),
		"category":  errors.GetErrorCategory(ec.Kind),
		"userId":    ec.UserID,
		"message":   ec.Message,
	})
	err := e.deps.Sink.LogError(ctx, models.ErrorLog{
		ErrorID:   ec.ID,
		Kind:      ec.Kind,
		Severity:  ec.Severity,
		Message:   ec.Message,
		UserID:    ec.UserID,
		SessionID: ec.SessionID,
		Metadata:  map[string]interface{}{"attempts": e.Attempts(ec.ID)},
		CreatedAt: ec.Timestamp,
	})
	if err != nil {
		e.logger.Warn("failed to write error log", map[string]interface{}{"error": err})
	}
}

func (e *Engine) resolveValidation(ctx context.Context, ec models.ErrorContext, fc FailureContext, res *ErrorResolution) {
	if e.deps.Validator != nil && fc.Candidate != nil {
		vr, err := e.deps.Validator.Validate(ctx, *fc.Candidate, fc.Query, validator.Context{UserID: fc.UserID, SessionID: fc.SessionID})
		if err != nil {
			e.logger.Warn("revalidation failed", map[string]interface{}{"errorId": ec.ID, "error": err})
		} else if vr.CorrectedData != nil {
			res.Resolved = true
			res.Method = MethodAutoCorrection
			res.CorrectedData = vr.CorrectedData
			e.Clear(ec.ID)
			return
		} else {
			res.Suggestions = append(res.Suggestions, vr.Suggestions...)
		}
	}
	res.Method = MethodSuggestions
	res.Suggestions = append(res.Suggestions, e.suggest(ctx, fc)...)
}

// planRetry charges the failed call against the policy of ec's kind and logs
// it as a retry attempt. A retry is planned while the budget lasts; wait
// overrides the policy delay when non-negative.
func (e *Engine) planRetry(ctx context.Context, ec models.ErrorContext, fc FailureContext, res *ErrorResolution, failure error, wait time.Duration) {
	n := e.consume(ec.ID)
	if !e.ShouldRetry(ec) {
		e.logAttempt(ctx, ec, n+1, failure, 0)
		e.giveUp(ctx, ec, fc, res, models.EscalationRetryExhaustion, failure)
		return
	}

	res.RetryNeeded = true
	res.Method = MethodRetry
	if wait >= 0 {
		res.RetryDelay = wait
	} else {
		res.RetryDelay = errors.Delay(errors.PolicyFor(ec.Kind), n)
	}
	e.logAttempt(ctx, ec, n+1, failure, res.RetryDelay)
}

func (e *Engine) giveUp(ctx context.Context, ec models.ErrorContext, fc FailureContext, res *ErrorResolution, reason string, final error) {
	res.RetryNeeded = false
	res.EscalationNeeded = true
	res.Method = MethodEscalated
	res.FallbackMessage = FallbackMessage
	res.Suggestions = append(res.Suggestions, e.suggest(ctx, fc)...)
	e.escalate(ctx, ec, reason, final)
}

// Succeeded records that the operation behind errorID eventually worked.
func (e *Engine) Succeeded(ctx context.Context, errorID string, kind errors.ErrorKind) {
	n := e.Attempts(errorID)
	if n == 0 {
		return
	}
	e.logAttempt(ctx, models.ErrorContext{ID: errorID, Kind: kind}, n+1, nil, 0)
	e.Clear(errorID)
}

func (e *Engine) probe(ctx context.Context, p Prober) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()
	return p.Probe(ctx)
}

func (e *Engine) suggest(ctx context.Context, fc FailureContext) []models.Suggestion {
	if e.deps.Suggester == nil || (fc.Query == "" && fc.ZoneCode == "") {
		return nil
	}
	resp, err := e.deps.Suggester.Generate(ctx, suggestion.Request{
		Query:    fc.Query,
		ZoneCode: fc.ZoneCode,
		UserID:   fc.UserID,
	})
	if err != nil {
		e.logger.Warn("fallback suggestions failed", map[string]interface{}{"error": err})
		return nil
	}
	return resp.Suggestions
}
