package recovery

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"service-intake/internal/audit"
	"service-intake/internal/catalog/catalogtest"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/correction"
	"service-intake/internal/models"
	"service-intake/internal/suggestion"
	"service-intake/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	records []models.EscalationRecord
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, r models.EscalationRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, r)
	return nil
}

type fixture struct {
	engine   *Engine
	sink     *audit.MemorySink
	notifier *recordingNotifier
	sleeps   []time.Duration
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	f := &fixture{sink: audit.NewMemorySink(), notifier: &recordingNotifier{}}
	deps.Sink = f.sink
	deps.Notifier = f.notifier
	f.engine = NewEngine(deps, Config{
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	}, logger.NewTestLogger(t))
	return f
}

func withCatalog(t *testing.T) Deps {
	cat := catalogtest.New()
	log := logger.NewNoOpLogger()
	return Deps{
		Validator: validator.New(cat, correction.NewEngine(cat, 0.6, log), nil, validator.Options{}, log),
		Suggester: suggestion.NewEngine(cat, nil, suggestion.Config{}, log),
	}
}

func TestRetryOperation_SucceedsOnThirdAttempt(t *testing.T) {
	f := newFixture(t, Deps{})
	ec := models.NewErrorContext(errors.NewProcessingError(stderrors.New("upstream 502")), "u1")

	calls := 0
	err := f.engine.RetryOperation(context.Background(), ec, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.NewProcessingError(stderrors.New("upstream 502"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	attempts := f.sink.RetryAttempts()
	require.Len(t, attempts, 3)
	assert.False(t, attempts[0].Success)
	assert.False(t, attempts[1].Success)
	assert.True(t, attempts[2].Success)
	assert.Empty(t, f.sink.Escalations())
	assert.Empty(t, f.notifier.records)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
	assert.Zero(t, f.engine.Attempts(ec.ID))
}

func TestRetryOperation_ExhaustionEscalates(t *testing.T) {
	f := newFixture(t, Deps{})
	ec := models.NewErrorContext(errors.NewDatabaseError("query", stderrors.New("deadlock")), "u1")

	calls := 0
	err := f.engine.RetryOperation(context.Background(), ec, func(context.Context, int) error {
		calls++
		return errors.NewDatabaseError("query", stderrors.New("deadlock"))
	})

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps)

	esc := f.sink.Escalations()
	require.Len(t, esc, 1)
	assert.Equal(t, ec.ID, esc[0].ErrorID)
	assert.Equal(t, models.EscalationRetryExhaustion, esc[0].Reason)
	assert.Contains(t, esc[0].FinalError, "deadlock")
	assert.Len(t, f.notifier.records, 1)
	assert.Zero(t, f.engine.Attempts(ec.ID))
}

func TestRetryOperation_NotRetryable(t *testing.T) {
	f := newFixture(t, Deps{})
	ec := models.NewErrorContext(errors.NewAuthenticationError("invalid api key"), "")

	called := false
	err := f.engine.RetryOperation(context.Background(), ec, func(context.Context, int) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, errors.KindAuthentication, errors.KindOf(err))
	assert.Empty(t, f.sink.RetryAttempts())
}

func TestShouldRetry(t *testing.T) {
	f := newFixture(t, Deps{})
	auth := models.NewErrorContext(errors.NewAuthenticationError("denied"), "")
	assert.False(t, f.engine.ShouldRetry(auth))
	assert.Zero(t, errors.PolicyFor(errors.KindAuthentication).MaxAttempts)

	timeout := models.NewErrorContext(errors.NewTimeoutError("genai", nil), "")
	for i := 0; i < 3; i++ {
		require.True(t, f.engine.ShouldRetry(timeout))
		f.engine.consume(timeout.ID)
	}
	assert.False(t, f.engine.ShouldRetry(timeout))
}

func TestHandleFailure_NetworkUnreachable(t *testing.T) {
	probed := 0
	f := newFixture(t, Deps{NetworkProbe: ProberFunc(func(ctx context.Context) error {
		probed++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return stderrors.New("dial tcp: i/o timeout")
	})})

	res := f.engine.HandleFailure(context.Background(), errors.NewNetworkError("genai", stderrors.New("connection reset")), FailureContext{UserID: "u1"})

	assert.Equal(t, 1, probed)
	assert.True(t, res.EscalationNeeded)
	assert.False(t, res.RetryNeeded)
	assert.False(t, res.Resolved)
	assert.Equal(t, FallbackMessage, res.FallbackMessage)
	assert.Zero(t, f.engine.Attempts(res.ErrorID))

	esc := f.sink.Escalations()
	require.Len(t, esc, 1)
	assert.Equal(t, ReasonUnreachable, esc[0].Reason)

	logs := f.sink.Errors()
	require.Len(t, logs, 1)
	assert.Equal(t, errors.KindNetwork, logs[0].Kind)
	assert.Equal(t, errors.SeverityHigh, logs[0].Severity)
}

func TestHandleFailure_NetworkReachableRetries(t *testing.T) {
	f := newFixture(t, Deps{NetworkProbe: ProberFunc(func(context.Context) error { return nil })})

	res := f.engine.HandleFailure(context.Background(), errors.NewNetworkError("genai", nil), FailureContext{})
	assert.True(t, res.RetryNeeded)
	assert.False(t, res.EscalationNeeded)
	assert.Equal(t, time.Second, res.RetryDelay)
	assert.Equal(t, 1, f.engine.Attempts(res.ErrorID))
}

func TestHandleFailure_ProcessingExhaustsAcrossCalls(t *testing.T) {
	f := newFixture(t, withCatalog(t))
	ctx := context.Background()
	failure := errors.NewProcessingError(stderrors.New("upstream 500"))
	fc := FailureContext{UserID: "u1", Query: "fuite d'eau", ZoneCode: "bonamoussadi"}

	var delays []time.Duration
	for i := 0; i < 2; i++ {
		res := f.engine.HandleFailure(ctx, failure, fc)
		require.True(t, res.RetryNeeded, "call %d", i)
		assert.Equal(t, 400, res.Hints.MaxTokens)
		assert.Contains(t, res.Hints.ExtraContext, "upstream 500")
		delays = append(delays, res.RetryDelay)
		fc.ErrorID = res.ErrorID
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)

	res := f.engine.HandleFailure(ctx, failure, fc)
	assert.False(t, res.RetryNeeded)
	assert.True(t, res.EscalationNeeded)
	assert.Equal(t, MethodEscalated, res.Method)
	assert.Equal(t, FallbackMessage, res.FallbackMessage)
	assert.NotEmpty(t, res.Suggestions)
	assert.Zero(t, f.engine.Attempts(res.ErrorID))

	esc := f.sink.Escalations()
	require.Len(t, esc, 1)
	assert.Equal(t, models.EscalationRetryExhaustion, esc[0].Reason)
	assert.Contains(t, esc[0].FinalError, "upstream 500")
	assert.Len(t, f.sink.Errors(), 3)

	attempts := f.sink.RetryAttempts()
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Attempt)
		assert.False(t, a.Success)
		assert.Equal(t, res.ErrorID, a.ErrorID)
	}
	assert.Equal(t, time.Duration(0), attempts[2].Delay)
}

func TestHandleFailure_ParseErrorRetriedLikeProcessing(t *testing.T) {
	f := newFixture(t, Deps{})
	res := f.engine.HandleFailure(context.Background(), errors.NewParseError("no JSON object", nil), FailureContext{})
	assert.True(t, res.RetryNeeded)
	assert.Equal(t, errors.KindParse, res.Kind)
	assert.Equal(t, errors.SeverityMedium, res.Severity)
	assert.NotZero(t, res.Hints.MaxTokens)
}

func TestHandleFailure_TimeoutDoubles(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{name: "default", want: 60 * time.Second},
		{name: "doubled", timeout: 20 * time.Second, want: 40 * time.Second},
		{name: "capped", timeout: 90 * time.Second, want: 120 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Deps{})
			res := f.engine.HandleFailure(context.Background(), context.DeadlineExceeded, FailureContext{Timeout: tt.timeout})
			assert.Equal(t, errors.KindTimeout, res.Kind)
			assert.True(t, res.RetryNeeded)
			assert.Equal(t, tt.want, res.Hints.Timeout)
			assert.Equal(t, 5*time.Second, res.RetryDelay)
		})
	}
}

func TestHandleFailure_RateLimitWait(t *testing.T) {
	f := newFixture(t, Deps{})

	res := f.engine.HandleFailure(context.Background(), errors.NewRateLimitError("genai", 20*time.Second, nil), FailureContext{})
	assert.True(t, res.RetryNeeded)
	assert.Equal(t, 20*time.Second, res.RetryDelay)

	res = f.engine.HandleFailure(context.Background(), stderrors.New("rate limit exceeded"), FailureContext{})
	assert.Equal(t, errors.KindRateLimit, res.Kind)
	assert.Equal(t, 60*time.Second, res.RetryDelay)
}

func TestHandleFailure_DatabaseConnectionProbe(t *testing.T) {
	probed := false
	f := newFixture(t, Deps{DBProbe: ProberFunc(func(context.Context) error {
		probed = true
		return nil
	})})

	res := f.engine.HandleFailure(context.Background(), stderrors.New("sql: connection is already closed"), FailureContext{})
	assert.True(t, probed)
	assert.Equal(t, errors.KindDatabase, res.Kind)
	assert.Equal(t, errors.SeverityCritical, res.Severity)
	assert.True(t, res.RetryNeeded)
	assert.Equal(t, 2*time.Second, res.RetryDelay)

	probed = false
	f.engine.HandleFailure(context.Background(), errors.NewDatabaseError("insert", stderrors.New("unique violation")), FailureContext{})
	assert.False(t, probed)
}

func TestHandleFailure_AuthenticationNeverRetried(t *testing.T) {
	f := newFixture(t, Deps{})

	res := f.engine.HandleFailure(context.Background(), errors.NewAuthenticationError("invalid api key"), FailureContext{})
	assert.False(t, res.RetryNeeded)
	assert.True(t, res.EscalationNeeded)
	assert.Equal(t, MethodSurfaced, res.Method)
	assert.Equal(t, FallbackMessage, res.FallbackMessage)
	assert.Empty(t, f.sink.Escalations())
	assert.Empty(t, f.notifier.records)
	assert.Empty(t, f.sink.RetryAttempts())
	assert.Len(t, f.sink.Errors(), 1)
}

func TestHandleFailure_ValidationAutoCorrects(t *testing.T) {
	f := newFixture(t, withCatalog(t))
	candidate := models.Extraction{ServiceCode: "plombrie", ZoneCode: "bonamoussadi", Confidence: 0.95}

	res := f.engine.HandleFailure(context.Background(), errors.NewValidationError("unknown service code plombrie"), FailureContext{
		Query:     "plombrie fuite bonamoussadi",
		Candidate: &candidate,
	})

	assert.True(t, res.Resolved)
	assert.Equal(t, MethodAutoCorrection, res.Method)
	require.NotNil(t, res.CorrectedData)
	assert.Equal(t, "plomberie", res.CorrectedData.ServiceCode)
	assert.False(t, res.EscalationNeeded)
}

func TestHandleFailure_ValidationFallsBackToSuggestions(t *testing.T) {
	f := newFixture(t, withCatalog(t))
	candidate := models.Extraction{ServiceCode: "jardinage", Confidence: 0.9}

	res := f.engine.HandleFailure(context.Background(), errors.NewValidationError("unknown service code"), FailureContext{
		Query:     "fuite robinet",
		Candidate: &candidate,
	})

	assert.False(t, res.Resolved)
	assert.False(t, res.RetryNeeded)
	assert.False(t, res.EscalationNeeded)
	assert.Equal(t, MethodSuggestions, res.Method)
	require.NotEmpty(t, res.Suggestions)
	assert.Empty(t, f.sink.Escalations())
}

func TestSucceeded_ClearsCounter(t *testing.T) {
	f := newFixture(t, Deps{})
	res := f.engine.HandleFailure(context.Background(), errors.NewProcessingError(nil), FailureContext{})
	require.Equal(t, 1, f.engine.Attempts(res.ErrorID))

	f.engine.Succeeded(context.Background(), res.ErrorID, res.Kind)
	assert.Zero(t, f.engine.Attempts(res.ErrorID))
	attempts := f.sink.RetryAttempts()
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, 2, attempts[1].Attempt)
}
