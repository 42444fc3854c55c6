package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"service-intake/internal/accumulator"
	"service-intake/internal/audit"
	"service-intake/internal/catalog/catalogtest"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/genai"
	"service-intake/internal/common/logger"
	"service-intake/internal/correction"
	"service-intake/internal/models"
	"service-intake/internal/normalizer"
	"service-intake/internal/recovery"
	"service-intake/internal/suggestion"
	"service-intake/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	raw string
	err error
}

type call struct {
	prompt string
	opts   genai.Options
}

// scriptedExtractor returns replies in order and repeats the last one.
type scriptedExtractor struct {
	mu      sync.Mutex
	replies []reply
	calls   []call
}

func (s *scriptedExtractor) Extract(_ context.Context, prompt string, opts genai.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{prompt: prompt, opts: opts})
	r := s.replies[len(s.replies)-1]
	if len(s.calls) <= len(s.replies) {
		r = s.replies[len(s.calls)-1]
	}
	return r.raw, r.err
}

type harness struct {
	pipeline  *Pipeline
	extractor *scriptedExtractor
	sink      *audit.MemorySink
	history   *suggestion.MemoryHistory
	sleeps    []time.Duration
}

func newHarness(t *testing.T, replies ...reply) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)
	cat := catalogtest.New()
	h := &harness{
		extractor: &scriptedExtractor{replies: replies},
		sink:      audit.NewMemorySink(),
		history:   suggestion.NewMemoryHistory(10),
	}
	noSleep := func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	v := validator.New(cat, correction.NewEngine(cat, 0.6, log), h.sink, validator.Options{}, log)
	sugg := suggestion.NewEngine(cat, h.history, suggestion.Config{}, log)
	rec := recovery.NewEngine(recovery.Deps{
		Sink:      h.sink,
		Validator: v,
		Suggester: sugg,
	}, recovery.Config{Sleep: noSleep}, log)

	h.pipeline = New(Deps{
		Catalog:      cat,
		Normalizer:   normalizer.New(nil),
		Extractor:    h.extractor,
		Accumulator:  accumulator.New(accumulator.NewMemoryStore(time.Hour), log),
		Conversation: accumulator.NewMemoryConversation(10),
		Validator:    v,
		Recovery:     rec,
		Suggestions:  sugg,
		History:      h.history,
	}, Config{Sleep: noSleep}, log)
	return h
}

func (h *harness) process(t *testing.T, userID, text string) *TurnResult {
	t.Helper()
	res, err := h.pipeline.ProcessMessage(context.Background(), Message{UserID: userID, SessionID: "s-" + userID, Text: text})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestProcessMessage_TypoIsAutoCorrected(t *testing.T) {
	h := newHarness(t, reply{raw: "Voici:\n```json\n{\"service_code\":\"plombrie\",\"zone_code\":\"bonamoussadi\",\"description\":\"fuite\",\"confidence\":0.95}\n```"})

	res := h.process(t, "u1", "plombrie fuite bonamoussadi")

	require.NotNil(t, res.Validation)
	require.NotNil(t, res.Validation.CorrectedData)
	assert.Equal(t, "plomberie", res.Validation.CorrectedData.ServiceCode)
	assert.Greater(t, res.Validation.ConfidenceScore, 0.8)

	assert.Equal(t, "plomberie", res.Request.ServiceType)
	assert.Equal(t, "bonamoussadi", res.Request.Location)
	assert.Equal(t, "fuite", res.Request.Description)
	assert.Equal(t, []string{accumulator.FieldTiming}, res.MissingFields)
	assert.Nil(t, res.Resolution)

	recent, err := h.history.Recent(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"plomberie"}, recent)

	require.Len(t, h.extractor.calls, 1)
	assert.Contains(t, h.extractor.calls[0].prompt, "plombrie fuite bonamoussadi")
	assert.Contains(t, h.extractor.calls[0].prompt, "Codes de service connus: climatisation, electricite, menage")
}

func TestProcessMessage_ThreeTurnsAccumulate(t *testing.T) {
	h := newHarness(t,
		reply{raw: `{"service_type":"électricité","description":"problème électrique","confidence":0.8}`},
		reply{raw: `{"location":"Bonamoussadi","location_confidence":0.9,"confidence":0.7}`},
		reply{raw: `{"urgency":"urgent","confidence":0.9}`},
	)

	r1 := h.process(t, "u1", "j'ai un pb électrique")
	assert.Equal(t, "électricité", r1.Request.ServiceType)
	assert.False(t, r1.Complete)

	r2 := h.process(t, "u1", "je suis à Bonamoussadi")
	assert.Equal(t, "Bonamoussadi", r2.Request.Location)
	assert.Equal(t, "électricité", r2.Request.ServiceType)

	r3 := h.process(t, "u1", "c'est urgent")
	assert.True(t, r3.Complete)
	assert.Empty(t, r3.MissingFields)
	assert.Equal(t, "urgent", r3.Request.Urgency)
	assert.Equal(t, "électricité", r3.Request.ServiceType)
	assert.Equal(t, "Bonamoussadi", r3.Request.Location)
	assert.Equal(t, "problème électrique", r3.Request.Description)
	assert.Equal(t, 0.9, r3.Request.ConfidenceScore)

	// slang is normalized before the prompt, and earlier turns feed the history
	assert.Contains(t, h.extractor.calls[0].prompt, "j'ai un problème électrique")
	assert.Contains(t, h.extractor.calls[2].prompt, "- je suis à Bonamoussadi")
	assert.Contains(t, h.extractor.calls[2].prompt, `service="électricité"`)
}

func TestProcessMessage_ParseFailureIsRetriedWithHints(t *testing.T) {
	h := newHarness(t,
		reply{raw: "Désolé, je n'ai pas compris."},
		reply{raw: `{"service_code":"menage","confidence":0.9}`},
	)

	res := h.process(t, "u1", "nettoyage maison")

	assert.Nil(t, res.Resolution)
	assert.Equal(t, "menage", res.Request.ServiceType)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)

	require.Len(t, h.extractor.calls, 2)
	retry := h.extractor.calls[1]
	assert.Equal(t, 400, retry.opts.MaxTokens)
	assert.Contains(t, retry.prompt, "La tentative précédente a échoué")

	errs := h.sink.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindParse, errs[0].Kind)
	attempts := h.sink.RetryAttempts()
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, 2, attempts[1].Attempt)
}

func TestProcessMessage_ExhaustedFailureFallsBack(t *testing.T) {
	h := newHarness(t, reply{err: errors.NewProcessingError(stderrors.New("upstream 503"))})
	ctx := context.Background()
	_, err := h.pipeline.Accumulate(ctx, "u1", models.RequestInfo{Location: "bonamoussadi"})
	require.NoError(t, err)

	res := h.process(t, "u1", "fuite robinet")

	require.NotNil(t, res.Resolution)
	assert.True(t, res.Resolution.EscalationNeeded)
	assert.False(t, res.Resolution.RetryNeeded)
	assert.Equal(t, recovery.FallbackMessage, res.FallbackMessage)
	assert.NotContains(t, res.FallbackMessage, "upstream")
	assert.Equal(t, "bonamoussadi", res.Request.Location)
	assert.NotEmpty(t, res.Suggestions)

	assert.Len(t, h.extractor.calls, errors.PolicyFor(errors.KindProcessing).MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
	assert.Len(t, h.sink.Errors(), 3)

	attempts := h.sink.RetryAttempts()
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Attempt)
		assert.False(t, a.Success)
	}
	require.Len(t, h.sink.Escalations(), 1)
	assert.Equal(t, models.EscalationRetryExhaustion, h.sink.Escalations()[0].Reason)
	assert.Equal(t, attempts[0].ErrorID, h.sink.Escalations()[0].ErrorID)
}

func TestProcessMessage_TimeoutHintDoublesCallTimeout(t *testing.T) {
	h := newHarness(t,
		reply{err: context.DeadlineExceeded},
		reply{raw: `{"service_code":"menage","confidence":0.9}`},
	)

	h.process(t, "u1", "ménage")
	require.Len(t, h.extractor.calls, 2)
	assert.Equal(t, 30*time.Second, h.extractor.calls[0].opts.Timeout)
	assert.Equal(t, 60*time.Second, h.extractor.calls[1].opts.Timeout)
}

func TestProcessMessage_AuthenticationIsNotRetried(t *testing.T) {
	h := newHarness(t, reply{err: errors.NewAuthenticationError("invalid api key")})

	res := h.process(t, "u1", "fuite")
	require.NotNil(t, res.Resolution)
	assert.Equal(t, recovery.MethodSurfaced, res.Resolution.Method)
	assert.Equal(t, recovery.FallbackMessage, res.FallbackMessage)
	assert.Len(t, h.extractor.calls, 1)
	assert.Empty(t, h.sleeps)
	assert.Empty(t, h.sink.Escalations())
	assert.Equal(t, StatusEscalated, turnStatus(res))
}

func TestProcessMessage_RejectedCodeIsNotStored(t *testing.T) {
	h := newHarness(t, reply{raw: `{"service_code":"jardinage","zone_code":"bonamoussadi","description":"tondre la pelouse","confidence":0.9}`})

	res := h.process(t, "u1", "jardinage à bonamoussadi")

	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.IsValid)
	assert.Empty(t, res.Request.ServiceType)
	assert.Equal(t, "bonamoussadi", res.Request.Location)
	assert.NotEmpty(t, res.Suggestions)
	assert.Equal(t, StatusInvalid, turnStatus(res))

	recent, err := h.history.Recent(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestProcessMessage_ProposedCorrectionIsNotStored(t *testing.T) {
	h := newHarness(t, reply{raw: `{"service_code":"plombrie","description":"fuite","confidence":0.4}`})

	res := h.process(t, "u1", "plombrie fuite")

	require.NotNil(t, res.Validation)
	assert.Nil(t, res.Validation.CorrectedData)
	require.Len(t, res.Validation.Corrections, 1)
	assert.Equal(t, "plombrie", res.Validation.Corrections[0].Original)
	assert.Equal(t, "plomberie", res.Validation.Corrections[0].Suggestion)

	assert.Empty(t, res.Request.ServiceType)
	assert.Equal(t, "fuite", res.Request.Description)
	assert.Contains(t, res.MissingFields, accumulator.FieldServiceType)
	assert.NotEmpty(t, res.Suggestions)

	recent, err := h.history.Recent(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestProcessMessage_RequiresUser(t *testing.T) {
	h := newHarness(t, reply{raw: `{"confidence":0.5}`})
	_, err := h.pipeline.ProcessMessage(context.Background(), Message{Text: "bonjour"})
	require.Error(t, err)
	assert.Empty(t, h.extractor.calls)
}

func TestReset(t *testing.T) {
	h := newHarness(t, reply{raw: `{"service_code":"menage","confidence":0.9}`})
	ctx := context.Background()
	h.process(t, "u1", "ménage")

	require.NoError(t, h.pipeline.Reset(ctx, "u1"))
	r, err := h.pipeline.deps.Accumulator.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, r.IsEmpty())
	msgs, err := h.pipeline.deps.Conversation.Recent(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGenerateSuggestions(t *testing.T) {
	h := newHarness(t, reply{raw: `{"confidence":0.5}`})
	resp, err := h.pipeline.GenerateSuggestions(context.Background(), "fuite robinet", "bonamoussadi", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, len(resp.Suggestions), resp.TotalCount)
}
