// Package pipeline is the entry point used by the job workers: one call per
// inbound message, from normalization to suggestions.
package pipeline

import (
	"context"
	"time"

	"service-intake/internal/accumulator"
	"service-intake/internal/catalog"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/genai"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/observability"
	"service-intake/internal/extraction"
	"service-intake/internal/models"
	"service-intake/internal/normalizer"
	"service-intake/internal/recovery"
	"service-intake/internal/suggestion"
	"service-intake/internal/validator"
)

type Message struct {
	UserID    string
	SessionID string
	Text      string
}

// TurnResult is what the chat layer needs to phrase its reply.
type TurnResult struct {
	UserID          string                    `json:"user_id"`
	Request         models.RequestInfo        `json:"request"`
	Extraction      *models.Extraction        `json:"extraction,omitempty"`
	Validation      *models.ValidationResult  `json:"validation,omitempty"`
	Complete        bool                      `json:"complete"`
	MissingFields   []string                  `json:"missing_fields"`
	Suggestions     []models.Suggestion       `json:"suggestions"`
	Resolution      *recovery.ErrorResolution `json:"resolution,omitempty"`
	FallbackMessage string                    `json:"fallback_message,omitempty"`
}

// Turn outcomes reported to observability.
const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
	StatusInvalid    = "invalid"
	StatusEscalated  = "escalated"
	StatusError      = "error"
)

type Deps struct {
	Catalog      catalog.Catalog
	Normalizer   *normalizer.Normalizer
	Extractor    genai.Extractor
	Accumulator  *accumulator.Accumulator
	Conversation accumulator.Conversation
	Validator    *validator.Validator
	Recovery     *recovery.Engine
	Suggestions  *suggestion.Engine
	History      suggestion.History
	Metrics      *observability.Observability
}

type Config struct {
	ExtractTimeout time.Duration
	MaxSuggestions int
	// Sleep waits out retry delays. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Pipeline struct {
	deps   Deps
	cfg    Config
	logger logger.Logger
}

func New(deps Deps, cfg Config, log logger.Logger) *Pipeline {
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(nil)
	}
	if deps.Conversation == nil {
		deps.Conversation = accumulator.NewMemoryConversation(0)
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 30 * time.Second
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 10
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Component(log, "pipeline")}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func (p *Pipeline) Accumulate(ctx context.Context, userID string, incoming models.RequestInfo) (models.RequestInfo, error) {
	return p.deps.Accumulator.Accumulate(ctx, userID, incoming)
}

func (p *Pipeline) Validate(ctx context.Context, candidate models.Extraction, query string, vc validator.Context) (models.ValidationResult, error) {
	return p.deps.Validator.Validate(ctx, candidate, query, vc)
}

func (p *Pipeline) HandleFailure(ctx context.Context, failure error, fc recovery.FailureContext) recovery.ErrorResolution {
	return p.deps.Recovery.HandleFailure(ctx, failure, fc)
}

func (p *Pipeline) GenerateSuggestions(ctx context.Context, query, zoneCode, userID string) (models.SuggestionResponse, error) {
	return p.deps.Suggestions.Generate(ctx, suggestion.Request{Query: query, ZoneCode: zoneCode, UserID: userID})
}

// Reset forgets the conversation of a user, after cancellation or once the
// request was handed over.
func (p *Pipeline) Reset(ctx context.Context, userID string) error {
	if err := p.deps.Accumulator.Clear(ctx, userID); err != nil {
		return err
	}
	return p.deps.Conversation.Reset(ctx, userID)
}

// ProcessMessage runs one turn. Turns of the same user are serialized in
// arrival order. Failures the recovery engine cannot absorb end the turn with
// a fallback message rather than an error; an error is only returned when
// the stored state itself could not be read or written.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg Message) (*TurnResult, error) {
	start := time.Now()
	var result *TurnResult
	err := p.deps.Accumulator.WithSession(ctx, msg.UserID, func(s *accumulator.Session) error {
		var err error
		result, err = p.turn(ctx, s, msg)
		return err
	})

	status := StatusError
	confidence := 0.0
	if err == nil {
		status = turnStatus(result)
		confidence = result.Request.ConfidenceScore
	}
	p.deps.Metrics.RecordTurn(ctx, status, time.Since(start), confidence)
	return result, err
}

func turnStatus(r *TurnResult) string {
	switch {
	case r.Resolution != nil && r.Resolution.EscalationNeeded:
		return StatusEscalated
	case r.Validation != nil && !r.Validation.IsValid && r.Validation.CorrectedData == nil:
		return StatusInvalid
	case r.Complete:
		return StatusComplete
	default:
		return StatusIncomplete
	}
}

func (p *Pipeline) turn(ctx context.Context, s *accumulator.Session, msg Message) (*TurnResult, error) {
	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	query := p.deps.Normalizer.Normalize(msg.Text)
	log := p.logger.WithFields(map[string]interface{}{"userId": msg.UserID, "sessionId": msg.SessionID})

	result := &TurnResult{
		UserID:      msg.UserID,
		Request:     current,
		Suggestions: []models.Suggestion{},
	}
	fc := recovery.FailureContext{
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Query:     query,
		ZoneCode:  current.Location,
		Timeout:   p.cfg.ExtractTimeout,
	}

	history, err := p.deps.Conversation.Recent(ctx, msg.UserID)
	if err != nil {
		log.Warn("conversation history unavailable", map[string]interface{}{"error": err})
	}
	input := extraction.PromptInput{
		Message: query,
		History: history,
		Current: current,
	}
	input.ServiceCodes, input.ZoneCodes = p.codes(ctx, log)

	var ext models.Extraction
	res := p.recover(ctx, fc, func(h models.RetryHints) error {
		input.Hints = h
		opts := genai.Options{MaxTokens: h.MaxTokens, Timeout: h.Timeout}
		if opts.Timeout == 0 {
			opts.Timeout = p.cfg.ExtractTimeout
		}
		raw, err := p.deps.Extractor.Extract(ctx, extraction.BuildPrompt(input), opts)
		if err != nil {
			return err
		}
		ext, err = extraction.Parse(raw)
		return err
	})
	if res != nil {
		return p.unresolved(result, res, current), nil
	}
	result.Extraction = &ext

	var vr models.ValidationResult
	vc := validator.Context{UserID: msg.UserID, SessionID: msg.SessionID}
	res = p.recover(ctx, fc, func(models.RetryHints) error {
		var err error
		vr, err = p.deps.Validator.Validate(ctx, ext, query, vc)
		return err
	})
	if res != nil {
		return p.unresolved(result, res, current), nil
	}
	result.Validation = &vr

	final := accepted(ext, vr)
	merged, err := s.Merge(ctx, final.RequestInfo())
	if err != nil {
		return nil, err
	}
	result.Request = merged
	result.Complete = accumulator.IsComplete(merged)
	result.MissingFields = accumulator.MissingFields(merged)

	if err := p.deps.Conversation.Append(ctx, msg.UserID, msg.Text); err != nil {
		log.Warn("failed to append conversation", map[string]interface{}{"error": err})
	}
	if p.deps.History != nil && final.ServiceCode != "" {
		if err := p.deps.History.Record(ctx, msg.UserID, final.ServiceCode); err != nil {
			log.Warn("failed to record history", map[string]interface{}{"error": err})
		}
	}

	if !vr.IsValid || (len(vr.Corrections) > 0 && vr.CorrectedData == nil) {
		result.Suggestions = p.suggestions(ctx, log, vr, query, final.ZoneCode, msg.UserID)
	}

	log.Info("turn processed", map[string]interface{}{
		"valid":      vr.IsValid,
		"corrected":  vr.CorrectedData != nil,
		"complete":   result.Complete,
		"missing":    result.MissingFields,
		"confidence": vr.ConfidenceScore,
	})
	return result, nil
}

// recover runs op until it succeeds or the recovery engine stops asking for
// retries. It returns the final resolution when op never succeeded.
func (p *Pipeline) recover(ctx context.Context, fc recovery.FailureContext, op func(models.RetryHints) error) *recovery.ErrorResolution {
	var (
		hints models.RetryHints
		kind  errors.ErrorKind
	)
	for {
		err := op(hints)
		if err == nil {
			if fc.ErrorID != "" {
				p.deps.Recovery.Succeeded(ctx, fc.ErrorID, kind)
			}
			return nil
		}

		res := p.deps.Recovery.HandleFailure(ctx, err, fc)
		if !res.RetryNeeded {
			return &res
		}
		fc.ErrorID = res.ErrorID
		kind = res.Kind
		hints = res.Hints
		if hints.Timeout > 0 {
			fc.Timeout = hints.Timeout
		}
		if err := p.cfg.Sleep(ctx, res.RetryDelay); err != nil {
			res.RetryNeeded = false
			res.EscalationNeeded = true
			res.FallbackMessage = recovery.FallbackMessage
			return &res
		}
	}
}

func (p *Pipeline) unresolved(result *TurnResult, res *recovery.ErrorResolution, current models.RequestInfo) *TurnResult {
	result.Resolution = res
	result.Request = current
	result.Complete = accumulator.IsComplete(current)
	result.MissingFields = accumulator.MissingFields(current)
	result.Suggestions = append(result.Suggestions, res.Suggestions...)
	result.FallbackMessage = res.FallbackMessage
	return result
}

// accepted is the extraction that gets merged: corrected data when it was
// auto-applied, and never a code the catalog rejected. A correction that was
// only proposed leaves its original code unknown, so that code is dropped too.
func accepted(ext models.Extraction, vr models.ValidationResult) models.Extraction {
	if vr.CorrectedData != nil {
		return blankRejected(*vr.CorrectedData, vr.Errors)
	}
	for _, c := range vr.Corrections {
		switch {
		case c.Kind == models.ServiceCodeCorrection && c.Original == ext.ServiceCode:
			ext.ServiceCode = ""
		case c.Kind == models.ZoneCodeCorrection && c.Original == ext.ZoneCode:
			ext.ZoneCode = ""
		}
	}
	return blankRejected(ext, vr.Errors)
}

func blankRejected(ext models.Extraction, errs []models.ValidationError) models.Extraction {
	for _, e := range errs {
		switch e.Kind {
		case models.InvalidServiceCode:
			ext.ServiceCode = ""
		case models.InvalidZoneCode:
			ext.ZoneCode = ""
		}
	}
	return ext
}

func (p *Pipeline) suggestions(ctx context.Context, log logger.Logger, vr models.ValidationResult, query, zone, userID string) []models.Suggestion {
	all := append([]models.Suggestion(nil), vr.Suggestions...)
	resp, err := p.deps.Suggestions.Generate(ctx, suggestion.Request{Query: query, ZoneCode: zone, UserID: userID})
	if err != nil {
		log.Warn("suggestion generation failed", map[string]interface{}{"error": err})
	} else {
		all = append(all, resp.Suggestions...)
	}
	return suggestion.Rank(all, p.cfg.MaxSuggestions).Suggestions
}

func (p *Pipeline) codes(ctx context.Context, log logger.Logger) ([]string, []string) {
	var services, zones []string
	if list, err := p.deps.Catalog.ListServices(ctx); err == nil {
		for _, s := range list {
			services = append(services, s.Code)
		}
	} else {
		log.Warn("service codes unavailable for prompt", map[string]interface{}{"error": err})
	}
	if list, err := p.deps.Catalog.ListZones(ctx); err == nil {
		for _, z := range list {
			zones = append(zones, z.Code)
		}
	} else {
		log.Warn("zone codes unavailable for prompt", map[string]interface{}{"error": err})
	}
	return services, zones
}
