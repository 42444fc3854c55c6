// Package genai wraps the upstream text-generation call used for extraction.
package genai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/metrics"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Options override the defaults of a single call.
type Options struct {
	MaxTokens int
	Timeout   time.Duration
}

// Extractor returns the raw model output for a prompt. The output may or may
// not contain valid JSON; callers parse it.
type Extractor interface {
	Extract(ctx context.Context, prompt string, opts Options) (string, error)
}

type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxTokens         int
	Temperature       float32
	RequestsPerSecond float64
	Burst             int
}

type OpenAIExtractor struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	logger  logger.Logger
}

func NewOpenAIExtractor(cfg Config, log logger.Logger) *OpenAIExtractor {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &OpenAIExtractor{
		client:  openai.NewClientWithConfig(oc),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Component(log, "genai"),
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, prompt string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return "", errors.NewTimeoutError("genai", fmt.Errorf("waiting for rate limiter: %w", err))
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: e.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		mapped := mapError(ctx, err)
		e.logger.Warn("extraction call failed", map[string]interface{}{
			"errorKind": errors.KindOf(mapped),
			"error":     err,
			"timeout":   timeout.String(),
		})
		return "", mapped
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.NewProcessingError(stderrors.New("empty completion"))
	}

	e.logger.Debug("extraction call completed", map[string]interface{}{
		"model":        resp.Model,
		"inputTokens":  resp.Usage.PromptTokens,
		"outputTokens": resp.Usage.CompletionTokens,
	})
	return resp.Choices[0].Message.Content, nil
}

func mapError(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("genai", err)
	}

	status, message := 0, ""
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case stderrors.As(err, &apiErr):
		status, message = apiErr.HTTPStatusCode, apiErr.Message
	case stderrors.As(err, &reqErr):
		status, message = reqErr.HTTPStatusCode, reqErr.Error()
	}

	switch {
	case status == http.StatusTooManyRequests:
		retryAfter, _ := errors.ParseRetryAfter(message)
		return errors.NewRateLimitError("genai", retryAfter, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAuthenticationError(message)
	case status != 0:
		return errors.NewProcessingError(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.NewNetworkError("genai", err)
	}
	return errors.NewProcessingError(err)
}
