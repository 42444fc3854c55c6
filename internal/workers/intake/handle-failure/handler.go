package handlefailure

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/recovery"
	"service-intake/internal/workers/intake"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "intake-handle-failure"
)

type Recoverer interface {
	HandleFailure(ctx context.Context, failure error, fc recovery.FailureContext) recovery.ErrorResolution
}

type Handler struct {
	config     *Config
	recoverer  Recoverer
	errHandler *errors.JobErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, r Recoverer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		recoverer:  r,
		errHandler: errors.NewJobErrorHandler(l),
		logger:     l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		perr := errors.NewParseError("job variables", err)
		h.errHandler.HandleJobError(context.Background(), client, job, perr)
		return perr
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return err
	}
	return intake.Complete(ctx, client, job, output)
}

// Execute decides what the process does with a reported failure. The job
// itself succeeds whatever the decision; the output carries it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := intake.ValidateInput(input); err != nil {
		return nil, err
	}

	res := h.recoverer.HandleFailure(ctx, failureOf(input), recovery.FailureContext{
		ErrorID:   input.ErrorID,
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Query:     input.Query,
		ZoneCode:  input.ZoneCode,
		Candidate: input.Candidate,
		Timeout:   time.Duration(input.TimeoutMs) * time.Millisecond,
	})

	h.logger.Info("failure handled", map[string]interface{}{
		"errorId":    res.ErrorID,
		"errorKind":  string(res.Kind),
		"method":     res.Method,
		"retry":      res.RetryNeeded,
		"escalation": res.EscalationNeeded,
	})

	return &Output{
		ErrorID:          res.ErrorID,
		ErrorKind:        string(res.Kind),
		Severity:         res.Severity.String(),
		Resolved:         res.Resolved,
		ResolutionMethod: res.Method,
		CorrectedData:    res.CorrectedData,
		RetryNeeded:      res.RetryNeeded,
		RetryDelayMs:     res.RetryDelay.Milliseconds(),
		TimeoutMs:        res.Hints.Timeout.Milliseconds(),
		MaxTokens:        res.Hints.MaxTokens,
		EscalationNeeded: res.EscalationNeeded,
		Suggestions:      res.Suggestions,
		FallbackMessage:  res.FallbackMessage,
	}, nil
}

func failureOf(input *Input) error {
	if input.ErrorKind == "" {
		return stderrors.New(input.ErrorMessage)
	}
	return &errors.StandardError{
		Kind:      errors.ErrorKind(input.ErrorKind),
		Message:   input.ErrorMessage,
		Retryable: errors.PolicyFor(errors.ErrorKind(input.ErrorKind)).ShouldRetry,
		Timestamp: time.Now().UTC(),
	}
}
