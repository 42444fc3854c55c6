package processmessage

import (
	"context"
	"encoding/json"
	"strings"

	"service-intake/internal/accumulator"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"
	"service-intake/internal/pipeline"
	"service-intake/internal/workers/intake"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "intake-process-message"
)

type Processor interface {
	ProcessMessage(ctx context.Context, msg pipeline.Message) (*pipeline.TurnResult, error)
	Reset(ctx context.Context, userID string) error
}

type Handler struct {
	config     *Config
	processor  Processor
	errHandler *errors.JobErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, processor Processor, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		processor:  processor,
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

	if err := intake.Complete(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err})
		return err
	}
	return nil
}

// Execute runs one conversation turn. An unrecoverable processing failure
// still completes the job, flagged as escalated with the fallback message.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := intake.ValidateInput(input); err != nil {
		return nil, err
	}

	if input.Reset {
		if err := h.processor.Reset(ctx, input.UserID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Message) == "" {
			return &Output{
				MissingFields: accumulator.MissingFields(models.RequestInfo{}),
				Suggestions:   []models.Suggestion{},
			}, nil
		}
	}

	res, err := h.processor.ProcessMessage(ctx, pipeline.Message{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Text:      input.Message,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		Request:         res.Request,
		Complete:        res.Complete,
		MissingFields:   res.MissingFields,
		Suggestions:     res.Suggestions,
		Validation:      res.Validation,
		FallbackMessage: res.FallbackMessage,
	}
	if res.Resolution != nil {
		out.Escalated = res.Resolution.EscalationNeeded
		out.ErrorID = res.Resolution.ErrorID
	}

	h.logger.Info("turn completed", map[string]interface{}{
		"userId":    input.UserID,
		"complete":  out.Complete,
		"missing":   out.MissingFields,
		"escalated": out.Escalated,
	})
	return out, nil
}
