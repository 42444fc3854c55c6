package generatesuggestions

import (
	"context"
	"encoding/json"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"
	"service-intake/internal/suggestion"
	"service-intake/internal/workers/intake"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "intake-generate-suggestions"
)

type Generator interface {
	Generate(ctx context.Context, req suggestion.Request) (models.SuggestionResponse, error)
}

type Handler struct {
	config     *Config
	generator  Generator
	errHandler *errors.JobErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, g Generator, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		generator:  g,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := intake.ValidateInput(input); err != nil {
		return nil, err
	}

	req := suggestion.Request{
		Query:    input.Query,
		ZoneCode: input.ZoneCode,
		UserID:   input.UserID,
		Budget:   input.Budget,
		Bracket:  suggestion.Bracket(input.Bracket),
	}
	for _, k := range input.Kinds {
		req.Kinds = append(req.Kinds, models.SuggestionKind(k))
	}

	resp, err := h.generator.Generate(ctx, req)
	if err != nil {
		return nil, errors.NewProcessingError(err)
	}
	if input.Limit > 0 && resp.TotalCount > input.Limit {
		resp = suggestion.Rank(resp.Suggestions, input.Limit)
	}

	byKind := make(map[string]int, len(resp.ByKind))
	for k, n := range resp.ByKind {
		byKind[string(k)] = n
	}

	h.logger.Info("suggestions returned", map[string]interface{}{
		"userId":     input.UserID,
		"count":      resp.TotalCount,
		"confidence": resp.RecommendationConfidence,
	})

	return &Output{
		Suggestions:              resp.Suggestions,
		TotalCount:               resp.TotalCount,
		ByKind:                   byKind,
		RecommendationConfidence: resp.RecommendationConfidence,
		GeneratedAt:              resp.GeneratedAt,
	}, nil
}
