// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobErrorHandler turns a pipeline failure into a Zeebe fail or throw command.
type JobErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewJobErrorHandler(logger Logger) *JobErrorHandler {
	return &JobErrorHandler{logger: logger}
}

// HandleJobError fails the job with retries when the kind allows it, otherwise
// throws a BPMN error carrying the kind as error code.
func (h *JobErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.normalizeError(err)
	retries := GetRetryCount(stdErr.Kind)

	h.logError(job, stdErr, retries)

	if retries > 0 && job.Retries > 0 {
		h.failJobWithRetries(ctx, client, job, stdErr, retries)
		return
	}
	h.throwError(ctx, client, job, stdErr)
}

func (h *JobErrorHandler) normalizeError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	kind := KindOf(err)
	return &StandardError{
		Kind:      kind,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: PolicyFor(kind).ShouldRetry,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// ErrorVariables returns the variables attached to fail/throw commands.
func ErrorVariables(stdErr *StandardError) map[string]interface{} {
	vars := map[string]interface{}{
		"errorKind":     string(stdErr.Kind),
		"errorMessage":  stdErr.Message,
		"errorDetails":  stdErr.Details,
		"errorSeverity": SeverityOf(stdErr.Kind).String(),
		"retryable":     stdErr.Retryable,
		"timestamp":     stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}
	return vars
}

func (h *JobErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError, maxRetries int) {
	retriesToUse := maxRetries
	if int(job.Retries) < maxRetries {
		retriesToUse = int(job.Retries) - 1
	}
	if retriesToUse < 0 {
		retriesToUse = 0
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retriesToUse)).
		RetryBackoff(Delay(PolicyFor(stdErr.Kind), maxRetries-retriesToUse)).
		ErrorMessage(stdErr.Error())

	varsJSON, err := json.Marshal(ErrorVariables(stdErr))
	if err == nil {
		if cmdWithVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = cmdWithVars.Send(ctx)
			return
		}
	}

	_, _ = cmd.Send(ctx)
}

func (h *JobErrorHandler) throwError(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(string(stdErr.Kind)).
		ErrorMessage(stdErr.Message)

	varsJSON, err := json.Marshal(ErrorVariables(stdErr))
	if err == nil {
		if cmdWithVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = cmdWithVars.Send(ctx)
			return
		}
	}

	_, _ = cmd.Send(ctx)
}

func (h *JobErrorHandler) logError(job entities.Job, stdErr *StandardError, retries int) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorKind":        string(stdErr.Kind),
		"severity":         SeverityOf(stdErr.Kind).String(),
		"message":          stdErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          retries,
		"errorCategory":    GetErrorCategory(stdErr.Kind),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
