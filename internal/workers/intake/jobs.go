// Package intake holds what the intake job workers share: input validation
// and job completion.
package intake

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"service-intake/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateInput checks the `validate` tags of in and reports every failing
// field in one VALIDATION_ERROR.
func ValidateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewValidationError(err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	se := errors.NewValidationError("invalid job input")
	se.Details = strings.Join(fields, ", ")
	return se
}

// Complete sends the complete command with output as job variables.
func Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return errors.NewSystemError(fmt.Errorf("encode job output: %w", err))
	}
	if _, err := cmd.Send(ctx); err != nil {
		return errors.NewNetworkError("zeebe", err)
	}
	return nil
}
