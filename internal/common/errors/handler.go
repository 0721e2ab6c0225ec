// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler handles job errors with standardized error handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError fails the job with a decremented retry count when the error
// is retryable and the job has retries left, and throws a BPMN error
// otherwise.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := AsStandardError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	if remaining := RemainingRetries(job.GetRetries(), bpmnErr); remaining > 0 {
		h.failJobWithRetries(ctx, client, job, bpmnErr, remaining)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// RemainingRetries is the retry count to report when failing a job that
// currently has jobRetries left. Zero means the error must be thrown.
func RemainingRetries(jobRetries int32, bpmnErr *BPMNError) int32 {
	if !bpmnErr.Retryable || bpmnErr.Retries <= 0 {
		return 0
	}
	remaining := jobRetries - 1
	if remaining > int32(bpmnErr.Retries) {
		remaining = int32(bpmnErr.Retries)
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AsStandardError unwraps err to a StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int32) {
	cmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(retries).
		ErrorMessage("[" + bpmnErr.Code + "] " + bpmnErr.Message)

	withVars, err := cmd.VariablesFromMap(bpmnErr.ToErrorVariables())
	if err != nil {
		if _, sendErr := cmd.Send(ctx); sendErr != nil {
			h.logSendFailure(job, "fail", sendErr)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.logSendFailure(job, "fail", err)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.GetKey()).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		if _, sendErr := cmd.Send(ctx); sendErr != nil {
			h.logSendFailure(job, "throw", sendErr)
		}
		return
	}
	withVars, err := cmd.VariablesFromString(string(varsJSON))
	if err != nil {
		if _, sendErr := cmd.Send(ctx); sendErr != nil {
			h.logSendFailure(job, "throw", sendErr)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.logSendFailure(job, "throw", err)
	}
}

func (h *ErrorHandler) logSendFailure(job entities.Job, command string, err error) {
	h.logger.Error("Failed to send job command", map[string]interface{}{
		"jobKey":  job.GetKey(),
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.GetKey(),
		"jobType":          job.GetType(),
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.GetProcessInstanceKey(),
	})
}
