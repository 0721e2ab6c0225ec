// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Payload / business errors
	ErrCodeInvalidDealPayload     ErrorCode = "INVALID_DEAL_PAYLOAD"
	ErrCodeInvalidLimit           ErrorCode = "INVALID_LIMIT"
	ErrCodeInvalidRankingMode     ErrorCode = "INVALID_RANKING_MODE"
	ErrCodeSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"

	// Collaborator errors
	ErrCodeDealStoreFailed           ErrorCode = "DEAL_STORE_FAILED"
	ErrCodeFingerprintCacheFailed    ErrorCode = "FINGERPRINT_CACHE_FAILED"
	ErrCodeDealIndexFailed           ErrorCode = "DEAL_INDEX_FAILED"
	ErrCodeQueryTimeout              ErrorCode = "QUERY_TIMEOUT"
	ErrCodeWorkflowEngineUnavailable ErrorCode = "WORKFLOW_ENGINE_UNAVAILABLE"
	ErrCodeInputParsingFailed        ErrorCode = "INPUT_PARSING_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code, so errors.Is(err,
// &StandardError{Code: ErrCodeDealStoreFailed}) works through wrapping.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func withOperation(operation string, err error) string {
	return fmt.Sprintf("operation: %s, error: %v", operation, err)
}

// Payload errors are never retried.

func NewInvalidDealPayloadError(details string) *StandardError {
	return newError(ErrCodeInvalidDealPayload, "Invalid deal payload", details, false, nil)
}

func NewInvalidLimitError(limit int) *StandardError {
	return newError(ErrCodeInvalidLimit, "Result limit must be positive", fmt.Sprintf("limit: %d", limit), false, nil)
}

func NewInvalidRankingModeError(mode string) *StandardError {
	return newError(ErrCodeInvalidRankingMode, "Unsupported ranking mode", fmt.Sprintf("ranking: %s", mode), false, nil)
}

func NewSchemaValidationFailedError(details string) *StandardError {
	return newError(ErrCodeSchemaValidationFailed, "Job variables do not match the input schema", details, false, nil)
}

// NewInputParsingFailedError is returned for job variables that are not a
// JSON object.
func NewInputParsingFailedError(err error) *StandardError {
	return newError(ErrCodeInputParsingFailed, "Failed to parse job variables", err.Error(), false, err)
}

// Collaborator errors are retried by the job.

func NewDealStoreFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDealStoreFailed, "Deal store operation failed", withOperation(operation, err), true, err)
}

func NewFingerprintCacheFailedError(err error) *StandardError {
	return newError(ErrCodeFingerprintCacheFailed, "Fingerprint cache operation failed", err.Error(), true, err)
}

func NewDealIndexFailedError(index string, err error) *StandardError {
	return newError(ErrCodeDealIndexFailed, "Deal indexing failed", fmt.Sprintf("index: %s, error: %v", index, err), true, err)
}

func NewQueryTimeoutError(operation string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Query timeout", fmt.Sprintf("operation: %s", operation), true, nil)
}

func NewWorkflowEngineError(operation string, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineUnavailable, "Workflow engine unavailable", withOperation(operation, err), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the BPMN error codes caught by
// boundary events. Codes missing here are thrown as-is.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidDealPayload:     "INVALID_DEAL_PAYLOAD",
	ErrCodeInvalidLimit:           "INVALID_LIMIT",
	ErrCodeInvalidRankingMode:     "INVALID_RANKING_MODE",
	ErrCodeSchemaValidationFailed: "INVALID_DEAL_PAYLOAD",
	ErrCodeDealStoreFailed:        "DEAL_STORE_UNAVAILABLE",
	ErrCodeFingerprintCacheFailed: "FINGERPRINT_CACHE_FAILED",
	ErrCodeDealIndexFailed:        "DEAL_INDEX_UNAVAILABLE",
	ErrCodeQueryTimeout:           "QUERY_TIMEOUT",
	ErrCodeInputParsingFailed:     "INVALID_DEAL_PAYLOAD",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDealStoreFailed,
		ErrCodeDealIndexFailed,
		ErrCodeWorkflowEngineUnavailable:
		return 3

	case ErrCodeFingerprintCacheFailed,
		ErrCodeQueryTimeout:
		return 2

	default:
		return 0 // business errors
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
