// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeDocumentStoreError ErrorCode = "DOCUMENT_STORE_ERROR"
	ErrCodeDealNotFound       ErrorCode = "DEAL_NOT_FOUND"
	ErrCodeContextBuildFailed ErrorCode = "CONTEXT_BUILD_FAILED"
	ErrCodeConfigError        ErrorCode = "CONFIG_ERROR"
	ErrCodeBrokerError        ErrorCode = "BROKER_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
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
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

func NewInvalidInputError(details string) *StandardError {
	e := newError(ErrCodeInvalidInput, "Invalid job input", nil, false)
	e.Details = details
	return e
}

// NewDocumentStoreError wraps a backend failure for one collection.
func NewDocumentStoreError(collection string, err error) *StandardError {
	return newError(ErrCodeDocumentStoreError,
		fmt.Sprintf("Document store request on %q failed", collection), err, true).
		WithMetadata("collection", collection)
}

func NewDealNotFoundError(dealID string) *StandardError {
	e := newError(ErrCodeDealNotFound, "Deal not found", nil, false)
	e.Details = dealID
	return e
}

func NewContextBuildFailedError(err error) *StandardError {
	return newError(ErrCodeContextBuildFailed, "Failed to build deal context", err, true)
}

func NewConfigError(details string) *StandardError {
	e := newError(ErrCodeConfigError, "Invalid configuration", nil, false)
	e.Details = details
	return e
}

// NewBrokerError wraps a failed call to the workflow engine.
func NewBrokerError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerError, fmt.Sprintf("Workflow engine %s failed", operation), err, true)
}

func NewTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timed out", operation), err, true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternalError, "Unexpected error", err, false)
}

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

// GetRetryCount returns the number of job retries a code is allowed.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDocumentStoreError, ErrCodeContextBuildFailed, ErrCodeBrokerError:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
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

// Normalize turns any error into a StandardError. Context deadline and
// cancellation errors map to TIMEOUT.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return NewTimeoutError("operation", err)
	}
	return NewInternalError(err)
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DOCUMENT") || strings.Contains(codeStr, "DEAL"):
		return "STORE"
	case strings.Contains(codeStr, "BROKER"):
		return "BROKER"
	case strings.Contains(codeStr, "CONTEXT"):
		return "AGGREGATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "CONFIG"):
		return "VALIDATION"
	case code == ErrCodeTimeout:
		return "TIMEOUT"
	default:
		return "OTHER"
	}
}
