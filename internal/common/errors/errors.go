// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Review / phase business errors
const (
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodePhaseLocked            ErrorCode = "PHASE_LOCKED"
	ErrCodePhaseNotFinalized      ErrorCode = "PHASE_NOT_FINALIZED"
	ErrCodeIncompleteReviews      ErrorCode = "INCOMPLETE_REVIEWS"
	ErrCodeNothingToRevert        ErrorCode = "NOTHING_TO_REVERT"
	ErrCodeApplicationNotFound    ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeInputParsingFailed     ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	ErrCodeStorageFailed          ErrorCode = "STORAGE_FAILED"
	ErrCodeStageTransitionFailed  ErrorCode = "STAGE_TRANSITION_FAILED"
	ErrCodeStorageTimeout         ErrorCode = "STORAGE_TIMEOUT"
	ErrCodeSearchIndexFailed      ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

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
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is reports whether target is a StandardError carrying the same code, so
// errors.Is(err, errors.ErrPhaseLocked) matches any phase-locked error.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidationFailed       = &StandardError{Code: ErrCodeValidationFailed}
	ErrPhaseLocked            = &StandardError{Code: ErrCodePhaseLocked}
	ErrPhaseNotFinalized      = &StandardError{Code: ErrCodePhaseNotFinalized}
	ErrIncompleteReviews      = &StandardError{Code: ErrCodeIncompleteReviews}
	ErrNothingToRevert        = &StandardError{Code: ErrCodeNothingToRevert}
	ErrApplicationNotFound    = &StandardError{Code: ErrCodeApplicationNotFound}
	ErrConcurrentModification = &StandardError{Code: ErrCodeConcurrentModification}
	ErrStorageFailed          = &StandardError{Code: ErrCodeStorageFailed}
	ErrStageTransitionFailed  = &StandardError{Code: ErrCodeStageTransitionFailed}
	ErrSearchIndexFailed      = &StandardError{Code: ErrCodeSearchIndexFailed}
	ErrNotificationSendFailed = &StandardError{Code: ErrCodeNotificationSendFailed}
)

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

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationErrorf is NewValidationError with formatting.
func NewValidationErrorf(format string, args ...interface{}) *StandardError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// NewPhaseLockedError reports a write against a finalized phase.
func NewPhaseLockedError(cycleID, phase string) *StandardError {
	return &StandardError{
		Code:      ErrCodePhaseLocked,
		Message:   "Phase is finalized",
		Details:   fmt.Sprintf("cycleId: %s, phase: %s", cycleID, phase),
		Retryable: false,
		Metadata:  map[string]interface{}{"cycleId": cycleID, "phase": phase},
		Timestamp: time.Now().UTC(),
	}
}

// NewPhaseNotFinalizedError reports an unlock of a phase that is still open.
func NewPhaseNotFinalizedError(cycleID, phase string) *StandardError {
	return &StandardError{
		Code:      ErrCodePhaseNotFinalized,
		Message:   "Phase is not finalized",
		Details:   fmt.Sprintf("cycleId: %s, phase: %s", cycleID, phase),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIncompleteReviewsError lists the reviewers blocking a cutoff.
func NewIncompleteReviewsError(reviewers []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIncompleteReviews,
		Message:   "Reviews are incomplete",
		Details:   fmt.Sprintf("incomplete reviewers: %s", strings.Join(reviewers, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"incompleteReviewers": reviewers},
		Timestamp: time.Now().UTC(),
	}
}

// NewNothingToRevertError reports a revert with no recorded cutoff.
func NewNothingToRevertError(cycleID, phase string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNothingToRevert,
		Message:   "No cutoff to revert",
		Details:   fmt.Sprintf("cycleId: %s, phase: %s", cycleID, phase),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputParsingError wraps a failure to decode job variables.
func NewInputParsingError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputParsingFailed,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConcurrentModificationError creates a retryable optimistic-lock error.
func NewConcurrentModificationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrentModification,
		Message:   "Concurrent modification detected",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError creates a retryable storage error.
func NewStorageError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageTimeoutError creates a retryable timeout error.
func NewStorageTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageTimeout,
		Message:   "Storage operation timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStageTransitionError creates a retryable stage write error.
func NewStageTransitionError(applicationID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageTransitionFailed,
		Message:   "Stage transition failed",
		Details:   fmt.Sprintf("applicationId: %s, error: %s", applicationID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchIndexError creates a retryable Elasticsearch indexing error.
func NewSearchIndexError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchIndexFailed,
		Message:   "Search indexing failed",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by
// boundary events in the review processes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:       "VALIDATION_FAILED",
	ErrCodePhaseLocked:            "PHASE_LOCKED",
	ErrCodePhaseNotFinalized:      "PHASE_NOT_FINALIZED",
	ErrCodeIncompleteReviews:      "INCOMPLETE_REVIEWS",
	ErrCodeNothingToRevert:        "NOTHING_TO_REVERT",
	ErrCodeApplicationNotFound:    "APPLICATION_NOT_FOUND",
	ErrCodeInputParsingFailed:     "VALIDATION_FAILED",
	ErrCodeConcurrentModification: "CONCURRENT_MODIFICATION",
	ErrCodeStorageFailed:          "STORAGE_FAILED",
	ErrCodeStorageTimeout:         "STORAGE_FAILED",
	ErrCodeStageTransitionFailed:  "STAGE_TRANSITION_FAILED",
	ErrCodeSearchIndexFailed:      "SEARCH_INDEX_FAILED",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageFailed,
		ErrCodeStageTransitionFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeStorageTimeout,
		ErrCodeConcurrentModification:
		return 2

	default:
		return 0 // Business errors: no retry
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

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PHASE") || strings.Contains(codeStr, "REVERT") ||
		strings.Contains(codeStr, "INCOMPLETE"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "STAGE") ||
		strings.Contains(codeStr, "CONCURRENT"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING") ||
		strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// AsStandardError unwraps err into a StandardError, wrapping anything else
// as a non-retryable internal error.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
