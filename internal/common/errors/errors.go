// Package errors provides the standardized error model shared by the lifecycle engine,
// its infrastructure adapters and the BPMN job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Domain errors. The caller is expected to re-display state or prompt for input.
const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyDecided     ErrorCode = "ALREADY_DECIDED"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodePaymentNotVerified ErrorCode = "PAYMENT_NOT_VERIFIED"
	ErrCodeMissingReason      ErrorCode = "MISSING_REASON"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeAlreadyIssued      ErrorCode = "ALREADY_ISSUED"
	ErrCodeCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"
)

// Infrastructure errors. Always retryable.
const (
	ErrCodeInfrastructure  ErrorCode = "INFRASTRUCTURE_ERROR"
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
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
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause of infrastructure errors.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same code, so the sentinels below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound           = &StandardError{Code: ErrCodeNotFound, Message: "Application not found"}
	ErrAlreadyDecided     = &StandardError{Code: ErrCodeAlreadyDecided, Message: "Application already decided"}
	ErrInvalidTransition  = &StandardError{Code: ErrCodeInvalidTransition, Message: "Invalid lifecycle transition"}
	ErrPaymentNotVerified = &StandardError{Code: ErrCodePaymentNotVerified, Message: "Payment not verified"}
	ErrMissingReason      = &StandardError{Code: ErrCodeMissingReason, Message: "Decision reason required"}
	ErrValidation         = &StandardError{Code: ErrCodeValidation, Message: "Validation failed"}
	ErrAlreadyIssued      = &StandardError{Code: ErrCodeAlreadyIssued, Message: "Credential already issued"}
	ErrCapacityExceeded   = &StandardError{Code: ErrCodeCapacityExceeded, Message: "Offering capacity exceeded"}
	ErrInfrastructure     = &StandardError{Code: ErrCodeInfrastructure, Message: "Infrastructure failure"}
	ErrVersionConflict    = &StandardError{Code: ErrCodeVersionConflict, Message: "Concurrent modification"}
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

func newDomainError(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError is returned when an application id is unknown.
func NewNotFoundError(id string) *StandardError {
	return newDomainError(ErrCodeNotFound, "Application not found", fmt.Sprintf("applicationId: %s", id))
}

// NewAlreadyDecidedError is returned by a decide call on a record that has left pending.
func NewAlreadyDecidedError(id, status string) *StandardError {
	err := newDomainError(ErrCodeAlreadyDecided, "Application already decided",
		fmt.Sprintf("applicationId: %s, status: %s", id, status))
	err.Metadata = map[string]interface{}{"status": status}
	return err
}

// NewInvalidTransitionError reports a lifecycle edge that does not exist.
func NewInvalidTransitionError(id, from, to string) *StandardError {
	err := newDomainError(ErrCodeInvalidTransition, "Invalid lifecycle transition",
		fmt.Sprintf("applicationId: %s, from: %s, to: %s", id, from, to))
	err.Metadata = map[string]interface{}{"from": from, "to": to}
	return err
}

// NewPaymentNotVerifiedError blocks approval of a paid category.
func NewPaymentNotVerifiedError(id, paymentState string) *StandardError {
	return newDomainError(ErrCodePaymentNotVerified, "Payment not verified",
		fmt.Sprintf("applicationId: %s, paymentState: %s", id, paymentState))
}

// NewMissingReasonError is returned when a rejection or revert has blank notes.
func NewMissingReasonError(id string) *StandardError {
	return newDomainError(ErrCodeMissingReason, "Decision reason required", fmt.Sprintf("applicationId: %s", id))
}

// NewValidationError reports missing or malformed input.
func NewValidationError(details string) *StandardError {
	return newDomainError(ErrCodeValidation, "Validation failed", details)
}

// NewAlreadyIssuedError reports that an owner already holds a credential key.
func NewAlreadyIssuedError(ownerID, key string) *StandardError {
	err := newDomainError(ErrCodeAlreadyIssued, "Credential already issued", fmt.Sprintf("applicationId: %s", ownerID))
	err.Metadata = map[string]interface{}{"key": key}
	return err
}

// NewCapacityExceededError reports a breached hard cap.
func NewCapacityExceededError(offeringRef string, capacity int64) *StandardError {
	err := newDomainError(ErrCodeCapacityExceeded, "Offering capacity exceeded",
		fmt.Sprintf("offeringRef: %s, cap: %d", offeringRef, capacity))
	err.Metadata = map[string]interface{}{"offeringRef": offeringRef, "cap": capacity}
	return err
}

// NewInfrastructureError wraps a persistence, cache or transport failure.
func NewInfrastructureError(operation string, err error) *StandardError {
	details := operation
	if err != nil {
		details = fmt.Sprintf("operation: %s, error: %s", operation, err.Error())
	}
	return &StandardError{
		Code:      ErrCodeInfrastructure,
		Message:   "Infrastructure failure",
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewVersionConflictError reports a lost compare-and-set on a record version.
func NewVersionConflictError(id string, expected int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeVersionConflict,
		Message:   "Concurrent modification",
		Details:   fmt.Sprintf("applicationId: %s, expectedVersion: %d", id, expected),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Inspection Helpers
// ==========================

// CodeOf extracts the code of a StandardError anywhere in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err should be retried by the caller.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// IsDomainError reports whether err is one of the recoverable-by-caller domain errors.
func IsDomainError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeAlreadyDecided, ErrCodeInvalidTransition, ErrCodePaymentNotVerified,
		ErrCodeMissingReason, ErrCodeValidation, ErrCodeAlreadyIssued, ErrCodeCapacityExceeded:
		return true
	}
	return false
}

// ==========================
// 5. BPMN Mapping
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled on BPMN boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNotFound:           "APPLICATION_NOT_FOUND",
	ErrCodeAlreadyDecided:     "APPLICATION_ALREADY_DECIDED",
	ErrCodeInvalidTransition:  "INVALID_TRANSITION",
	ErrCodePaymentNotVerified: "PAYMENT_NOT_VERIFIED",
	ErrCodeMissingReason:      "MISSING_REASON",
	ErrCodeValidation:         "VALIDATION_ERROR",
	ErrCodeAlreadyIssued:      "CREDENTIAL_ALREADY_ISSUED",
	ErrCodeCapacityExceeded:   "CAPACITY_EXCEEDED",
	ErrCodeInfrastructure:     "INFRASTRUCTURE_ERROR",
	ErrCodeVersionConflict:    "INFRASTRUCTURE_ERROR",
	ErrCodeInternal:           "INTERNAL_ERROR",
}

// GetRetryCount returns how many times a job failing with code should be retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeInfrastructure:
		return 3
	case ErrCodeVersionConflict:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError into the error thrown to the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	code, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		code = string(stdErr.Code)
	}

	return &BPMNError{
		Code:           code,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}

// IsRetryableErrorCode reports whether code is retried by the job transport.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for dashboards and logs.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeNotFound, ErrCodeAlreadyDecided, ErrCodeInvalidTransition:
		return "LIFECYCLE"
	case ErrCodePaymentNotVerified, ErrCodeMissingReason, ErrCodeValidation:
		return "INPUT"
	case ErrCodeAlreadyIssued:
		return "CREDENTIAL"
	case ErrCodeCapacityExceeded:
		return "CAPACITY"
	case ErrCodeInfrastructure, ErrCodeVersionConflict:
		return "INFRASTRUCTURE"
	default:
		return "UNKNOWN"
	}
}
