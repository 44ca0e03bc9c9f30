package errors

import (
	"fmt"
	"time"
)

// Error codes for the sync error taxonomy. The code decides retry policy:
// network and rate-limit failures are retried once, everything else is
// surfaced as-is.
const (
	CodeNetwork        = "NETWORK_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeRateLimit      = "RATE_LIMIT_ERROR"
	CodeDataConflict   = "DATA_CONFLICT_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeUnknown        = "UNKNOWN_ERROR"
)

// SyncError is the error type for all sync-engine failures
type SyncError struct {
	Code        string
	Message     string
	AccountID   string
	RetryAfter  time.Duration // rate-limit only; zero means the provider gave no hint
	FieldErrors map[string]string
	Details     map[string]interface{}
	Err         error
}

// Error returns a string representation of the error
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface, matching on code
func (e *SyncError) Is(target error) bool {
	if target, ok := target.(*SyncError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient enough to retry once
func (e *SyncError) Retryable() bool {
	return e.Code == CodeNetwork || e.Code == CodeRateLimit
}

// WithAccount attaches the affected account to the error
func (e *SyncError) WithAccount(accountID string) *SyncError {
	e.AccountID = accountID
	return e
}

// WithDetail adds a single detail to the error
func (e *SyncError) WithDetail(key string, value interface{}) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewNetworkError creates a transient network error
func NewNetworkError(message string, err error) *SyncError {
	return &SyncError{
		Code:    CodeNetwork,
		Message: message,
		Err:     err,
	}
}

// NewAuthenticationError creates an error for an account whose credential
// was rejected. Fatal for the account; the user must re-link it.
func NewAuthenticationError(accountID string, message string) *SyncError {
	return &SyncError{
		Code:      CodeAuthentication,
		Message:   message,
		AccountID: accountID,
	}
}

// NewRateLimitError creates a rate-limit error. retryAfter is the delay the
// provider asked for; pass zero when it gave none.
func NewRateLimitError(retryAfter time.Duration) *SyncError {
	return &SyncError{
		Code:       CodeRateLimit,
		Message:    "provider rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewDataConflictError creates an error for a conflict that could not be
// resolved automatically and needs manual review
func NewDataConflictError(accountID, transactionID, message string) *SyncError {
	e := &SyncError{
		Code:      CodeDataConflict,
		Message:   message,
		AccountID: accountID,
	}
	if transactionID != "" {
		e = e.WithDetail("transactionId", transactionID)
	}
	return e
}

// NewValidationError creates a caller-input error; never retried
func NewValidationError(message string) *SyncError {
	return &SyncError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewFieldValidationError creates a validation error carrying per-field messages
func NewFieldValidationError(message string, fieldErrors map[string]string) *SyncError {
	return &SyncError{
		Code:        CodeValidation,
		Message:     message,
		FieldErrors: fieldErrors,
	}
}

// NewUnknownError wraps an unexpected failure. Treated as non-retryable so
// unexpected bugs are surfaced instead of masked by retries.
func NewUnknownError(message string, err error) *SyncError {
	return &SyncError{
		Code:    CodeUnknown,
		Message: message,
		Err:     err,
	}
}

// Classify maps an arbitrary error into the taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(err error) *SyncError {
	if err == nil {
		return nil
	}
	if se, ok := AsSyncError(err); ok {
		return se
	}
	return NewUnknownError("unexpected sync failure", err)
}

// AsSyncError unwraps err looking for a *SyncError
func AsSyncError(err error) (*SyncError, bool) {
	for err != nil {
		if se, ok := err.(*SyncError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
