package flow

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes flow errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates input was rejected before anything was logged.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeLoginRequired indicates no session credential is available.
	ErrCodeLoginRequired ErrorCode = "LOGIN_REQUIRED"

	// ErrCodeSubmitFailed indicates the gateway call failed or was rejected.
	ErrCodeSubmitFailed ErrorCode = "SUBMIT_FAILED"

	// ErrCodeBusy indicates a submission is already in flight.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeInvalidState indicates the operation is not allowed in the current step.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Error is returned by flow operations. Message is operator-facing.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsLoginRequired reports whether err asks the operator to log in.
func IsLoginRequired(err error) bool { return hasCode(err, ErrCodeLoginRequired) }

// IsSubmitFailed reports whether err is a network or remote failure.
func IsSubmitFailed(err error) bool { return hasCode(err, ErrCodeSubmitFailed) }

// IsBusy reports whether err rejected a submission because one was in flight.
func IsBusy(err error) bool { return hasCode(err, ErrCodeBusy) }

// IsInvalidState reports whether err rejected an operation for the current step.
func IsInvalidState(err error) bool { return hasCode(err, ErrCodeInvalidState) }

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Operator-facing messages.
const (
	msgConnectFailed = "Failed to connect to server. Please try again."
	msgLoginRequired = "Login required. Run the login command and try again."
	msgBusy          = "A submission is already in progress."
)
