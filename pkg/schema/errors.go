package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeFrameEmpty        = "FRAME_EMPTY"
	ErrCodeFrameTooLarge     = "FRAME_TOO_LARGE"
	ErrCodeMalformedBody     = "MALFORMED_BODY"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnknownAction     = "UNKNOWN_ACTION"
	ErrCodeLoaderUnavailable = "LOADER_UNAVAILABLE"
	ErrCodePreparationFailed = "PREPARATION_FAILED"
	ErrCodeNotLoaded         = "NOT_LOADED"
	ErrCodeAlreadyLoaded     = "ALREADY_LOADED"
	ErrCodeConfigIO          = "CONFIG_IO"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// BridgeError is the structured error type for all extbridge operations.
type BridgeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BridgeError.
func NewError(code, message string) *BridgeError {
	return &BridgeError{Code: code, Message: message}
}

// NewErrorf creates a new BridgeError with a formatted message.
func NewErrorf(code, format string, args ...any) *BridgeError {
	return &BridgeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *BridgeError) WithCause(err error) *BridgeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BridgeError) WithDetails(details map[string]any) *BridgeError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first BridgeError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err's chain contains a BridgeError with the given code.
func HasCode(err error, code string) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Code == code
}
