package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to relay clients.
const (
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeStepTimeout      = "STEP_TIMEOUT"
	CodeGatewayFailed    = "GATEWAY_VERIFICATION_FAILED"
	CodeTransport        = "TRANSPORT_ERROR"
	CodeMailboxFull      = "MAILBOX_FULL"
	CodeInternal         = "INTERNAL_ERROR"
	transportUserMessage = "channel operation failed, please contact an admin"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError reports bad user input (currency, amount, order id).
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewTimeoutError reports an expired conversation step.
func NewTimeoutError(step string) error {
	return NewDomainError(CodeStepTimeout, "step deadline exceeded", http.StatusRequestTimeout,
		map[string]any{"step": step})
}

// NewGatewayError wraps a failing payment gateway call.
func NewGatewayError(err error) error {
	return &DomainError{
		Code:       CodeGatewayFailed,
		Message:    "payment gateway verification failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTransportError wraps a failing channel, role or notification call.
func NewTransportError(op string, err error) error {
	return &DomainError{
		Code:       CodeTransport,
		Message:    transportUserMessage,
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

func NewMailboxFull(channelRef string) error {
	return NewDomainError(CodeMailboxFull, "channel inbox is full", http.StatusTooManyRequests,
		map[string]any{"channel_ref": channelRef})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
