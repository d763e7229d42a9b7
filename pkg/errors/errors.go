package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

const (
	CodeInvalidRequest        = 70001
	CodeAuthFailed            = 70002
	CodeInvalidConfiguration  = 70003
	CodeNotFound              = 70006
	CodeTransport             = 70010
	CodeDependencyUnavailable = 70011
	CodeRateLimited           = 70012
	CodeCircuitOpen           = 70013
	CodeProvider              = 70020
	CodeResponseParse         = 70021
	CodeInternal              = 70030
)

type DomainError struct {
	Code      int
	Message   string
	Details   string
	Retryable bool
	Cause     error
	// UpstreamStatus is the HTTP status returned by the payment provider, 0 when no response was received.
	UpstreamStatus int
}

func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

func (e *DomainError) WithUpstreamStatus(status int) *DomainError {
	e.UpstreamStatus = status
	return e
}

func NewDomainError(code int, message, details string) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
	}
}

func WrapDomainError(err error, code int, message, details string) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Cause:     err,
	}
}

// NewTransportError reports that no HTTP response was obtained from the provider.
func NewTransportError(err error) *DomainError {
	details := "no response"
	if err != nil {
		details = err.Error()
	}
	return WrapDomainError(err, CodeTransport, "payment provider unreachable", details).WithRetryable(true)
}

// NewProviderError reports a provider-side rejection. status is the HTTP status (200 when the body carried result=failure).
func NewProviderError(status int, providerMessage string) *DomainError {
	return NewDomainError(CodeProvider, "payment provider rejected request", providerMessage).
		WithUpstreamStatus(status).
		WithRetryable(status >= 500)
}

// NewResponseParseError reports an HTTP 200 whose body could not be decoded.
func NewResponseParseError(status int, err error) *DomainError {
	return WrapDomainError(err, CodeResponseParse, "payment provider response unreadable", "").
		WithUpstreamStatus(status)
}

// AsDomainError unwraps err to the first DomainError in its chain.
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

func IsDomainError(err error) bool {
	_, ok := AsDomainError(err)
	return ok
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code int) bool {
	domainErr, ok := AsDomainError(err)
	return ok && domainErr.Code == code
}

// ProviderMessage returns the message supplied by the provider, if any.
// Response parse errors are treated as provider errors without a message.
func ProviderMessage(err error) string {
	domainErr, ok := AsDomainError(err)
	if !ok || domainErr.Code != CodeProvider {
		return ""
	}
	return domainErr.Details
}

// IsCanceled reports whether err stems from a canceled context.
func IsCanceled(err error) bool {
	return stderrors.Is(err, context.Canceled)
}

func GetHTTPStatus(err error) int {
	domainErr, ok := AsDomainError(err)
	if !ok {
		return 500
	}
	return HTTPStatusForCode(domainErr.Code)
}

// HTTPStatusForCode maps an error code to the status returned to API callers.
func HTTPStatusForCode(code int) int {
	switch code {
	case CodeInvalidRequest:
		return 400
	case CodeAuthFailed:
		return 401
	case CodeNotFound:
		return 404
	case CodeRateLimited:
		return 429
	case CodeTransport, CodeProvider, CodeResponseParse:
		return 502
	case CodeDependencyUnavailable, CodeCircuitOpen:
		return 503
	default:
		return 500
	}
}
