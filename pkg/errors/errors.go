package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a DomainError for HTTP mapping and for callers that need to
// tell "never sent" apart from "rejected by the counterparty".
type Kind string

const (
	KindValidation              Kind = "ValidationError"
	KindConfiguration           Kind = "ConfigurationError"
	KindKeyNotFound             Kind = "KeyNotFoundError"
	KindKeyImport               Kind = "KeyImportError"
	KindSigning                 Kind = "SigningError"
	KindEncryption              Kind = "EncryptionError"
	KindTransport               Kind = "TransportError"
	KindCounterparty            Kind = "CounterpartyError"
	KindCounterpartyUnavailable Kind = "CounterpartyUnavailable"
	KindInternal                Kind = "InternalError"
)

// Pre-flight codes. The request never reached the counterparty.
const (
	CodeValidation      = 1
	CodeConfiguration   = 2
	CodeKeyMaterial     = 3
	CodeCrypto          = 4
	CodeCircuitOpen     = 5
	CodeInternal        = 6
	CodeTransportFailed = 502
)

// PreflightCodeLimit bounds the reserved pre-flight block. Counterparty
// statuses start at 100, so they never collide with it.
const PreflightCodeLimit = 100

// DomainError represents a domain-specific error
type DomainError struct {
	Code      int
	Kind      Kind
	Message   string
	Details   string
	Retryable bool
	Cause     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.AGCode(), e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.AGCode(), e.Message)
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// AGCode renders the code as AG followed by four zero-padded digits.
func (e *DomainError) AGCode() string {
	return FormatCode(e.Code)
}

// WithRetryable marks the error as retryable or not
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// WithCause attaches an underlying cause
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(kind Kind, code int, message, details string) *DomainError {
	return &DomainError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// WrapDomainError wraps an existing error as a domain error
func WrapDomainError(err error, kind Kind, code int, message, details string) *DomainError {
	return &DomainError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Details: details,
		Cause:   err,
	}
}

// NewValidationError creates a validation error with code 1
func NewValidationError(details string) *DomainError {
	return NewDomainError(KindValidation, CodeValidation, "validation failed", details)
}

// NewConfigurationError creates a configuration error with code 2
func NewConfigurationError(details string) *DomainError {
	return NewDomainError(KindConfiguration, CodeConfiguration, "invalid client configuration", details)
}

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return stderrors.As(err, &domainErr)
}

// AsDomainError returns the first DomainError in err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsKind reports whether err carries a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	domainErr, ok := AsDomainError(err)
	return ok && domainErr.Kind == kind
}

// FormatCode renders code as an AG code
func FormatCode(code int) string {
	return fmt.Sprintf("AG%04d", code)
}

// GetHTTPStatus maps a domain error to an HTTP status code
func GetHTTPStatus(err error) int {
	domainErr, ok := AsDomainError(err)
	if !ok {
		return 500
	}

	switch domainErr.Kind {
	case KindValidation, KindConfiguration, KindKeyNotFound:
		return 422
	case KindKeyImport, KindSigning, KindEncryption, KindInternal:
		return 500
	case KindTransport:
		return 502
	case KindCounterpartyUnavailable:
		return 503
	case KindCounterparty:
		if domainErr.Code >= 400 && domainErr.Code <= 599 {
			return domainErr.Code
		}
		return 502
	default:
		return 500
	}
}
