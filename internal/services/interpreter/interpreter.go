package interpreter

import (
	"fmt"
	"net/http"

	"egiro-gateway/internal/models"
	"egiro-gateway/pkg/errors"
)

// Kind is the normalized result category returned to callers.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindRedirect     Kind = "redirect"
	KindCounterparty Kind = "counterparty_error"
	KindTransport    Kind = "transport_error"
	KindPreflight    Kind = "preflight_error"
)

// Result is what the caller sees. Code is empty on success.
type Result struct {
	Kind       Kind
	Success    bool
	Code       string
	Message    string
	Details    string
	Location   string
	HTTPStatus int
}

// Interpret maps a dispatch outcome to a Result. Redirects are successes.
func Interpret(outcome *models.DispatchOutcome) Result {
	switch outcome.Classification {
	case models.ClassSuccess:
		return Result{Kind: KindSuccess, Success: true, Message: "request accepted", HTTPStatus: outcome.Status}
	case models.ClassRedirect:
		return Result{
			Kind:       KindRedirect,
			Success:    true,
			Message:    "authorization redirect issued",
			Location:   outcome.Location,
			HTTPStatus: outcome.Status,
		}
	case models.ClassTransport:
		details := "connection failed"
		if outcome.Err != nil {
			details = outcome.Err.Error()
		}
		return Result{
			Kind:       KindTransport,
			Code:       errors.FormatCode(errors.CodeTransportFailed),
			Message:    "counterparty unreachable",
			Details:    details,
			HTTPStatus: http.StatusBadGateway,
		}
	default:
		return Result{
			Kind:       KindCounterparty,
			Code:       errors.FormatCode(outcome.Status),
			Message:    fmt.Sprintf("counterparty returned HTTP %d", outcome.Status),
			Details:    outcome.Body,
			HTTPStatus: outcome.Status,
		}
	}
}

// FromError maps a failure that happened before anything was sent.
func FromError(err error) Result {
	domainErr, ok := errors.AsDomainError(err)
	if !ok {
		return Result{
			Kind:       KindPreflight,
			Code:       CodeFor(err),
			Message:    "internal error",
			HTTPStatus: http.StatusInternalServerError,
		}
	}
	return Result{
		Kind:       KindPreflight,
		Code:       CodeFor(err),
		Message:    domainErr.Message,
		Details:    domainErr.Details,
		HTTPStatus: errors.GetHTTPStatus(err),
	}
}

// CodeFor returns the AG code for a pre-flight error. Everything except a
// transport failure stays below errors.PreflightCodeLimit.
func CodeFor(err error) string {
	domainErr, ok := errors.AsDomainError(err)
	if !ok {
		return errors.FormatCode(errors.CodeInternal)
	}
	switch domainErr.Kind {
	case errors.KindValidation:
		return errors.FormatCode(errors.CodeValidation)
	case errors.KindConfiguration:
		return errors.FormatCode(errors.CodeConfiguration)
	case errors.KindKeyNotFound, errors.KindKeyImport:
		return errors.FormatCode(errors.CodeKeyMaterial)
	case errors.KindSigning, errors.KindEncryption:
		return errors.FormatCode(errors.CodeCrypto)
	case errors.KindCounterpartyUnavailable:
		return errors.FormatCode(errors.CodeCircuitOpen)
	case errors.KindTransport:
		return errors.FormatCode(errors.CodeTransportFailed)
	default:
		return errors.FormatCode(errors.CodeInternal)
	}
}
