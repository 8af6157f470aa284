package interpreter

import (
	"fmt"
	"testing"

	"egiro-gateway/internal/models"
	"egiro-gateway/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name     string
		outcome  models.DispatchOutcome
		kind     Kind
		success  bool
		code     string
		status   int
		details  string
		location string
	}{
		{
			name:    "success",
			outcome: models.DispatchOutcome{Status: 200, Classification: models.ClassSuccess},
			kind:    KindSuccess, success: true, status: 200,
		},
		{
			name:    "redirect",
			outcome: models.DispatchOutcome{Status: 302, Classification: models.ClassRedirect, Location: "https://bank.example/consent?x=1"},
			kind:    KindRedirect, success: true, status: 302, location: "https://bank.example/consent?x=1",
		},
		{
			name:    "bad request keeps body",
			outcome: models.DispatchOutcome{Status: 400, Classification: models.ClassClientError, Body: `{"error":"bad"}`},
			kind:    KindCounterparty, code: "AG0400", status: 400, details: `{"error":"bad"}`,
		},
		{
			name:    "server error",
			outcome: models.DispatchOutcome{Status: 503, Classification: models.ClassServerError},
			kind:    KindCounterparty, code: "AG0503", status: 503,
		},
		{
			name:    "transport",
			outcome: models.DispatchOutcome{Classification: models.ClassTransport, Err: fmt.Errorf("dial tcp: refused")},
			kind:    KindTransport, code: "AG0502", status: 502, details: "dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := tt.outcome
			result := Interpret(&outcome)

			assert.Equal(t, tt.kind, result.Kind)
			assert.Equal(t, tt.success, result.Success)
			assert.Equal(t, tt.code, result.Code)
			assert.Equal(t, tt.status, result.HTTPStatus)
			assert.Equal(t, tt.details, result.Details)
			assert.Equal(t, tt.location, result.Location)
		})
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{errors.NewValidationError("x"), "AG0001"},
		{errors.NewConfigurationError("x"), "AG0002"},
		{errors.NewDomainError(errors.KindKeyNotFound, errors.CodeKeyMaterial, "m", ""), "AG0003"},
		{errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "m", ""), "AG0003"},
		{errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "m", ""), "AG0004"},
		{errors.NewDomainError(errors.KindEncryption, errors.CodeCrypto, "m", ""), "AG0004"},
		{errors.NewDomainError(errors.KindCounterpartyUnavailable, errors.CodeCircuitOpen, "m", ""), "AG0005"},
		{errors.NewDomainError(errors.KindInternal, errors.CodeInternal, "m", ""), "AG0006"},
		{errors.NewDomainError(errors.KindTransport, errors.CodeTransportFailed, "m", ""), "AG0502"},
		{fmt.Errorf("plain"), "AG0006"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeFor(tt.err), tt.err.Error())
	}
}

func TestFromError(t *testing.T) {
	result := FromError(fmt.Errorf("wrapped: %w", errors.NewValidationError("boTransactionRefNo must be 35 characters")))

	assert.Equal(t, KindPreflight, result.Kind)
	assert.False(t, result.Success)
	assert.Equal(t, "AG0001", result.Code)
	assert.Equal(t, 422, result.HTTPStatus)
	assert.Equal(t, "boTransactionRefNo must be 35 characters", result.Details)

	result = FromError(fmt.Errorf("boom"))
	assert.Equal(t, 500, result.HTTPStatus)
	assert.Equal(t, "AG0006", result.Code)
}

func TestFromError_PreflightCodesNeverLookLikeCounterpartyStatuses(t *testing.T) {
	preflight := []error{
		errors.NewValidationError("x"),
		errors.NewConfigurationError("x"),
		errors.NewDomainError(errors.KindKeyNotFound, errors.CodeKeyMaterial, "m", ""),
		errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "m", ""),
		errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "m", ""),
		errors.NewDomainError(errors.KindEncryption, errors.CodeCrypto, "m", ""),
		errors.NewDomainError(errors.KindCounterpartyUnavailable, errors.CodeCircuitOpen, "m", ""),
		errors.NewDomainError(errors.KindInternal, errors.CodeInternal, "m", ""),
		// A stray HTTP-looking code must not leak through.
		errors.NewDomainError(errors.KindInternal, 500, "m", ""),
		errors.NewDomainError(errors.KindSigning, 500, "m", ""),
		fmt.Errorf("plain"),
		fmt.Errorf("wrapped: %w", errors.NewDomainError(errors.KindInternal, errors.CodeInternal, "m", "")),
	}
	for _, err := range preflight {
		result := FromError(err)
		var n int
		_, scanErr := fmt.Sscanf(result.Code, "AG%04d", &n)
		assert.NoError(t, scanErr, result.Code)
		assert.Less(t, n, errors.PreflightCodeLimit, err.Error())
	}
}
