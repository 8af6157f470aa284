package egiro

import (
	"egiro-gateway/internal/models"
	"egiro-gateway/internal/services/interpreter"
)

const (
	FlowAuthorizeCreation = "authorize_creation"
	FlowConnectivityTest  = "connectivity_test"
	FlowEddaStatus        = "edda_status"
)

// Report is everything a caller learns about one call. Outcome is nil when
// the request was never sent.
type Report struct {
	Flow      string
	ClientID  string
	RequestID string
	Request   models.RequestDiagnostics
	Outcome   *models.DispatchOutcome
	Result    interpreter.Result
}

// Sent reports whether the counterparty was contacted.
func (r *Report) Sent() bool {
	return r.Outcome != nil
}
