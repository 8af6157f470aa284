package models

import (
	"net/http"
	"time"
)

// Classification buckets a counterparty response.
type Classification string

const (
	ClassSuccess     Classification = "success"
	ClassRedirect    Classification = "redirect"
	ClassClientError Classification = "client_error"
	ClassServerError Classification = "server_error"
	ClassTransport   Classification = "transport_error"
)

// DispatchOutcome is the result of one outbound request. It is built once by
// the dispatcher and read-only afterwards.
type DispatchOutcome struct {
	Method         string
	URL            string
	Status         int
	Body           string
	Headers        http.Header
	Location       string
	Classification Classification
	Duration       time.Duration
	Err            error
}

// Classify maps a status code and Location header to a classification.
func Classify(status int, location string) Classification {
	switch {
	case status >= 200 && status < 300:
		return ClassSuccess
	case status == http.StatusFound:
		return ClassRedirect
	case status >= 300 && status < 400:
		if location != "" {
			return ClassRedirect
		}
		return ClassClientError
	case status >= 400 && status < 500:
		return ClassClientError
	case status >= 500:
		return ClassServerError
	default:
		return ClassClientError
	}
}

// RequestDiagnostics describe what was sent. Secrets are masked before they
// land here.
type RequestDiagnostics struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	QueryString string            `json:"query_string,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}
