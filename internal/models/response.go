package models

// APIResponse is the envelope every gateway endpoint answers with.
type APIResponse struct {
	Success    bool                `json:"success"`
	StatusCode int                 `json:"status_code"`
	Message    string              `json:"message"`
	Timestamp  string              `json:"timestamp"`
	TraceID    string              `json:"trace_id,omitempty"`
	Request    *RequestDiagnostics `json:"request,omitempty"`
	Response   *ResponseSection    `json:"response,omitempty"`
	Redirect   *RedirectSection    `json:"redirect,omitempty"`
	Errors     []ErrorEntry        `json:"errors,omitempty"`
}

// ResponseSection echoes what the counterparty answered.
type ResponseSection struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

type RedirectSection struct {
	Status   int    `json:"status"`
	Location string `json:"location"`
}

// ErrorEntry keeps the counterparty's own field names.
type ErrorEntry struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Details      any    `json:"details,omitempty"`
}
