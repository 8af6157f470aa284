package egiro

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"egiro-gateway/internal/middleware"
	"egiro-gateway/internal/models"
	egirosvc "egiro-gateway/internal/services/egiro"
	"egiro-gateway/internal/services/interpreter"
	"egiro-gateway/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError names one rejected query parameter.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// buildResponse turns a report into the HTTP status and envelope returned to
// the caller. Counterparty statuses are forwarded as-is.
func buildResponse(report *egirosvc.Report, successMessage, traceID string) (int, models.APIResponse) {
	result := report.Result
	resp := models.APIResponse{
		Success:   result.Success,
		Message:   result.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
		Request:   &report.Request,
	}

	status := result.HTTPStatus
	if outcome := report.Outcome; outcome != nil && outcome.Classification != models.ClassTransport {
		resp.Response = &models.ResponseSection{
			Status:  outcome.Status,
			Headers: flattenHeaders(outcome.Headers),
			Body:    outcome.Body,
		}
	}

	switch result.Kind {
	case interpreter.KindRedirect:
		status = http.StatusOK
		resp.Redirect = &models.RedirectSection{Status: report.Outcome.Status, Location: result.Location}
	case interpreter.KindSuccess:
		resp.Message = successMessage
	default:
		entry := models.ErrorEntry{ErrorCode: result.Code, ErrorMessage: result.Message}
		if result.Details != "" {
			entry.Details = result.Details
		}
		resp.Errors = []models.ErrorEntry{entry}
	}

	if status == 0 {
		status = http.StatusBadGateway
	}
	resp.StatusCode = status
	return status, resp
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// bindQuery binds the query string into dst and answers 422 with per-field
// details when validation fails.
func bindQuery(c *gin.Context, dst any) bool {
	err := c.ShouldBindQuery(dst)
	if err == nil {
		return true
	}

	var details any = err.Error()
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field: formName(dst, fe.StructField()),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		details = fields
	}

	status := errors.GetHTTPStatus(errors.NewValidationError(""))
	c.JSON(status, models.APIResponse{
		Success:    false,
		StatusCode: status,
		Message:    "validation failed",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		TraceID:    c.GetString(middleware.TraceIDContextKey),
		Errors: []models.ErrorEntry{{
			ErrorCode:    errors.FormatCode(errors.CodeValidation),
			ErrorMessage: "validation failed",
			Details:      details,
		}},
	})
	return false
}

func formName(dst any, structField string) string {
	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(structField); ok {
		if tag := f.Tag.Get("form"); tag != "" {
			return strings.Split(tag, ",")[0]
		}
	}
	return structField
}
