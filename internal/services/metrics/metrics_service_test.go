package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RecordsOnPrivateRegistry(t *testing.T) {
	a := NewService("egiro-gateway", "test")
	b := NewService("egiro-gateway", "test")

	a.RecordDispatch("authorize_creation", "redirect", 120*time.Millisecond)
	a.RecordDispatch("authorize_creation", "redirect", 80*time.Millisecond)
	b.RecordDispatch("authorize_creation", "redirect", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.dispatchTotal.WithLabelValues("authorize_creation", "redirect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.dispatchTotal.WithLabelValues("authorize_creation", "redirect")))
}

func TestService_CountersAndGauges(t *testing.T) {
	s := NewService("egiro-gateway", "test")

	s.RecordRequest("/authorize-creation", "acme", "success")
	s.RecordRateLimitExceeded("acme")
	s.RecordSigning("detached", "ok", 5*time.Millisecond)
	s.RecordError("AG0400", "authorize_creation")
	s.RecordReservation("nonce", "collision")
	s.RecordKeyringsSwept(3)
	s.SetCircuitBreakerState("edda_status", 1)
	s.SetServiceAvailability(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.requestsTotal.WithLabelValues("/authorize-creation", "acme", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.rateLimitExceededTotal.WithLabelValues("acme")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.signingOperationsTotal.WithLabelValues("detached", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.errorsTotal.WithLabelValues("AG0400", "authorize_creation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.identifierCollisions.WithLabelValues("nonce", "collision")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.keyringsSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.circuitBreakerState.WithLabelValues("edda_status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.serviceAvailability))
}

func TestService_Handler(t *testing.T) {
	s := NewService("egiro-gateway", "test")
	s.RecordDispatch("edda_status", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `egiro_dispatch_total{classification="success",environment="test",flow="edda_status",service="egiro-gateway"} 1`), body)
}
