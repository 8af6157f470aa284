package egiro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func serveHealth(checks map[string]Pinger) (*httptest.ResponseRecorder, map[string]any) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", NewHealthHandler(checks).HandleHealth)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealthHandler_NoChecks(t *testing.T) {
	w, body := serveHealth(nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthHandler_DependencyDown(t *testing.T) {
	redis := new(MockPinger)
	redis.On("Ping", mock.Anything).Return(fmt.Errorf("dial tcp: refused"))

	w, body := serveHealth(map[string]Pinger{"redis": redis})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestHealthHandler_DependencyUp(t *testing.T) {
	redis := new(MockPinger)
	redis.On("Ping", mock.Anything).Return(nil)

	w, _ := serveHealth(map[string]Pinger{"redis": redis})

	assert.Equal(t, http.StatusOK, w.Code)
}
