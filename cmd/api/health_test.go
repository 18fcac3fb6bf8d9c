package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(ctx context.Context) error {
	return p.err
}

func checkHealth(t *testing.T, db Pinger) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", healthHandler(db, func() []string { return []string{"vwba"} }))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthHandler(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		code, body := checkHealth(t, stubPinger{})
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "up", body["database"])
		assert.Equal(t, []interface{}{"vwba"}, body["methodologies"])
	})

	t.Run("database down", func(t *testing.T) {
		code, body := checkHealth(t, stubPinger{err: errors.New("connection refused")})
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "down", body["database"])
	})
}
