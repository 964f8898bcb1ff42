package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRejectReserved проверяет, что служебные пути не доходят до обработчика
func TestRejectReserved(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handlerCalls := 0
	router := gin.New()
	router.GET("/:code",
		middleware.RejectReserved("code", func(c *gin.Context) {
			c.String(http.StatusNotFound, "reserved")
		}),
		func(c *gin.Context) {
			handlerCalls++
			c.String(http.StatusOK, c.Param("code"))
		},
	)

	for _, path := range []string{"/favicon.ico", "/robots.txt", "/index.html", "/metrics", "/API"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "reserved", w.Body.String(), path)
	}
	assert.Zero(t, handlerCalls)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/abc123", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())
	assert.Equal(t, 1, handlerCalls)
}

// TestMetrics проверяет, что метка пути берётся из шаблона маршрута
func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	router := gin.New()
	router.Use(middleware.Metrics(m))
	router.GET("/:code", func(c *gin.Context) {
		c.Status(http.StatusMovedPermanently)
	})

	for _, path := range []string{"/aaa111", "/bbb222", "/nested/path"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
	}

	count, err := testutil.GatherAndCount(m.Registry(), "urlefy_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per route template and status")
}

// TestRequestLogger проверяет структурированную строку лога на запрос
func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	router := gin.New()
	router.Use(middleware.RequestLogger(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/ping", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
}
