package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.TierLookup(TierLocal, ResultHit)
	m.TierLookup(TierLocal, ResultHit)
	m.TierLookup(TierShared, ResultMiss)
	m.URLCreated()
	m.Task("click_increment", TaskFailed)
	m.SetQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tierLookups.WithLabelValues(TierLocal, ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tierLookups.WithLabelValues(TierShared, ResultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.urlsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("click_increment", TaskFailed)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
}

// TestMetrics_Handler экспозиция содержит наши метрики
func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodGet, "/:code", http.StatusMovedPermanently, 0.01)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `urlefy_http_requests_total{method="GET",path="/:code",status_code="301"} 1`)
}

// TestMetrics_IsolatedRegistries два экземпляра не конфликтуют при регистрации
func TestMetrics_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
