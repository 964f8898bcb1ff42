package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SergeiKhy/urlefy/internal/handler"
	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/models"
	"github.com/SergeiKhy/urlefy/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://sho.rt"

// mockURLService отвечает заранее заданными значениями и запоминает вызовы
type mockURLService struct {
	mu       sync.Mutex
	urls     map[string]string
	created  []*models.CreateURLInput
	resolved []string

	createErr  error
	resolveErr error
}

func newMockURLService() *mockURLService {
	return &mockURLService{urls: make(map[string]string)}
}

func (m *mockURLService) Create(ctx context.Context, input *models.CreateURLInput) (*models.URLMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.created = append(m.created, input)
	if m.createErr != nil {
		return nil, m.createErr
	}

	code := input.CustomAlias
	if code == "" {
		code = fmt.Sprintf("gen%04d", len(m.created))
	}
	if _, exists := m.urls[code]; exists {
		return nil, service.ErrDuplicateCode
	}
	m.urls[code] = input.OriginalURL

	return &models.URLMapping{ShortCode: code, OriginalURL: input.OriginalURL}, nil
}

func (m *mockURLService) Resolve(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolved = append(m.resolved, code)
	if m.resolveErr != nil {
		return "", m.resolveErr
	}

	url, ok := m.urls[code]
	if !ok {
		return "", service.ErrNotFound
	}
	return url, nil
}

func (m *mockURLService) Stats(ctx context.Context, code string) (*models.URLMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolveErr != nil {
		return nil, m.resolveErr
	}

	url, ok := m.urls[code]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &models.URLMapping{
		ShortCode:   code,
		OriginalURL: url,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
		ClickCount:  3,
	}, nil
}

func (m *mockURLService) resolveCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resolved...)
}

type stubQueue struct{}

func (stubQueue) Start() {}
func (stubQueue) Stop(ctx context.Context) error { return nil }
func (stubQueue) Enqueue(task service.Task) bool { return true }
func (stubQueue) Stats() service.QueueStats {
	return service.QueueStats{BufferSize: 1000, BufferUsed: 2, WorkerCount: 20}
}

func setupRouter(redirectStatus int) (*gin.Engine, *mockURLService) {
	gin.SetMode(gin.TestMode)

	svc := newMockURLService()
	router := handler.NewRouter(svc, stubQueue{}, metrics.New(), zap.NewNop(), handler.RouterConfig{
		BaseURL:        testBaseURL,
		RedirectStatus: redirectStatus,
	})
	return router, svc
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

// TestShorten_Success проверяет создание ссылки и формат ответа
func TestShorten_Success(t *testing.T) {
	router, svc := setupRouter(http.StatusMovedPermanently)

	w := doRequest(router, http.MethodPost, "/api/shorten", `{"url":"https://example.com/page"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testBaseURL+"/gen0001", w.Body.String())
	require.Len(t, svc.created, 1)
	assert.Equal(t, "https://example.com/page", svc.created[0].OriginalURL)
}

// TestShorten_CustomAlias проверяет пользовательский код и конфликт
func TestShorten_CustomAlias(t *testing.T) {
	router, _ := setupRouter(http.StatusMovedPermanently)

	w := doRequest(router, http.MethodPost, "/api/shorten", `{"url":"https://example.com","customAlias":"my_link"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testBaseURL+"/my_link", w.Body.String())

	w = doRequest(router, http.MethodPost, "/api/shorten", `{"url":"https://example.org","customAlias":"my_link"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate_alias", resp.Error)
}

// TestShorten_BadRequest проверяет отклонение невалидного тела запроса до сервиса
func TestShorten_BadRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"malformed json", `{"url":`, "invalid_request"},
		{"missing url", `{}`, "invalid_url"},
		{"not a url", `{"url":"not a url"}`, "invalid_url"},
		{"too long", `{"url":"https://example.com/` + strings.Repeat("a", 2048) + `"}`, "invalid_url"},
		{"short alias", `{"url":"https://example.com","customAlias":"ab"}`, "invalid_alias"},
		{"reserved alias", `{"url":"https://example.com","customAlias":"robots.txt"}`, "invalid_alias"},
		{"bad chars", `{"url":"https://example.com","customAlias":"a/b/c"}`, "invalid_alias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := setupRouter(http.StatusMovedPermanently)

			w := doRequest(router, http.MethodPost, "/api/shorten", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp handler.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Empty(t, svc.created)
		})
	}
}

// TestShorten_ServiceErrors проверяет отображение ошибок сервиса в статусы
func TestShorten_ServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidURL, http.StatusBadRequest},
		{service.ErrInvalidAlias, http.StatusBadRequest},
		{service.ErrDuplicateCode, http.StatusConflict},
		{fmt.Errorf("%w: timeout", service.ErrUnavailable), http.StatusServiceUnavailable},
		{service.ErrCodeExhausted, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router, svc := setupRouter(http.StatusMovedPermanently)
			svc.createErr = tt.err

			w := doRequest(router, http.MethodPost, "/api/shorten", `{"url":"ftp://example.com"}`)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

// TestRedirect проверяет редирект и заголовки кэширования
func TestRedirect(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			router, svc := setupRouter(status)
			svc.urls["abc123"] = "https://example.com/target"

			w := doRequest(router, http.MethodGet, "/abc123", "")

			assert.Equal(t, status, w.Code)
			assert.Equal(t, "https://example.com/target", w.Header().Get("Location"))
			assert.Equal(t, "max-age=86400", w.Header().Get("Cache-Control"))
		})
	}
}

// TestRedirect_NotFound проверяет HTML-ответ для неизвестного кода
func TestRedirect_NotFound(t *testing.T) {
	router, _ := setupRouter(http.StatusMovedPermanently)

	w := doRequest(router, http.MethodGet, "/unknown1", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "<h2>404 - Short URL not found or expired</h2>", w.Body.String())
	assert.Equal(t, "max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

// TestRedirect_Unavailable проверяет 503 при недоступном хранилище
func TestRedirect_Unavailable(t *testing.T) {
	router, svc := setupRouter(http.StatusMovedPermanently)
	svc.resolveErr = fmt.Errorf("%w: connection refused", service.ErrUnavailable)

	w := doRequest(router, http.MethodGet, "/abc123", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

// TestRedirect_ReservedPaths проверяет, что служебные пути не доходят до сервиса
func TestRedirect_ReservedPaths(t *testing.T) {
	router, svc := setupRouter(http.StatusMovedPermanently)

	for _, path := range []string{"/", "/favicon.ico", "/robots.txt", "/index.html", "/api"} {
		w := doRequest(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "<h2>404 - Short URL not found or expired</h2>", w.Body.String(), path)
	}

	assert.Empty(t, svc.resolveCalls())
}

// TestStats проверяет JSON статистики
func TestStats(t *testing.T) {
	router, svc := setupRouter(http.StatusMovedPermanently)
	svc.urls["stats1"] = "https://example.com/s"

	w := doRequest(router, http.MethodGet, "/api/stats/stats1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stats1", resp.ShortCode)
	assert.Equal(t, "https://example.com/s", resp.OriginalURL)
	assert.Equal(t, int64(3), resp.ClickCount)

	w = doRequest(router, http.MethodGet, "/api/stats/nothere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHealthCheck проверяет health-эндпоинт со статистикой очереди
func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(http.StatusMovedPermanently)

	w := doRequest(router, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string             `json:"status"`
		Queue  service.QueueStats `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1000, resp.Queue.BufferSize)
	assert.Equal(t, 20, resp.Queue.WorkerCount)
}

// TestMetricsEndpoint проверяет, что запросы попадают в Prometheus-экспозицию
func TestMetricsEndpoint(t *testing.T) {
	router, svc := setupRouter(http.StatusMovedPermanently)
	svc.urls["abc123"] = "https://example.com"

	doRequest(router, http.MethodGet, "/abc123", "")

	w := doRequest(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/:code"`)
}
