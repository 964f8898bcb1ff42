package handler

import (
	"net/http"

	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/middleware"
	"github.com/SergeiKhy/urlefy/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	BaseURL        string
	RedirectStatus int
}

func NewRouter(
	urlService service.URLService,
	tasks service.TaskQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg RouterConfig,
) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())

	// Логирование и метрики запросов
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics(m))

	urlHandler := NewURLHandler(urlService, logger, cfg.BaseURL, cfg.RedirectStatus)

	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck(tasks))
		api.POST("/shorten", urlHandler.Shorten)
		api.GET("/stats/:code", urlHandler.Stats)
	}

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Редирект: служебные пути отсекаются до обращения к сервису
	router.GET("/:code", middleware.RejectReserved("code", NotFound), urlHandler.Redirect)

	router.NoRoute(NotFound)

	return router
}

// HealthCheck godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/health [get]
func HealthCheck(tasks service.TaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"queue":  tasks.Stats(),
		})
	}
}
