package middleware

import (
	"time"

	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/gin-gonic/gin"
)

// unmatchedPath метка для запросов без маршрута, чтобы не раздувать кардинальность
const unmatchedPath = "unmatched"

// Metrics считает запросы и их длительность по шаблону маршрута, а не по сырому пути
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}

		m.HTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}
