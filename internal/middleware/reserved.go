package middleware

import (
	"github.com/SergeiKhy/urlefy/internal/shortcode"
	"github.com/gin-gonic/gin"
)

// RejectReserved отвечает onReserved для служебных путей (favicon.ico, robots.txt и т.п.),
// не пропуская их к обработчику и уровням хранения
func RejectReserved(param string, onReserved gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if shortcode.IsReserved(c.Param(param)) {
			onReserved(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
