package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/SergeiKhy/urlefy/internal/models"
	"github.com/SergeiKhy/urlefy/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	redirectCacheControl = "max-age=86400"
	notFoundCacheControl = "max-age=300"

	notFoundPage    = "<h2>404 - Short URL not found or expired</h2>"
	unavailablePage = "<h2>503 - Service temporarily unavailable</h2>"
)

type URLHandler struct {
	service        service.URLService
	logger         *zap.Logger
	baseURL        string
	redirectStatus int
}

func NewURLHandler(service service.URLService, logger *zap.Logger, baseURL string, redirectStatus int) *URLHandler {
	return &URLHandler{
		service:        service,
		logger:         logger,
		baseURL:        baseURL,
		redirectStatus: redirectStatus,
	}
}

type ShortenRequest struct {
	URL         string `json:"url" binding:"required,url,max=2048"`
	CustomAlias string `json:"customAlias,omitempty" binding:"omitempty,shortcode"`
}

type StatsResponse struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ClickCount  int64     `json:"click_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Shorten godoc
// @Summary Create a short URL
// @Description Creates a short code for url, optionally with a custom alias
// @Tags urls
// @Accept json
// @Produce plain
// @Param request body ShortenRequest true "Shorten request"
// @Success 200 {string} string "Short URL"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/shorten [post]
func (h *URLHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, bindingError(err))
		return
	}

	mapping, err := h.service.Create(c.Request.Context(), &models.CreateURLInput{
		OriginalURL: req.URL,
		CustomAlias: req.CustomAlias,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_url",
				Message: "URL must be an absolute http(s) URL up to 2048 characters",
			})
		case errors.Is(err, service.ErrInvalidAlias):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_alias",
				Message: "Custom alias must be 3-12 characters of letters, digits, '-' or '_'",
			})
		case errors.Is(err, service.ErrDuplicateCode):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "duplicate_alias",
				Message: "Short code is already taken",
			})
		case errors.Is(err, service.ErrUnavailable):
			h.logger.Error("Failed to create short url", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "unavailable",
				Message: "Storage is temporarily unavailable",
			})
		default:
			h.logger.Error("Failed to create short url", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to create short url",
			})
		}
		return
	}

	c.String(http.StatusOK, h.baseURL+"/"+mapping.ShortCode)
}

// Redirect godoc
// @Summary Redirect to original URL
// @Tags urls
// @Produce html
// @Param code path string true "Short code"
// @Success 301 {object} nil
// @Failure 404 {string} string "HTML page"
// @Router /{code} [get]
func (h *URLHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	originalURL, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			h.logger.Warn("Resolve failed", zap.String("short_code", code), zap.Error(err))
			c.Data(http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(unavailablePage))
			return
		}
		NotFound(c)
		return
	}

	c.Header("Cache-Control", redirectCacheControl)
	c.Redirect(h.redirectStatus, originalURL)
}

// Stats godoc
// @Summary Get short URL statistics
// @Tags urls
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} StatsResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/stats/{code} [get]
func (h *URLHandler) Stats(c *gin.Context) {
	code := c.Param("code")

	mapping, err := h.service.Stats(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "unavailable",
				Message: "Storage is temporarily unavailable",
			})
			return
		}
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Short URL not found or expired",
		})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		ShortCode:   mapping.ShortCode,
		OriginalURL: mapping.OriginalURL,
		CreatedAt:   mapping.CreatedAt,
		ExpiresAt:   mapping.ExpiresAt,
		ClickCount:  mapping.ClickCount,
	})
}

// NotFound HTML-страница 404, общая для неизвестных кодов и служебных путей
func NotFound(c *gin.Context) {
	c.Header("Cache-Control", notFoundCacheControl)
	c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(notFoundPage))
}

// bindingError превращает ошибку валидатора в ответ с кодом поля
func bindingError(err error) ErrorResponse {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Field() == "CustomAlias" {
			return ErrorResponse{
				Error:   "invalid_alias",
				Message: "Custom alias must be 3-12 characters of letters, digits, '-' or '_'",
			}
		}
		return ErrorResponse{
			Error:   "invalid_url",
			Message: "URL must be an absolute http(s) URL up to 2048 characters",
		}
	}

	return ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	}
}
