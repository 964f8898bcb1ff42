package handler

import (
	"sync"

	"github.com/SergeiKhy/urlefy/internal/shortcode"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators добавляет тег `shortcode` в валидатор gin.
// Правила те же, что проверяет сервис: длина, набор символов, служебные имена.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
			return shortcode.Validate(fl.Field().String()) == nil
		})
	})
}
