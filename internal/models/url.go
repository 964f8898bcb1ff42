package models

import (
	"time"
)

// URLMapping связь короткого кода с исходным URL.
// Единственный источник истины это хранилище, кэши держат только копию code -> url.
type URLMapping struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ClickCount  int64     `json:"click_count"`
}

// IsExpired сообщает, истёк ли срок жизни ссылки к моменту now
func (m *URLMapping) IsExpired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

type CreateURLInput struct {
	OriginalURL string
	CustomAlias string
}
