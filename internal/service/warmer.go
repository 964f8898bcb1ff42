package service

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultWarmupQueryTimeout = 30 * time.Second
	warmupBurst               = 100
)

type WarmerConfig struct {
	Limit        int           // сколько самых популярных ссылок загружать
	Rate         float64       // записей в секунду в общий кэш
	CacheTTL     time.Duration // верхняя граница TTL
	CacheTimeout time.Duration
	QueryTimeout time.Duration
}

// CacheWarmer заполняет оба кэша самыми популярными активными ссылками.
// Повторный прогон только перезаписывает те же значения.
type CacheWarmer struct {
	urlRepo   repository.URLRepository
	cacheRepo repository.CacheRepository
	local     *repository.LocalCache
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       WarmerConfig
	now       func() time.Time
}

func NewCacheWarmer(
	urlRepo repository.URLRepository,
	cacheRepo repository.CacheRepository,
	local *repository.LocalCache,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg WarmerConfig,
) *CacheWarmer {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultWarmupQueryTimeout
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}

	return &CacheWarmer{
		urlRepo:   urlRepo,
		cacheRepo: cacheRepo,
		local:     local,
		limiter:   rate.NewLimiter(limit, warmupBurst),
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start прогревает кэши в фоне, не задерживая приём запросов
func (w *CacheWarmer) Start(ctx context.Context) {
	go func() {
		if err := w.Warm(ctx); err != nil {
			w.logger.Warn("Прогрев кэша не выполнен", zap.Error(err))
		}
	}()
}

// Warm загружает top-N ссылок из хранилища в оба кэша.
// Ошибки отдельных записей в Redis не прерывают прогрев.
func (w *CacheWarmer) Warm(ctx context.Context) error {
	start := time.Now()

	qctx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
	mappings, err := w.urlRepo.FindMostPopular(qctx, w.cfg.Limit)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load popular urls: %w", err)
	}

	warmed, failed := 0, 0
	for _, mapping := range mappings {
		if mapping.IsExpired(w.now()) {
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			// контекст отменён: останавливаемся, уже записанное остаётся
			w.logger.Info("Прогрев кэша прерван", zap.Int("warmed", warmed))
			break
		}

		w.local.Put(mapping.ShortCode, mapping.OriginalURL, mapping.ExpiresAt)

		ttl := boundedTTL(mapping.ExpiresAt, w.now(), w.cfg.CacheTTL)
		if ttl > 0 {
			cctx, cancel := context.WithTimeout(ctx, w.cfg.CacheTimeout)
			err := w.cacheRepo.Set(cctx, mapping.ShortCode, mapping.OriginalURL, ttl)
			cancel()
			if err != nil {
				failed++
				w.logger.Debug("Не удалось прогреть общий кэш",
					zap.String("short_code", mapping.ShortCode),
					zap.Error(err),
				)
			}
		}

		warmed++
	}

	w.metrics.SetWarmedEntries(warmed)
	w.logger.Info("Кэш прогрет",
		zap.Int("warmed", warmed),
		zap.Int("shared_failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}
