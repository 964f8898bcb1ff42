package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/SergeiKhy/urlefy/internal/config"
	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/models"
	"github.com/SergeiKhy/urlefy/internal/repository"
	"github.com/SergeiKhy/urlefy/internal/shortcode"
	"go.uber.org/zap"
)

// Ошибки сервиса. Всё, что приходит из уровней хранения, переводится в одну из них.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidURL    = fmt.Errorf("%w: invalid url", ErrInvalidInput)
	ErrInvalidAlias  = fmt.Errorf("%w: invalid custom alias", ErrInvalidInput)
	ErrDuplicateCode = errors.New("short code already taken")
	ErrNotFound      = errors.New("short url not found or expired")
	ErrUnavailable   = errors.New("storage tier unavailable")
	ErrCodeExhausted = errors.New("failed to allocate a unique short code")
)

const (
	maxURLLength        = 2048
	maxGenerateAttempts = 5
)

// CodeGenerator источник коротких кодов
type CodeGenerator interface {
	Generate() (string, error)
}

// URLService координирует три уровня: локальный кэш, общий кэш (Redis) и хранилище
type URLService interface {
	Create(ctx context.Context, input *models.CreateURLInput) (*models.URLMapping, error)
	Resolve(ctx context.Context, code string) (string, error)
	Stats(ctx context.Context, code string) (*models.URLMapping, error)
}

// Options политика согласованности и таймауты уровней
type Options struct {
	LinkTTL      time.Duration // срок жизни новой ссылки
	CacheTTL     time.Duration // верхняя граница TTL в общем кэше
	CacheTimeout time.Duration // таймаут одного обращения к Redis
	StoreTimeout time.Duration // таймаут одного обращения к хранилищу
	Durability   string        // config.DurabilitySync | config.DurabilityAsync
}

type urlService struct {
	urlRepo   repository.URLRepository
	cacheRepo repository.CacheRepository
	local     *repository.LocalCache
	generator CodeGenerator
	tasks     TaskQueue
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewURLService создаёт оркестратор уровней
func NewURLService(
	urlRepo repository.URLRepository,
	cacheRepo repository.CacheRepository,
	local *repository.LocalCache,
	generator CodeGenerator,
	tasks TaskQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) URLService {
	return &urlService{
		urlRepo:   urlRepo,
		cacheRepo: cacheRepo,
		local:     local,
		generator: generator,
		tasks:     tasks,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Create создаёт короткую ссылку.
// Когда код занят в Redis, кэши заполняются до записи в хранилище, чтобы resolve
// на любом инстансе видел ссылку сразу. Неудачная запись откатывает оба кэша.
func (s *urlService) Create(ctx context.Context, input *models.CreateURLInput) (*models.URLMapping, error) {
	if err := validateURL(input.OriginalURL); err != nil {
		return nil, err
	}

	if input.CustomAlias != "" {
		if err := shortcode.Validate(input.CustomAlias); err != nil {
			return nil, ErrInvalidAlias
		}
		return s.create(ctx, input.CustomAlias, input.OriginalURL, true)
	}

	// Для сгенерированного кода коллизия означает просто "попробуй другой"
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
		if err := shortcode.Validate(code); err != nil {
			return nil, fmt.Errorf("generated code %q: %w", code, err)
		}

		mapping, err := s.create(ctx, code, input.OriginalURL, false)
		if errors.Is(err, ErrDuplicateCode) {
			s.logger.Debug("Коллизия сгенерированного кода",
				zap.String("short_code", code),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return mapping, err
	}

	return nil, ErrCodeExhausted
}

func (s *urlService) create(ctx context.Context, code, originalURL string, custom bool) (*models.URLMapping, error) {
	now := s.now()
	mapping := &models.URLMapping{
		ShortCode:   code,
		OriginalURL: originalURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.LinkTTL),
	}

	if _, ok := s.local.Get(code); ok {
		return nil, ErrDuplicateCode
	}

	// Redis мог потерять ключ (вытеснение, FLUSH, рестарт), поэтому пользовательский
	// код сверяется с хранилищем до того, как попасть в кэши
	verified := true
	if custom {
		free, err := s.codeFree(ctx, code)
		if err == nil && !free {
			return nil, ErrDuplicateCode
		}
		verified = err == nil
	}

	claimed, sharedOK := s.claimShared(ctx, mapping)
	if sharedOK && !claimed {
		return nil, ErrDuplicateCode
	}

	// Пока код не подтверждён Redis и хранилищем, локальный кэш заполняется только после записи
	early := sharedOK && verified
	if early && !s.local.PutIfAbsent(code, originalURL, mapping.ExpiresAt) {
		s.rollback(ctx, mapping, false, true)
		return nil, ErrDuplicateCode
	}

	if s.opts.Durability == config.DurabilityAsync && early {
		pending := *mapping
		queued := s.tasks.Enqueue(Task{
			Name: TaskPersist,
			Code: code,
			Run: func(ctx context.Context) error {
				return s.persistAsync(ctx, &pending)
			},
		})
		if queued {
			s.metrics.URLCreated()
			return mapping, nil
		}
		s.logger.Warn("Очередь недоступна, синхронная запись", zap.String("short_code", code))
	}

	if err := s.persist(ctx, mapping); err != nil {
		s.rollback(ctx, mapping, early, sharedOK)
		if errors.Is(err, repository.ErrCodeExists) {
			return nil, ErrDuplicateCode
		}
		s.logger.Error("Не удалось сохранить ссылку",
			zap.String("short_code", code),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if !early {
		s.local.Put(code, originalURL, mapping.ExpiresAt)
	}

	s.metrics.URLCreated()
	return mapping, nil
}

// codeFree проверяет код в хранилище. Ошибка означает, что проверить не удалось.
func (s *urlService) codeFree(ctx context.Context, code string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	_, err := s.urlRepo.FindByCode(sctx, code)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, repository.ErrLinkNotFound):
		return true, nil
	default:
		s.logger.Warn("Не удалось проверить код в хранилище",
			zap.String("short_code", code),
			zap.Error(err),
		)
		return false, err
	}
}

// claimShared занимает код в Redis через SETNX.
// sharedOK=false: Redis недоступен, уникальность проверит только хранилище.
func (s *urlService) claimShared(ctx context.Context, mapping *models.URLMapping) (claimed, sharedOK bool) {
	ttl := s.cacheTTL(mapping.ExpiresAt)
	if ttl <= 0 {
		return true, false
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()

	claimed, err := s.cacheRepo.SetNX(cctx, mapping.ShortCode, mapping.OriginalURL, ttl)
	if err != nil {
		s.metrics.TierLookup(metrics.TierShared, metrics.ResultError)
		s.logger.Warn("Общий кэш недоступен при создании",
			zap.String("short_code", mapping.ShortCode),
			zap.Error(err),
		)
		return false, false
	}

	return claimed, true
}

func (s *urlService) persist(ctx context.Context, mapping *models.URLMapping) error {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	return s.urlRepo.Save(sctx, mapping)
}

// persistAsync выполняется в очереди. Конфликт в хранилище означает, что кэши
// отдают чужую ссылку, поэтому они откатываются, а повтор не нужен.
func (s *urlService) persistAsync(ctx context.Context, mapping *models.URLMapping) error {
	err := s.urlRepo.Save(ctx, mapping)
	if !errors.Is(err, repository.ErrCodeExists) {
		return err
	}

	// повтор после потерянного подтверждения находит собственную запись
	stored, ferr := s.urlRepo.FindByCode(ctx, mapping.ShortCode)
	if ferr == nil && stored.OriginalURL == mapping.OriginalURL {
		s.logger.Debug("Ссылка уже записана предыдущей попыткой",
			zap.String("short_code", mapping.ShortCode),
		)
		return nil
	}

	s.rollback(ctx, mapping, true, true)
	s.logger.Error("Код уже занят в хранилище, кэши откатаны",
		zap.String("short_code", mapping.ShortCode),
	)
	return nil
}

// rollback убирает из кэшей только наше значение: параллельный победитель не затрагивается
func (s *urlService) rollback(ctx context.Context, mapping *models.URLMapping, local, shared bool) {
	if local {
		s.local.DeleteIfValue(mapping.ShortCode, mapping.OriginalURL)
	}

	if !shared {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CacheTimeout)
	defer cancel()

	if err := s.cacheRepo.DeleteIfValue(cctx, mapping.ShortCode, mapping.OriginalURL); err != nil {
		s.logger.Error("Не удалось откатить общий кэш",
			zap.String("short_code", mapping.ShortCode),
			zap.Error(err),
		)
	}
}

// Resolve ищет ссылку строго по порядку local -> shared -> durable,
// заполняя все более быстрые уровни на обратном пути.
func (s *urlService) Resolve(ctx context.Context, code string) (string, error) {
	if shortcode.Validate(code) != nil {
		return "", ErrNotFound
	}

	if originalURL, ok := s.local.Get(code); ok {
		s.metrics.TierLookup(metrics.TierLocal, metrics.ResultHit)
		s.recordClick(code)
		return originalURL, nil
	}
	s.metrics.TierLookup(metrics.TierLocal, metrics.ResultMiss)

	if originalURL, ttl, ok := s.getShared(ctx, code); ok {
		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = s.now().Add(ttl)
		}
		s.local.Put(code, originalURL, expiresAt)
		s.recordClick(code)
		return originalURL, nil
	}

	mapping, err := s.findDurable(ctx, code)
	if err != nil {
		return "", err
	}

	s.fill(ctx, mapping)
	s.recordClick(code)

	return mapping.OriginalURL, nil
}

// Stats читает хранилище напрямую: счётчик кликов есть только там
func (s *urlService) Stats(ctx context.Context, code string) (*models.URLMapping, error) {
	if shortcode.Validate(code) != nil {
		return nil, ErrNotFound
	}
	return s.findDurable(ctx, code)
}

// getShared: ошибка или таймаут Redis трактуется как промах
func (s *urlService) getShared(ctx context.Context, code string) (string, time.Duration, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()

	originalURL, ttl, err := s.cacheRepo.Get(cctx, code)
	switch {
	case err == nil:
		s.metrics.TierLookup(metrics.TierShared, metrics.ResultHit)
		return originalURL, ttl, true
	case errors.Is(err, repository.ErrCacheMiss):
		s.metrics.TierLookup(metrics.TierShared, metrics.ResultMiss)
	default:
		s.metrics.TierLookup(metrics.TierShared, metrics.ResultError)
		s.logger.Warn("Общий кэш недоступен, переход к хранилищу",
			zap.String("short_code", code),
			zap.Error(err),
		)
	}
	return "", 0, false
}

func (s *urlService) findDurable(ctx context.Context, code string) (*models.URLMapping, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	mapping, err := s.urlRepo.FindByCode(sctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			s.metrics.TierLookup(metrics.TierDurable, metrics.ResultMiss)
			return nil, ErrNotFound
		}
		s.metrics.TierLookup(metrics.TierDurable, metrics.ResultError)
		s.logger.Error("Хранилище недоступно",
			zap.String("short_code", code),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if mapping.IsExpired(s.now()) {
		s.metrics.TierLookup(metrics.TierDurable, metrics.ResultMiss)
		return nil, ErrNotFound
	}

	s.metrics.TierLookup(metrics.TierDurable, metrics.ResultHit)
	return mapping, nil
}

// fill записывает найденную в хранилище ссылку в оба кэша
func (s *urlService) fill(ctx context.Context, mapping *models.URLMapping) {
	s.local.Put(mapping.ShortCode, mapping.OriginalURL, mapping.ExpiresAt)

	ttl := s.cacheTTL(mapping.ExpiresAt)
	if ttl <= 0 {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()

	if err := s.cacheRepo.Set(cctx, mapping.ShortCode, mapping.OriginalURL, ttl); err != nil {
		s.logger.Warn("Не удалось заполнить общий кэш",
			zap.String("short_code", mapping.ShortCode),
			zap.Error(err),
		)
	}
}

// recordClick ставит инкремент в очередь и никогда не влияет на ответ
func (s *urlService) recordClick(code string) {
	s.tasks.Enqueue(Task{
		Name: TaskClickIncrement,
		Code: code,
		Run: func(ctx context.Context) error {
			return s.urlRepo.IncrementClickCount(ctx, code)
		},
	})
}

// cacheTTL: запись в кэше не должна пережить саму ссылку
func (s *urlService) cacheTTL(expiresAt time.Time) time.Duration {
	return boundedTTL(expiresAt, s.now(), s.opts.CacheTTL)
}

func boundedTTL(expiresAt, now time.Time, limit time.Duration) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl > limit {
		return limit
	}
	return ttl
}

// validateURL абсолютный http(s) URL не длиннее 2048 символов
func validateURL(raw string) error {
	if raw == "" || len(raw) > maxURLLength {
		return ErrInvalidURL
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}
