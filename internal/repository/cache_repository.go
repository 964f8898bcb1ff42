package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss ключа нет в кэше; это не ошибка доступа
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository общий для всех инстансов кэш code -> url с TTL
type CacheRepository interface {
	// Get возвращает url и оставшийся TTL (0, если срок неизвестен)
	Get(ctx context.Context, code string) (string, time.Duration, error)
	Set(ctx context.Context, code, url string, ttl time.Duration) error
	SetNX(ctx context.Context, code, url string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, code, url string) error
}

// Удаляет ключ только если в нём всё ещё наше значение,
// чтобы откат неудачного создания не стёр чужую запись.
var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, code string) (string, time.Duration, error) {
	pipe := r.redis.Client.Pipeline()
	get := pipe.Get(ctx, r.key(code))
	pttl := pipe.PTTL(ctx, r.key(code))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, fmt.Errorf("cache get failed: %w", err)
	}

	url, err := get.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, ErrCacheMiss
		}
		return "", 0, fmt.Errorf("cache get failed: %w", err)
	}

	// -1 (нет TTL) и -2 (ключа нет) приходят отрицательными
	ttl := pttl.Val()
	if ttl < 0 {
		ttl = 0
	}

	return url, ttl, nil
}

func (r *cacheRepository) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	if err := r.redis.Client.Set(ctx, r.key(code), url, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// SetNX записывает значение, только если ключа ещё нет
func (r *cacheRepository) SetNX(ctx context.Context, code, url string, ttl time.Duration) (bool, error) {
	ok, err := r.redis.Client.SetNX(ctx, r.key(code), url, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache setnx failed: %w", err)
	}
	return ok, nil
}

func (r *cacheRepository) DeleteIfValue(ctx context.Context, code, url string) error {
	if err := deleteIfValueScript.Run(ctx, r.redis.Client, []string{r.key(code)}, url).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

func (r *cacheRepository) key(code string) string {
	return "url:" + code
}
