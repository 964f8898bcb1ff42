package repository

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/urlefy/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisDB struct {
	Client *redis.Client
}

// NewRedisClient не ходит в сеть: соединения пула открываются лениво
func NewRedisClient(cfg config.RedisConfig) *RedisDB {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	return &RedisDB{Client: client}
}

func (db *RedisDB) Ping(ctx context.Context) error {
	if err := db.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (db *RedisDB) Close() error {
	return db.Client.Close()
}
