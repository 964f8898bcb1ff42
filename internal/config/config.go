package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Политики записи в хранилище при создании ссылки
const (
	DurabilitySync  = "sync"
	DurabilityAsync = "async"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Cache  CacheConfig
	Link   LinkConfig
	Tasks  TasksConfig
	Warmup WarmupConfig
}

type AppConfig struct {
	Env             string
	Port            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Timeout  time.Duration // per-call timeout for the durable tier
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type CacheConfig struct {
	TTL       time.Duration // upper bound for shared cache entries
	Timeout   time.Duration // per-call timeout for the shared tier
	LocalSize int
	LocalTTL  time.Duration
}

type LinkConfig struct {
	TTL            time.Duration
	Durability     string
	RedirectStatus int
}

type TasksConfig struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
}

type WarmupConfig struct {
	Enabled bool
	Limit   int
	Rate    float64
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// .env необязателен: в контейнере всё приходит через окружение
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	cfg.App.Env = v.GetString("APP_ENV")
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")
	cfg.App.ReadTimeout = v.GetDuration("HTTP_READ_TIMEOUT")
	cfg.App.WriteTimeout = v.GetDuration("HTTP_WRITE_TIMEOUT")
	cfg.App.IdleTimeout = v.GetDuration("HTTP_IDLE_TIMEOUT")
	cfg.App.ShutdownTimeout = v.GetDuration("SHUTDOWN_TIMEOUT")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.Timeout = v.GetDuration("STORE_TIMEOUT")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Cache.TTL = v.GetDuration("CACHE_TTL")
	cfg.Cache.Timeout = v.GetDuration("CACHE_TIMEOUT")
	cfg.Cache.LocalSize = v.GetInt("LOCAL_CACHE_SIZE")
	cfg.Cache.LocalTTL = v.GetDuration("LOCAL_CACHE_TTL")

	cfg.Link.TTL = v.GetDuration("LINK_TTL")
	cfg.Link.Durability = strings.ToLower(v.GetString("DURABILITY"))
	cfg.Link.RedirectStatus = v.GetInt("REDIRECT_STATUS")

	cfg.Tasks.Workers = v.GetInt("TASK_WORKERS")
	cfg.Tasks.QueueSize = v.GetInt("TASK_QUEUE_SIZE")
	cfg.Tasks.Timeout = v.GetDuration("TASK_TIMEOUT")
	cfg.Tasks.MaxAttempts = v.GetInt("TASK_MAX_ATTEMPTS")

	cfg.Warmup.Enabled = v.GetBool("WARMUP_ENABLED")
	cfg.Warmup.Limit = v.GetInt("WARMUP_LIMIT")
	cfg.Warmup.Rate = v.GetFloat64("WARMUP_RATE")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "prod")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("STORE_TIMEOUT", 2*time.Second)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CACHE_TTL", 7*24*time.Hour)
	v.SetDefault("CACHE_TIMEOUT", 100*time.Millisecond)
	v.SetDefault("LOCAL_CACHE_SIZE", 100_000)
	v.SetDefault("LOCAL_CACHE_TTL", time.Hour)

	v.SetDefault("LINK_TTL", 7*24*time.Hour)
	v.SetDefault("DURABILITY", DurabilitySync)
	v.SetDefault("REDIRECT_STATUS", 301)

	v.SetDefault("TASK_WORKERS", 20)
	v.SetDefault("TASK_QUEUE_SIZE", 1000)
	v.SetDefault("TASK_TIMEOUT", 5*time.Second)
	v.SetDefault("TASK_MAX_ATTEMPTS", 3)

	v.SetDefault("WARMUP_ENABLED", true)
	v.SetDefault("WARMUP_LIMIT", 1000)
	v.SetDefault("WARMUP_RATE", 500)
}

// Validate проверяет значения, от которых зависит корректность кэшей
func (c *Config) Validate() error {
	switch c.Link.Durability {
	case DurabilitySync, DurabilityAsync:
	default:
		return fmt.Errorf("invalid DURABILITY %q: expected %q or %q", c.Link.Durability, DurabilitySync, DurabilityAsync)
	}

	if c.Link.RedirectStatus != 301 && c.Link.RedirectStatus != 302 {
		return fmt.Errorf("invalid REDIRECT_STATUS %d: expected 301 or 302", c.Link.RedirectStatus)
	}

	if c.Link.TTL <= 0 {
		return errors.New("LINK_TTL must be positive")
	}

	if c.Cache.TTL <= 0 || c.Cache.LocalTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}

	if c.Cache.LocalSize <= 0 {
		return errors.New("LOCAL_CACHE_SIZE must be positive")
	}

	if c.Tasks.Workers <= 0 || c.Tasks.QueueSize <= 0 || c.Tasks.MaxAttempts <= 0 {
		return errors.New("task queue settings must be positive")
	}

	return nil
}

// DSN собирает строку подключения к PostgreSQL
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
