package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/urlefy/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

const uniqueViolation = "23505"

// URLRepository долговременное хранилище, единственный источник истины
type URLRepository interface {
	Save(ctx context.Context, mapping *models.URLMapping) error
	FindByCode(ctx context.Context, code string) (*models.URLMapping, error)
	FindMostPopular(ctx context.Context, limit int) ([]*models.URLMapping, error)
	IncrementClickCount(ctx context.Context, code string) error
}

type urlRepository struct {
	db *PostgresDB
}

func NewURLRepository(db *PostgresDB) URLRepository {
	return &urlRepository{db: db}
}

// Save вставляет новую запись. Существующий код никогда не перезаписывается.
func (r *urlRepository) Save(ctx context.Context, mapping *models.URLMapping) error {
	query := `
		INSERT INTO urls (short_code, original_url, created_at, expires_at, click_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		mapping.ShortCode,
		mapping.OriginalURL,
		mapping.CreatedAt,
		mapping.ExpiresAt,
		mapping.ClickCount,
	).Scan(&mapping.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to save url: %w", err)
	}

	return nil
}

// FindByCode возвращает ErrLinkNotFound и для отсутствующих, и для истёкших ссылок
func (r *urlRepository) FindByCode(ctx context.Context, code string) (*models.URLMapping, error) {
	query := `
		SELECT id, short_code, original_url, created_at, expires_at, click_count
		FROM urls
		WHERE short_code = $1 AND expires_at > NOW()
	`

	mapping := &models.URLMapping{}
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&mapping.ID,
		&mapping.ShortCode,
		&mapping.OriginalURL,
		&mapping.CreatedAt,
		&mapping.ExpiresAt,
		&mapping.ClickCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get url: %w", err)
	}

	return mapping, nil
}

// FindMostPopular активные ссылки по убыванию click_count (индекс idx_urls_active_popular)
func (r *urlRepository) FindMostPopular(ctx context.Context, limit int) ([]*models.URLMapping, error) {
	query := `
		SELECT id, short_code, original_url, created_at, expires_at, click_count
		FROM urls
		WHERE expires_at > NOW()
		ORDER BY click_count DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular urls: %w", err)
	}
	defer rows.Close()

	mappings := make([]*models.URLMapping, 0, limit)
	for rows.Next() {
		mapping := &models.URLMapping{}
		if err := rows.Scan(
			&mapping.ID,
			&mapping.ShortCode,
			&mapping.OriginalURL,
			&mapping.CreatedAt,
			&mapping.ExpiresAt,
			&mapping.ClickCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		mappings = append(mappings, mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating popular urls: %w", err)
	}

	return mappings, nil
}

// IncrementClickCount атомарный инкремент на стороне БД, без read-modify-write
func (r *urlRepository) IncrementClickCount(ctx context.Context, code string) error {
	query := `UPDATE urls SET click_count = click_count + 1 WHERE short_code = $1`

	result, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
