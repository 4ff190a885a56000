package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

type linkRecord struct {
	ID          int64     `db:"id"`
	ShortID     string    `db:"short_id"`
	OriginalURL string    `db:"original_url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *linkRecord) ToShortLink() *models.ShortLink {
	return &models.ShortLink{
		ID:          r.ID,
		ShortID:     r.ShortID,
		OriginalURL: r.OriginalURL,
		CreatedAt:   r.CreatedAt,
	}
}

// LinkRepository stores short links. It must be given the elevated (service) handle.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Create(ctx context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO shortened_urls(short_id, original_url, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, short_id, original_url, created_at`

	err := r.db.GetContext(ctx, rec, query, shortID, originalURL, createdAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortIDExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToShortLink(), nil
}

func (r *LinkRepository) GetByShortID(ctx context.Context, shortID string) (*models.ShortLink, error) {
	const op = "database.postgres.LinkRepository.GetByShortID"

	rec := new(linkRecord)
	query := `SELECT id, short_id, original_url, created_at
		FROM shortened_urls
		WHERE short_id = $1`

	err := r.db.GetContext(ctx, rec, query, shortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToShortLink(), nil
}
