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

type historyRecord struct {
	ID         int64     `db:"id"`
	ImageURL   string    `db:"image_url"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
	Referrer   string    `db:"referrer"`
	AccessedAt time.Time `db:"accessed_at"`
}

func (r *historyRecord) ToEntry() *models.AccessHistoryEntry {
	return &models.AccessHistoryEntry{
		ID:         r.ID,
		ImageURL:   r.ImageURL,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		Referrer:   r.Referrer,
		AccessedAt: r.AccessedAt,
	}
}

type summaryRecord struct {
	ImageURL    string    `db:"image_url"`
	AccessCount int64     `db:"access_count"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *summaryRecord) ToSummary() *models.AccessSummary {
	return &models.AccessSummary{
		ImageURL:    r.ImageURL,
		AccessCount: r.AccessCount,
		UpdatedAt:   r.UpdatedAt,
	}
}

// AccessRepository is the access ledger: the per-image summary and the append-only history.
//
// Reads go through the restricted handle, writes through the elevated one.
type AccessRepository struct {
	reader *sqlx.DB
	writer *sqlx.DB
}

func NewAccessRepository(reader, writer *sqlx.DB) *AccessRepository {
	return &AccessRepository{
		reader: reader,
		writer: writer,
	}
}

// FindRecent returns the newest history entry that matches the event on image url, ip address,
// user agent and referrer and was recorded at or after since.
func (r *AccessRepository) FindRecent(ctx context.Context, event models.AccessEvent, since time.Time) (*models.AccessHistoryEntry, error) {
	const op = "database.postgres.AccessRepository.FindRecent"

	rec := new(historyRecord)
	query := `SELECT id, image_url, ip_address, user_agent, referrer, accessed_at
		FROM image_access_history
		WHERE image_url = $1
			AND ip_address = $2
			AND user_agent = $3
			AND referrer = $4
			AND accessed_at >= $5
		ORDER BY accessed_at DESC
		LIMIT 1`

	err := r.reader.GetContext(ctx, rec, query,
		event.ImageURL, event.IPAddress, event.UserAgent, event.Referrer, since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAccessNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get history record: %w", op, err)
	}

	return rec.ToEntry(), nil
}

// TouchSummary inserts the summary row for imageURL or, when it exists,
// bumps its counter and moves updated_at to at.
func (r *AccessRepository) TouchSummary(ctx context.Context, imageURL string, at time.Time) error {
	const op = "database.postgres.AccessRepository.TouchSummary"

	query := `INSERT INTO image_access_logs(image_url, access_count, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (image_url) DO UPDATE
		SET access_count = image_access_logs.access_count + 1,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.writer.ExecContext(ctx, query, imageURL, at); err != nil {
		return fmt.Errorf("%s: failed to upsert summary record: %w", op, err)
	}

	return nil
}

func (r *AccessRepository) AppendHistory(ctx context.Context, event models.AccessEvent) error {
	const op = "database.postgres.AccessRepository.AppendHistory"

	query := `INSERT INTO image_access_history(image_url, ip_address, user_agent, referrer, accessed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.writer.ExecContext(ctx, query,
		event.ImageURL, event.IPAddress, event.UserAgent, event.Referrer, event.Timestamp)
	if err != nil {
		return fmt.Errorf("%s: failed to insert history record: %w", op, err)
	}

	return nil
}

func (r *AccessRepository) GetSummary(ctx context.Context, imageURL string) (*models.AccessSummary, error) {
	const op = "database.postgres.AccessRepository.GetSummary"

	rec := new(summaryRecord)
	query := `SELECT image_url, access_count, updated_at
		FROM image_access_logs
		WHERE image_url = $1`

	err := r.reader.GetContext(ctx, rec, query, imageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSummaryNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get summary record: %w", op, err)
	}

	return rec.ToSummary(), nil
}
