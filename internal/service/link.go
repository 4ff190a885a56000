package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/idgen"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

const maxShortIDAttempts = 5

// LinkRepository defines the storage operations the link registry relies on.
type LinkRepository interface {
	// Create inserts a new short link. Returns database.ErrShortIDExists on id collision.
	Create(ctx context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error)

	// GetByShortID returns the link for a short id or database.ErrLinkNotFound.
	GetByShortID(ctx context.Context, shortID string) (*models.ShortLink, error)
}

// LinkService issues short ids for image URLs and resolves them back.
type LinkService struct {
	repo          LinkRepository
	shortIDLength int
	now           func() time.Time
}

// NewLinkService creates a LinkService. A non-positive length falls back to idgen.ShortIDLength.
func NewLinkService(repo LinkRepository, shortIDLength int) *LinkService {
	if shortIDLength <= 0 {
		shortIDLength = idgen.ShortIDLength
	}

	return &LinkService{
		repo:          repo,
		shortIDLength: shortIDLength,
		now:           time.Now,
	}
}

// Shorten stores originalURL under a freshly generated short id.
// Ids that collide with existing rows are regenerated up to five times.
func (s *LinkService) Shorten(ctx context.Context, originalURL string) (*models.ShortLink, error) {
	const op = "service.LinkService.Shorten"

	if !models.IsSecureURL(originalURL) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	for i := 0; i < maxShortIDAttempts; i++ {
		shortID, err := idgen.New(s.shortIDLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short id: %w", op, err)
		}

		link, err := s.repo.Create(ctx, shortID, originalURL, s.now().UTC())
		if err != nil {
			if errors.Is(err, database.ErrShortIDExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrIDGenerationExhausted)
}

// Resolve returns the link stored under shortID.
func (s *LinkService) Resolve(ctx context.Context, shortID string) (*models.ShortLink, error) {
	const op = "service.LinkService.Resolve"

	link, err := s.repo.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short id: %w", op, err)
	}

	return link, nil
}
