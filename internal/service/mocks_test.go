package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

type MockLinkRepository struct {
	mock.Mock
}

func (r *MockLinkRepository) Create(ctx context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error) {
	args := r.Called(ctx, shortID, originalURL, createdAt)
	link, _ := args.Get(0).(*models.ShortLink)
	return link, args.Error(1)
}

func (r *MockLinkRepository) GetByShortID(ctx context.Context, shortID string) (*models.ShortLink, error) {
	args := r.Called(ctx, shortID)
	link, _ := args.Get(0).(*models.ShortLink)
	return link, args.Error(1)
}

type MockAccessLedger struct {
	mock.Mock
}

func (l *MockAccessLedger) FindRecent(ctx context.Context, event models.AccessEvent, since time.Time) (*models.AccessHistoryEntry, error) {
	args := l.Called(ctx, event, since)
	entry, _ := args.Get(0).(*models.AccessHistoryEntry)
	return entry, args.Error(1)
}

func (l *MockAccessLedger) TouchSummary(ctx context.Context, imageURL string, at time.Time) error {
	args := l.Called(ctx, imageURL, at)
	return args.Error(0)
}

func (l *MockAccessLedger) AppendHistory(ctx context.Context, event models.AccessEvent) error {
	args := l.Called(ctx, event)
	return args.Error(0)
}

func (l *MockAccessLedger) GetSummary(ctx context.Context, imageURL string) (*models.AccessSummary, error) {
	args := l.Called(ctx, imageURL)
	summary, _ := args.Get(0).(*models.AccessSummary)
	return summary, args.Error(1)
}

type MockImageFetcher struct {
	mock.Mock
}

func (f *MockImageFetcher) Fetch(ctx context.Context, url string) (*models.ImageContent, error) {
	args := f.Called(ctx, url)
	img, _ := args.Get(0).(*models.ImageContent)
	return img, args.Error(1)
}

type MockObjectStore struct {
	mock.Mock
}

func (s *MockObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	args := s.Called(ctx, key, contentType, body, size)
	return args.Error(0)
}

func (s *MockObjectStore) PublicURL(key string) string {
	args := s.Called(key)
	return args.String(0)
}

// memLedger is an in-memory AccessLedger with the same matching rules as the postgres one.
type memLedger struct {
	mu        sync.Mutex
	history   []models.AccessHistoryEntry
	summaries map[string]models.AccessSummary
}

func newMemLedger() *memLedger {
	return &memLedger{summaries: make(map[string]models.AccessSummary)}
}

func (l *memLedger) FindRecent(_ context.Context, e models.AccessEvent, since time.Time) (*models.AccessHistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.history) - 1; i >= 0; i-- {
		h := l.history[i]
		if h.ImageURL == e.ImageURL && h.IPAddress == e.IPAddress &&
			h.UserAgent == e.UserAgent && h.Referrer == e.Referrer &&
			!h.AccessedAt.Before(since) {
			return &h, nil
		}
	}

	return nil, database.ErrAccessNotFound
}

func (l *memLedger) TouchSummary(_ context.Context, imageURL string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.summaries[imageURL]
	s.ImageURL = imageURL
	s.AccessCount++
	s.UpdatedAt = at
	l.summaries[imageURL] = s

	return nil
}

func (l *memLedger) AppendHistory(_ context.Context, e models.AccessEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, models.AccessHistoryEntry{
		ID:         int64(len(l.history) + 1),
		ImageURL:   e.ImageURL,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Referrer:   e.Referrer,
		AccessedAt: e.Timestamp,
	})

	return nil
}

func (l *memLedger) GetSummary(_ context.Context, imageURL string) (*models.AccessSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.summaries[imageURL]
	if !ok {
		return nil, database.ErrSummaryNotFound
	}

	return &s, nil
}

// memLinks is an in-memory LinkRepository.
type memLinks struct {
	mu    sync.Mutex
	links map[string]models.ShortLink
}

func newMemLinks() *memLinks {
	return &memLinks{links: make(map[string]models.ShortLink)}
}

func (r *memLinks) Create(_ context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[shortID]; ok {
		return nil, database.ErrShortIDExists
	}

	link := models.ShortLink{
		ID:          int64(len(r.links) + 1),
		ShortID:     shortID,
		OriginalURL: originalURL,
		CreatedAt:   createdAt,
	}
	r.links[shortID] = link

	return &link, nil
}

func (r *memLinks) GetByShortID(_ context.Context, shortID string) (*models.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[shortID]
	if !ok {
		return nil, database.ErrLinkNotFound
	}

	return &link, nil
}
