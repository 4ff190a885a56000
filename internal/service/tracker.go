package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

// DefaultWindow is the period in which repeated identical accesses are treated as one.
const DefaultWindow = 3 * time.Second

// AccessLedger persists access telemetry.
type AccessLedger interface {
	// FindRecent returns the newest history entry matching all four event fields
	// with accessed_at >= since, or database.ErrAccessNotFound.
	FindRecent(ctx context.Context, event models.AccessEvent, since time.Time) (*models.AccessHistoryEntry, error)

	// TouchSummary upserts the per-image summary row.
	TouchSummary(ctx context.Context, imageURL string, at time.Time) error

	// AppendHistory inserts one history row for the event.
	AppendHistory(ctx context.Context, event models.AccessEvent) error

	// GetSummary returns the summary row or database.ErrSummaryNotFound.
	GetSummary(ctx context.Context, imageURL string) (*models.AccessSummary, error)
}

// ImageFetcher downloads image bytes from an upstream URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*models.ImageContent, error)
}

type TrackOption func(*TrackService)

// WithWindow overrides DefaultWindow. Non-positive values are ignored.
func WithWindow(window time.Duration) TrackOption {
	return func(s *TrackService) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithInternalHost sets the front-end host whose referrers are never recorded.
func WithInternalHost(host string) TrackOption {
	return func(s *TrackService) {
		s.internalHost = host
	}
}

func WithLogger(logger *slog.Logger) TrackOption {
	return func(s *TrackService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// TrackService decides whether an access is new or a repeat, records new ones
// and relays the image bytes.
//
// Suppression relies on a read-then-write against the ledger without locking, so two
// identical requests racing inside the window may both be recorded.
type TrackService struct {
	ledger       AccessLedger
	fetcher      ImageFetcher
	logger       *slog.Logger
	window       time.Duration
	internalHost string
	now          func() time.Time
}

func NewTrackService(ledger AccessLedger, fetcher ImageFetcher, opts ...TrackOption) *TrackService {
	s := &TrackService{
		ledger:  ledger,
		fetcher: fetcher,
		logger:  slog.Default(),
		window:  DefaultWindow,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewEvent builds an access event stamped with the current time, substituting
// placeholders for missing header values.
func (s *TrackService) NewEvent(imageURL, ip, userAgent, referrer string) models.AccessEvent {
	return models.AccessEvent{
		ImageURL:  imageURL,
		IPAddress: orDefault(ip, models.UnknownValue),
		UserAgent: orDefault(userAgent, models.UnknownValue),
		Referrer:  orDefault(referrer, models.DirectReferrer),
		Timestamp: s.now().UTC(),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *TrackService) isInternal(referrer string) bool {
	return s.internalHost != "" && strings.Contains(referrer, s.internalHost)
}

// Record classifies the event and persists it when it is new.
// Ledger failures are logged and never returned.
func (s *TrackService) Record(ctx context.Context, event models.AccessEvent) models.AccessOutcome {
	const op = "service.TrackService.Record"

	if s.isInternal(event.Referrer) {
		return models.OutcomeInternal
	}

	log := s.logger.With(
		slog.String("op", op),
		slog.String("image_url", event.ImageURL),
	)

	since := event.Timestamp.Add(-s.window)

	_, err := s.ledger.FindRecent(ctx, event, since)
	switch {
	case err == nil:
		return models.OutcomeDuplicate
	case !errors.Is(err, database.ErrAccessNotFound):
		log.ErrorContext(ctx, "recent access lookup failed", slog.Any("err", err))
	}

	if err := s.ledger.TouchSummary(ctx, event.ImageURL, event.Timestamp); err != nil {
		log.ErrorContext(ctx, "access summary update failed", slog.Any("err", err))
	}

	if err := s.ledger.AppendHistory(ctx, event); err != nil {
		log.ErrorContext(ctx, "access history append failed", slog.Any("err", err))
	}

	return models.OutcomeNew
}

// Serve records the event and then fetches the image it refers to.
func (s *TrackService) Serve(ctx context.Context, event models.AccessEvent) (*models.ImageContent, models.AccessOutcome, error) {
	const op = "service.TrackService.Serve"

	outcome := s.Record(ctx, event)

	img, err := s.fetcher.Fetch(ctx, event.ImageURL)
	if err != nil {
		return nil, outcome, fmt.Errorf("%s: failed to fetch image: %w", op, err)
	}

	return img, outcome, nil
}

// Summary returns the recorded access summary for imageURL.
func (s *TrackService) Summary(ctx context.Context, imageURL string) (*models.AccessSummary, error) {
	const op = "service.TrackService.Summary"

	summary, err := s.ledger.GetSummary(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get access summary: %w", op, err)
	}

	return summary, nil
}
