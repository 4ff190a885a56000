// Package cache wraps the link repository with a read-through cache.
// Short links are immutable once created, so entries never need invalidation.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

const (
	keyPrefix = "image-tracker:link:"

	defaultTTL       = time.Hour
	defaultLocalSize = 1000
)

// LinkRepository is the storage being cached.
type LinkRepository interface {
	Create(ctx context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error)
	GetByShortID(ctx context.Context, shortID string) (*models.ShortLink, error)
}

type Options struct {
	// Redis enables a shared second tier. Nil keeps the cache process local.
	Redis *redis.Client
	// TTL of cached links. Defaults to one hour.
	TTL time.Duration
	// LocalSize is the number of links kept in the in-process TinyLFU.
	LocalSize int
}

// LinkCache caches GetByShortID results. Lookup failures, including not found, are never cached.
type LinkCache struct {
	next  LinkRepository
	cache *cache.Cache
	ttl   time.Duration
}

func NewLinkCache(next LinkRepository, opts Options) *LinkCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.LocalSize <= 0 {
		opts.LocalSize = defaultLocalSize
	}

	cacheOpts := &cache.Options{
		LocalCache: cache.NewTinyLFU(opts.LocalSize, opts.TTL),
	}
	if opts.Redis != nil {
		cacheOpts.Redis = opts.Redis
	}

	return &LinkCache{
		next:  next,
		cache: cache.New(cacheOpts),
		ttl:   opts.TTL,
	}
}

func (c *LinkCache) Create(ctx context.Context, shortID, originalURL string, createdAt time.Time) (*models.ShortLink, error) {
	return c.next.Create(ctx, shortID, originalURL, createdAt)
}

func (c *LinkCache) GetByShortID(ctx context.Context, shortID string) (*models.ShortLink, error) {
	const op = "database.cache.LinkCache.GetByShortID"

	var link models.ShortLink

	err := c.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   keyPrefix + shortID,
		Value: &link,
		TTL:   c.ttl,
		Do: func(*cache.Item) (interface{}, error) {
			return c.next.GetByShortID(ctx, shortID)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &link, nil
}
