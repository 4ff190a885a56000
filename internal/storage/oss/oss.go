// Package oss stores uploaded images in an Alibaba Cloud OSS bucket.
package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
)

// ErrIncompleteConfig is returned when credentials, bucket or region are missing.
var ErrIncompleteConfig = errors.New("incomplete oss config")

const defaultCacheControl = "max-age=3600"

type Config struct {
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Region          string
	// Domain is an optional custom domain (CNAME) bound to the bucket.
	Domain string
}

// Store puts objects into a single bucket. Read access is governed by the bucket policy.
type Store struct {
	client *oss.Client
	bucket string
	host   string
}

func New(cfg Config) (*Store, error) {
	const op = "storage.oss.New"

	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrIncompleteConfig)
	}

	provider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
	ossCfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(provider).
		WithRegion(cfg.Region)

	if cfg.Domain != "" {
		ossCfg = ossCfg.WithEndpoint(cfg.Domain).WithUseCName(true)
	}

	return &Store{
		client: oss.NewClient(ossCfg),
		bucket: cfg.Bucket,
		host:   publicHost(cfg),
	}, nil
}

func publicHost(cfg Config) string {
	if cfg.Domain != "" {
		host := strings.TrimSuffix(cfg.Domain, "/")
		if !strings.Contains(host, "://") {
			host = "https://" + host
		}
		return host
	}

	return fmt.Sprintf("https://%s.oss-%s.aliyuncs.com", cfg.Bucket, cfg.Region)
}

func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	const op = "storage.oss.Store.Put"

	req := &oss.PutObjectRequest{
		Bucket:        oss.Ptr(s.bucket),
		Key:           oss.Ptr(strings.TrimPrefix(key, "/")),
		Body:          body,
		ContentType:   oss.Ptr(contentType),
		ContentLength: oss.Ptr(size),
		CacheControl:  oss.Ptr(defaultCacheControl),
	}

	if _, err := s.client.PutObject(ctx, req); err != nil {
		return fmt.Errorf("%s: failed to put object: %w", op, err)
	}

	return nil
}

func (s *Store) PublicURL(key string) string {
	return s.host + "/" + url.PathEscape(strings.TrimPrefix(key, "/"))
}
