package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/recipereels/backend/internal/config"
)

// DefaultPresignTTL bounds how long a write permission stays valid.
const DefaultPresignTTL = 5 * time.Minute

// ErrEmptyKey is returned when an object key is blank after trimming.
var ErrEmptyKey = errors.New("s3 storage: empty key")

// WritePermission is a presigned request that lets a client put one object.
type WritePermission struct {
	URL       string
	Method    string
	Header    http.Header
	Key       string
	ExpiresAt time.Time
}

// Expired reports whether the permission can no longer be used at now.
func (p WritePermission) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// S3Storage writes reel media to an S3-compatible bucket and hands out presigned
// write permissions for direct client uploads.
type S3Storage struct {
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucket     string
	baseURL    string
	presignTTL time.Duration
	now        func() time.Time
}

// NewS3Storage builds the uploader and presigner from the shared AWS handle.
func NewS3Storage(awsCfg aws.Config, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if region := strings.TrimSpace(cfg.Region); region != "" {
			o.Region = region
		}
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	return &S3Storage{
		uploader:   uploader,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		baseURL:    strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		presignTTL: ttl,
		now:        time.Now,
	}, nil
}

// Save uploads the provided content to the configured bucket and returns its location.
func (s *S3Storage) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   manager.ReadSeekCloser(r),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return s.Location(key), nil
}

// Location returns the public URL of key, or the key itself when no public base
// URL is configured.
func (s *S3Storage) Location(key string) string {
	if s.baseURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

// PresignPut grants a time-boxed permission to PUT key with the given content type.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string) (WritePermission, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return WritePermission{}, ErrEmptyKey
	}

	issued := s.now()
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return WritePermission{}, fmt.Errorf("s3 storage presign %s: %w", key, err)
	}

	return WritePermission{
		URL:       req.URL,
		Method:    req.Method,
		Header:    req.SignedHeader,
		Key:       key,
		ExpiresAt: issued.Add(s.presignTTL),
	}, nil
}
