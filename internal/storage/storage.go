package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/logging"
)

var ErrNotConfigured = errors.New("image storage is not configured")

// ImageStore keeps listing photos and hands out their public URLs
type ImageStore interface {
	Upload(ctx context.Context, propertyID string, r io.Reader, filename, contentType string, size int64) (string, error)
	Delete(ctx context.Context, imageURL string) error
}

type MinIOStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *logrus.Logger
}

// New returns a MinIO store, or Disabled when no endpoint is configured
func New(cfg *config.Config, logger *logrus.Logger) (ImageStore, error) {
	if cfg.MinIO.Endpoint == "" {
		return Disabled{}, nil
	}
	return NewMinIOStore(cfg, logger)
}

func NewMinIOStore(cfg *config.Config, logger *logrus.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = logging.Default()
	}

	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client:    client,
		bucket:    cfg.MinIO.Bucket,
		publicURL: publicBaseURL(cfg),
		logger:    logger,
	}, nil
}

func publicBaseURL(cfg *config.Config) string {
	endpoint := strings.TrimSpace(cfg.MinIO.PublicEndpoint)
	if endpoint == "" {
		endpoint = cfg.MinIO.Endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if cfg.MinIO.UseSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// EnsureBucket creates the bucket with a public-read policy if it is missing
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}

	policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Action":["s3:GetObject"],"Effect":"Allow","Principal":{"AWS":["*"]},"Resource":["arn:aws:s3:::%s/*"]}]}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}

	s.logger.WithField("bucket", s.bucket).Info("Bucket created")
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, propertyID string, r io.Reader, filename, contentType string, size int64) (string, error) {
	key := objectKey(propertyID, filename)

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	imageURL := s.URL(key)
	s.logger.WithFields(logrus.Fields{
		"property_id": propertyID,
		"key":         key,
		"size":        size,
	}).Info("Image uploaded")

	return imageURL, nil
}

func (s *MinIOStore) Delete(ctx context.Context, imageURL string) error {
	key := s.KeyFromURL(imageURL)
	if key == "" {
		return fmt.Errorf("image %q does not belong to bucket %s", imageURL, s.bucket)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// URL is the public address of an object
func (s *MinIOStore) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

// KeyFromURL extracts the object key from a URL produced by URL
func (s *MinIOStore) KeyFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	p := strings.TrimPrefix(u.Path, "/")
	prefix := s.bucket + "/"
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	return strings.TrimPrefix(p, prefix)
}

func objectKey(propertyID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join("properties", propertyID, uuid.NewString()+ext)
}

// Disabled rejects every operation with ErrNotConfigured
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, string, string, int64) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error { return ErrNotConfigured }
