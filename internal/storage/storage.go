// Package storage uploads compiled artifacts to an S3-compatible bucket or a
// local directory.
package storage

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
)

// ContentTypePDF is attached to every uploaded artifact.
const ContentTypePDF = "application/pdf"

// Uploader stores the file at localPath under key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// New returns the uploader selected by cfg.Type.
func New(cfg config.StorageConfig) (Uploader, error) {
	switch cfg.Type {
	case config.StorageDir:
		s, err := NewDirStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageS3, "":
		s, err := NewS3Store(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.ValidationFailed("storage.type", "unsupported storage type "+string(cfg.Type))
	}
}

// S3Store uploads to one bucket through minio-go.
type S3Store struct {
	client *minio.Client
	bucket string
	region string

	mu          sync.Mutex
	bucketReady bool
}

// NewS3Store creates a store from the storage configuration. Empty keys use
// anonymous access.
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.ConfigRequired("storage.endpoint")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.ConfigRequired("storage.bucket")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = config.DefaultRegion
	}
	// minio expects host[:port]; tolerate a URL in the config.
	secure := cfg.UseSSL
	if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, secure = rest, true
	} else if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint = rest
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, errors.StorageError("failed to init s3 client").
			WithCause(err).
			WithContext("endpoint", endpoint).
			Build()
	}
	return &S3Store{client: client, bucket: bucket, region: region}, nil
}

// Bucket returns the target bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// ensureBucket creates the bucket on first use. A failed check is retried on
// the next upload.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
		slog.Info("Created bucket", logfields.Bucket(s.bucket))
	}
	s.bucketReady = true
	return nil
}

// Upload stores localPath under key with the PDF content type.
func (s *S3Store) Upload(ctx context.Context, localPath, key string) error {
	if _, err := os.Stat(localPath); err != nil {
		return errors.NewError(errors.CategoryFileSystem, "artifact not readable").
			WithCause(err).
			WithContext("path", localPath).
			Build()
	}
	if err := s.ensureBucket(ctx); err != nil {
		return errors.StorageError("ensure bucket").
			WithCause(err).
			WithContext("bucket", s.bucket).
			Build()
	}
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: ContentTypePDF,
	})
	if err != nil {
		return errors.StorageError("upload failed").
			WithCause(err).
			WithContext("bucket", s.bucket).
			WithContext("key", key).
			Build()
	}
	slog.Debug("Uploaded object", logfields.Bucket(s.bucket), logfields.Key(key), slog.Int64("size", info.Size))
	return nil
}
