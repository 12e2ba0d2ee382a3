package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// S3Config configures an S3-compatible bucket (AWS, MinIO, Supabase storage).
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PublicBaseURL   string
}

// S3Store uploads objects to an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	cfg    S3Config
	log    logger.Logger
}

// NewS3Store creates the client. No request is made until Validate or Upload.
func NewS3Store(cfg S3Config, log logger.Logger) (*S3Store, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Context("endpoint", endpoint).
			Build()
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}
	return &S3Store{client: client, cfg: cfg, log: log}, nil
}

// Name returns the backend name.
func (s *S3Store) Name() string { return "s3" }

// Upload puts data at key.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return ErrObjectExists
		}
	}

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: cacheControlHeader(opts.CacheControl),
	})
	if err != nil {
		return uploadError(err, s.Name(), key)
	}

	s.log.Debug("object stored",
		logger.String("bucket", s.cfg.Bucket),
		logger.String("key", key),
		logger.Int64("bytes", info.Size),
		logger.String("etag", info.ETag))
	return nil
}

// Exists stats the object.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return false, nil
	}
	return false, uploadError(err, s.Name(), key)
}

// PublicURL joins the public base URL and key.
func (s *S3Store) PublicURL(key string) string {
	return joinPublicURL(s.cfg.PublicBaseURL, key)
}

// Validate checks that the bucket exists.
func (s *S3Store) Validate(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return uploadError(err, s.Name(), s.cfg.Bucket)
	}
	if !ok {
		return errors.New(fmt.Errorf("bucket %q does not exist", s.cfg.Bucket)).
			Component("objectstore").
			Category(errors.CategoryNotFound).
			Context("backend", s.Name()).
			Build()
	}
	return nil
}

// Close is a no-op; the client holds no dedicated connection.
func (s *S3Store) Close() error { return nil }

// cacheControlHeader accepts either a bare max-age in seconds or a full header value.
func cacheControlHeader(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.Trim(v, "0123456789") == "" {
		return "max-age=" + v
	}
	return v
}
