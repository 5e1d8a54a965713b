package store

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
)

// MinioConfig locates a bucket of model files.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Minio serves model files from an S3-compatible bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ core.ModelStore = (*Minio)(nil)

func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "bucket %q", cfg.Bucket)
	}
	if !ok {
		return nil, errors.Errorf("bucket %q does not exist", cfg.Bucket)
	}
	log.Info().Str("module", "store.minio").Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("model store ready")
	return &Minio{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Minio) key(file string) string { return path.Join(s.prefix, file) }

func (s *Minio) Open(ctx context.Context, file string) (io.ReadCloser, error) {
	if !s.Exists(ctx, file) {
		return nil, errors.Wrap(core.ErrNotFound, file)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(file), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", file)
	}
	return obj, nil
}

func (s *Minio) Exists(ctx context.Context, file string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(file), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			log.Warn().Err(err).Str("module", "store.minio").Str("file", file).Msg("stat failed")
		}
		return false
	}
	return true
}
