package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectContentType = "application/pdf"

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
}

// MinioStore keeps documents in an S3-compatible bucket so the API and the
// workers can run on separate hosts.
type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioStore(opts ...MinioOpts) (*MinioStore, error) {
	cfg := &minioConfig{bucket: "finsight-uploads"}
	for _, o := range opts {
		o(cfg)
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinioStore{cfg: cfg, client: client}, nil
}

func (s *MinioStore) Type() string { return "minio" }

func objectName(key string) string { return key + ".pdf" }

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.cfg.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.bucket, minio.MakeBucketOptions{}); err != nil {
		// Another process may have created it concurrently.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", s.cfg.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, objectName(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: objectContentType})
	if err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.classify(err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	// RemoveObject succeeds for missing keys.
	if err := s.client.RemoveObject(ctx, s.cfg.bucket, objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.cfg.bucket); err != nil {
		return fmt.Errorf("minio unreachable: %w", err)
	}
	return nil
}

func (s *MinioStore) classify(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("reading document: %w", err)
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

var _ Store = (*MinioStore)(nil)
