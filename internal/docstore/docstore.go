// Package docstore holds uploaded documents between submission and processing.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/finsight/internal/config"
)

// ErrNotFound is returned by Get when no document is stored under the key.
var ErrNotFound = errors.New("document not found")

// Store is the transient holding area for uploads, keyed by job id.
type Store interface {
	// Put stores data under key, replacing any previous document.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the document. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Type() string
}

// New builds the backend selected by DOCSTORE_BACKEND.
func New(ctx context.Context, cfg config.DocStoreConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.Dir)
	case "minio":
		s, err := NewMinioStore(
			WithEndpoint(cfg.Minio.Endpoint),
			WithBucket(cfg.Minio.Bucket),
			WithAccessKey(cfg.Minio.AccessKey),
			WithSecretKey(cfg.Minio.SecretKey),
			WithSSL(cfg.Minio.UseSSL),
		)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown docstore backend %q", cfg.Backend)
	}
}
