package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/finsight/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupMinio(t *testing.T) *docstore.MinioStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "finsight",
			"MINIO_ROOT_PASSWORD": "finsight-secret",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	s, err := docstore.NewMinioStore(
		docstore.WithEndpoint(host+":"+port.Port()),
		docstore.WithBucket("test-uploads"),
		docstore.WithAccessKey("finsight"),
		docstore.WithSecretKey("finsight-secret"),
	)
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))
	return s
}

func TestMinioStore_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := setupMinio(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Put(ctx, "job-1", []byte("%PDF-1.4 body")))

	data, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, s.Delete(ctx, "job-1"))
	_, err = s.Get(ctx, "job-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMinioStore_EnsureBucketIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := setupMinio(t)
	assert.NoError(t, s.EnsureBucket(context.Background()))
	assert.NoError(t, s.Delete(context.Background(), "missing"))
}
