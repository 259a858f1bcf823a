//go:build integration

package s3

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zuristack/roster/pkg/config"
)

func setupMinIO(t *testing.T) *AvatarStore {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate MinIO container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	store, err := NewAvatarStore(ctx, config.AvatarConfig{
		Endpoint:      "http://" + host + ":" + port.Port(),
		Region:        "us-east-1",
		Bucket:        "roster-test",
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UsePathStyle:  true,
		PresignExpiry: time.Minute,
	})
	require.NoError(t, err, "Failed to create avatar store")

	return store
}

func TestIntegration_AvatarRoundTrip(t *testing.T) {
	store := setupMinIO(t)
	ctx := context.Background()

	image := []byte("fake png bytes")

	key, err := store.Upload(ctx, 7, bytes.NewReader(image), "image/png")
	require.NoError(t, err)
	assert.Contains(t, key, "avatars/7/")

	// Re-uploading the same bytes lands on the same key.
	again, err := store.Upload(ctx, 7, bytes.NewReader(image), "image/png")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	url, err := store.PresignGet(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, url, "roster-test")

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.HealthCheck(ctx))
}
