//go:build integration

package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chmdznr/minio-audit-demo/internal/generator"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestRunAgainstMinIO(t *testing.T) {
	ctx := context.Background()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := storage.NewMinIOStore(storage.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	opts := DefaultOptions()
	opts.Endpoint = endpoint
	opts.UploadDir = filepath.Join(dir, "uploads")
	opts.DownloadDir = filepath.Join(dir, "downloads")
	opts.Delay = 0

	genOpts := generator.DefaultOptions(opts.UploadDir)
	genOpts.MinFiles, genOpts.MaxFiles = 3, 3

	res, err := New(store, generator.New(genOpts), opts, WithOutput(os.Stdout)).Run(ctx)
	require.NoError(t, err)

	assert.Len(t, res.Uploaded, 3)
	assert.Len(t, res.Listed, 3)
	assert.Len(t, res.Downloaded, 2)
	assert.Equal(t, 0, res.Warnings)

	entries, err := os.ReadDir(opts.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	policy, err := store.GetBucketPolicy(ctx, opts.Bucket)
	require.NoError(t, err)
	assert.Contains(t, policy, "s3:GetObject")
}
