package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWithinRange(t *testing.T) {
	g := New(DefaultOptions(t.TempDir()))
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		n := g.Count()
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 5)
		seen[n] = true
	}
	assert.Len(t, seen, 5, "every count in [1,5] should eventually be drawn")
}

func TestGenerateWritesFilesWithinSizeRange(t *testing.T) {
	for n := 1; n <= 5; n++ {
		dir := filepath.Join(t.TempDir(), "uploads")
		g := New(DefaultOptions(dir))

		files, err := g.Generate(n)
		require.NoError(t, err)
		require.Len(t, files, n)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, n)

		names := make(map[string]bool)
		for _, f := range files {
			assert.False(t, names[f.Name], "duplicate name %s", f.Name)
			names[f.Name] = true

			assert.GreaterOrEqual(t, f.Size, int64(1000))
			assert.LessOrEqual(t, f.Size, int64(50000))

			info, err := os.Stat(f.LocalPath)
			require.NoError(t, err)
			assert.Equal(t, f.Size, info.Size())

			digest, size, err := DigestFile(f.LocalPath)
			require.NoError(t, err)
			assert.Equal(t, f.Digest, digest)
			assert.Equal(t, f.Size, size)
		}
	}
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.Seed = 42
	a, err := New(opts).Generate(3)
	require.NoError(t, err)

	opts.Dir = t.TempDir()
	b, err := New(opts).Generate(3)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Name, b[i].Name)
		assert.Equal(t, a[i].Digest, b[i].Digest)
	}
}

func TestFileNamesAreUnique(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.MinSize, opts.MaxSize = 1, 1
	g := New(opts)

	files, err := g.Generate(200)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range files {
		require.False(t, names[f.Name], "duplicate name %s", f.Name)
		names[f.Name] = true
	}
}

func TestGenerateFailsOnUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := New(DefaultOptions(filepath.Join(blocker, "uploads"))).Generate(1)
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest([]byte("audit")), 64)
	assert.Equal(t, Digest([]byte("audit")), Digest([]byte("audit")))
	assert.NotEqual(t, Digest([]byte("audit")), Digest([]byte("audi")))
}
