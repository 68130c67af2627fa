package filestore_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stumpinator/garnerd/filestore"
	"github.com/stumpinator/garnerd/hash"
	"github.com/stumpinator/garnerd/hasher"
	"github.com/stumpinator/garnerd/lib/shm"
)

// Ingest end to end: stream a file through the fan-out, commit it under
// its digest, and converge to one copy on repeated ingests.
func TestIngest(t *testing.T) {
	root := t.TempDir()
	store, err := filestore.New(root, filestore.WithDepth(1))
	require.NoError(t, err)
	_, _, err = store.Init()
	require.NoError(t, err)

	pipeline, err := hasher.NewPipeline(hasher.WithBufferCapacity(64 * 1024))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, pipeline.Close())
		for _, name := range pipeline.BufferNames() {
			assert.False(t, shm.Exists(name), "region %q leaked", name)
		}
	}()

	data := make([]byte, 300*1024+7)
	_, err = rand.New(rand.NewSource(7)).Read(data)
	require.NoError(t, err)

	writeSourceFile := func(name string) string {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, data, 0o600))
		return path
	}

	ingest := func(source string) (key string, size int64) {
		report, err := pipeline.HashFile(context.Background(), source,
			hash.NewHashSet(hash.SHA256), false, false)
		require.NoError(t, err)
		key, ok := report.Sum(hash.SHA256)
		require.True(t, ok)
		require.True(t, store.CanStore(report.Size))
		placed, err := store.AddFile(source, key, report.Size)
		require.NoError(t, err)
		require.True(t, placed)
		return key, report.Size
	}

	baseline := store.FilesStored()

	src1 := writeSourceFile("incoming-1")
	key1, size1 := ingest(src1)

	// byte-identical content converges to the same on-disk path
	src2 := writeSourceFile("incoming-2")
	key2, size2 := ingest(src2)
	assert.Equal(t, key1, key2)
	assert.Equal(t, size1, size2)

	assert.Equal(t, baseline+1, store.FilesStored())
	_, err = os.Stat(src2)
	assert.True(t, os.IsNotExist(err), "duplicate source must be gone")

	path1, err := store.FilePath(key1, size1)
	require.NoError(t, err)
	stored, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}
