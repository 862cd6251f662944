package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/debugbundle/proc"
	"github.com/ocx/backend/internal/debugbundle/store"
	"github.com/google/uuid"
)

func TestAdapter_WriteThenRead_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "job.zip")
	require.NoError(t, os.WriteFile(bundlePath, []byte("hello"), 0o644))
	outPath := filepath.Join(dir, "job.out")

	h, err := proc.Spawn(context.Background(), uuid.New(), []string{"/bin/sh", "-c", "exit 0"}, bundlePath, outPath)
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	kv := store.NewMemStore()
	adapter := store.NewAdapter(kv)
	require.NoError(t, adapter.Write(context.Background(), h))

	meta, err := adapter.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.JobID(), meta.JobID)
	assert.NotEmpty(t, meta.SHA256OfBundle)
	assert.Equal(t, bundlePath, meta.BundleFilePath)

	_, err = os.Stat(outPath)
	assert.NoError(t, err)
}

func TestAdapter_FailedRunHasEmptyChecksum(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "job.zip")
	outPath := filepath.Join(dir, "job.out")

	h, err := proc.Spawn(context.Background(), uuid.New(), []string{"/bin/sh", "-c", "exit 1"}, bundlePath, outPath)
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	kv := store.NewMemStore()
	adapter := store.NewAdapter(kv)
	require.NoError(t, adapter.Write(context.Background(), h))

	meta, err := adapter.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, meta.SHA256OfBundle)
}

func TestAdapter_Remove_DeletesEntry(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "job.zip")
	outPath := filepath.Join(dir, "job.out")

	h, err := proc.Spawn(context.Background(), uuid.New(), []string{"/bin/sh", "-c", "exit 0"}, bundlePath, outPath)
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	kv := store.NewMemStore()
	adapter := store.NewAdapter(kv)
	require.NoError(t, adapter.Write(context.Background(), h))
	require.NoError(t, adapter.Remove(context.Background()))

	_, err = adapter.Read(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
