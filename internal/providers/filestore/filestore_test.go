package filestore

import (
	"os"
	"testing"

	"github.com/atolldev/billscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewDiskStore(config.Config{UploadDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestSaveAddressesByContent(t *testing.T) {
	store := newTestStore(t)
	data := []byte("%PDF-1.4 bill document")

	stored, err := store.Save(data, ".pdf")
	require.NoError(t, err)
	assert.Equal(t, Hash(data), stored.Hash)
	assert.Equal(t, int64(len(data)), stored.Size)
	assert.False(t, stored.Reused)

	read, err := store.Read(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestSaveReusesIdenticalBytes(t *testing.T) {
	store := newTestStore(t)
	data := []byte("%PDF-1.4 bill document")

	first, err := store.Save(data, ".pdf")
	require.NoError(t, err)
	second, err := store.Save(data, ".pdf")
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Path, second.Path)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Save([]byte("bytes"), ".pdf")
	require.NoError(t, err)
	require.NoError(t, store.Remove(stored.Path))
	require.NoError(t, store.Remove(stored.Path), "removing a missing file is not an error")

	_, err = os.Stat(stored.Path)
	assert.True(t, os.IsNotExist(err))
}
