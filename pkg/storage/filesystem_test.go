package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("2025TIF0001.pdf", []byte("%PDF"))
	require.NoError(t, err)

	exists, err := store.Exists("2025TIF0001.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Open("2025TIF0001.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF", string(body))

	require.NoError(t, store.Delete("2025TIF0001.pdf"))
	_, err = store.Open("2025TIF0001.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete("2025TIF0001.pdf"))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../secret.pdf", "/etc/passwd", "", "a/../../b"} {
		_, err := store.Save(name, []byte("x"))
		assert.Error(t, err, name)
	}
}
