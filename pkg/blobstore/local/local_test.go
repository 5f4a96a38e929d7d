package local

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
)

func writeBlob(t *testing.T, root, key string, size int) {
	p := filepath.Join(root, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, ioutil.WriteFile(p, make([]byte, size), 0644))
}

func TestStore_DeleteObjects(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, "ab/abcdef", 100)
	writeBlob(t, root, "cd/cdef01", 28)

	store := New(root)

	result, err := store.DeleteObjects(context.Background(), []string{"ab/abcdef", "cd/cdef01", "ef/missing"})

	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"ab/abcdef", "cd/cdef01", "ef/missing"}, result.Deleted)
	assert.Equal(t, int64(128), result.FreedBytes)

	_, err = os.Stat(filepath.Join(root, "ab/abcdef"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_DeleteObjects_RejectsEscapingKeys(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	result, err := store.DeleteObjects(context.Background(), []string{"../outside", ""})

	require.NoError(t, err)
	assert.Len(t, result.Errors, 2)
	assert.Empty(t, result.Deleted)
}

func TestStore_DeleteObjects_MissingRoot(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := store.DeleteObjects(context.Background(), []string{"a"})

	assert.True(t, errors.Is(err, blobstore.ErrUnavailable))
}
