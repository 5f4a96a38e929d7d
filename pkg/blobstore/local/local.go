package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
)

// Store keeps blobs as plain files below a root directory, the key being the
// path relative to the root.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{
		root: filepath.Clean(root),
	}
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", errors.Errorf("invalid key %q", key)
	}

	return filepath.Join(s.root, clean), nil
}

func (s *Store) DeleteObjects(ctx context.Context, keys []string) (blobstore.DeleteResult, error) {
	var result blobstore.DeleteResult

	si, err := os.Stat(s.root)
	if err != nil || !si.IsDir() {
		return result, errors.Wrapf(blobstore.ErrUnavailable, "root directory %s", s.root)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, &blobstore.ObjectError{Op: "Delete", Key: key, Err: err})
			continue
		}

		size, err := s.remove(key)
		if err != nil {
			result.Errors = append(result.Errors, &blobstore.ObjectError{Op: "Delete", Key: key, Err: err})
			continue
		}

		result.Deleted = append(result.Deleted, key)
		result.FreedBytes += size
	}

	return result, nil
}

func (s *Store) remove(key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}

	fi, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if fi.IsDir() {
		return 0, errors.New("key refers to a directory")
	}

	err = os.Remove(p)
	if os.IsPermission(err) {
		return 0, blobstore.ErrAccessDenied
	}
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	return fi.Size(), nil
}
