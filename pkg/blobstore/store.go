// Package blobstore defines the content-addressed storage that holds deployed
// files. Sweeper only ever removes objects from it.
package blobstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable is returned when the store cannot be reached at all.
	// Callers should stop issuing further requests for the current run.
	ErrUnavailable = errors.New("blob store unavailable")

	// ErrAccessDenied is returned when credentials lack permission to delete.
	ErrAccessDenied = errors.New("access denied")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string
	Key string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("blobstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// DeleteResult reports the outcome of a batch deletion. Keys which did not
// exist are reported as deleted with zero freed bytes.
type DeleteResult struct {
	Deleted    []string
	FreedBytes int64
	Errors     []error
}

// Store deletes objects by key.
//
// DeleteObjects returns a non-nil error only when the whole batch could not be
// attempted (e.g. the store is unreachable); per-key failures are reported in
// DeleteResult.Errors.
type Store interface {
	DeleteObjects(ctx context.Context, keys []string) (DeleteResult, error)
}
