package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")

	// Returned when a rule's run marker is already set
	ErrAlreadyRunning = errors.New("rule is already running")

	// Returned when the catalog snapshot couldn't be read, nothing was deleted
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// Returned by Execute once the executor stopped accepting background runs
	ErrShuttingDown = errors.New("executor is shutting down")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
