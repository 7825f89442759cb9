package catalog

import (
	"errors"
	"fmt"
)

// FetchError is the single error kind propagated out of catalog collaborator
// calls. It is surfaced to the caller unchanged: no retries, no partial
// results. Callers match it with errors.As.
type FetchError struct {
	Op     string // failing operation, e.g. "entities-by-refs"
	Status int    // HTTP status when the failure came from a response, else 0
	Err    error  // underlying cause
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s failed: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
