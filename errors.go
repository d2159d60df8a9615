package docsource

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/docsource/handle"
	"github.com/unkn0wn-root/docsource/internal/keys"
)

var (
	// ErrNotFound is the terminal value of an identifier lookup that matched
	// nothing. It is never cached.
	ErrNotFound = errors.New("docsource: record not found")

	ErrInvalidHandle = handle.ErrInvalidHandle
	ErrInvalidQuery  = keys.ErrInvalidQuery
	ErrInvalidID     = keys.ErrInvalidID

	ErrUnknownModel = errors.New("docsource: unknown model")
)

// StorageError wraps a driver failure. Every lookup waiting on the failed
// batch receives the same StorageError.
type StorageError struct {
	Op         string // "FindByIDs" or "Find"
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("docsource: %s on %q: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// InvalidateError reports a cache delete that did not fully succeed.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	default:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}

// IsNotFound reports whether err marks an identifier lookup that matched nothing.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStorageFailure reports whether err came from the driver rather than
// from validating the lookup.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
