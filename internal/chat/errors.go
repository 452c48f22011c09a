package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/minchat/minchat/internal/ai"
)

var (
	// ErrNotFound: the conversation (or job) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAborted: the client went away. The send produced no response and
	// rolled back whatever the invariant required.
	ErrAborted = errors.New("send aborted")
	// ErrConflict: a storage constraint or a concurrent send on the same
	// conversation rejected the operation.
	ErrConflict = errors.New("conflicting operation")
)

// ValidationError rejects bad input shape or length. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

// StorageError wraps database connectivity failures. The coordinator does
// not retry these, but the client may safely try again later.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage unavailable: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// storageErr normalizes a repo failure into the service taxonomy. A context
// error surfacing through a storage call is the request dying, not the
// database: cancellation means the client went away, an expired deadline is
// a timeout. Neither is a storage fault.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return ErrAborted
	case errors.Is(err, context.DeadlineExceeded):
		return ai.Errf(ai.KindTimeout, "request deadline exceeded")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return &StorageError{Err: err}
	}
}
