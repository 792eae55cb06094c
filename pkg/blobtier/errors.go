package blobtier

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

// Error types
var (
	// ErrNotFound indicates a key is absent from a store tier or a required
	// piece of content is missing.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state precondition was violated.
	ErrConflict = errors.New("conflict")

	// ErrStorageUnavailable indicates a backend or network failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrArchived indicates the object lives in an archive storage class and
	// has no restored copy that can be read.
	ErrArchived = errors.New("object archived")

	// ErrCommitFailed indicates a transient entry could not be flushed while
	// committing. Entries flushed before the failure stay in the inner store.
	ErrCommitFailed = txn.ErrCommitFailed

	// ErrMissingOwner indicates a record key was requested without an owner
	// document id.
	ErrMissingOwner = errors.New("owner document id is required")
)

// StorageError represents an error related to a store tier operation
type StorageError struct {
	Store string
	Key   string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on store %s: %v", e.Op, e.Key, e.Store, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StatusError is a precondition failure carrying an HTTP style status code
// and a stable, human readable message.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NotFoundf builds a 404 StatusError.
func NotFoundf(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// Conflictf builds a 409 StatusError.
func Conflictf(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusConflict, Message: fmt.Sprintf(format, args...), Err: ErrConflict}
}

// StatusCode maps err to an HTTP status code. Errors that are not
// StatusErrors map through the sentinel they wrap.
func StatusCode(err error) int {
	var se *StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrMissingOwner):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrArchived):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// unavailable classifies a backend failure. Not-found and archived
// conditions keep their identity; everything else is joined with
// ErrStorageUnavailable.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrArchived) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return errors.Join(ErrStorageUnavailable, err)
}
