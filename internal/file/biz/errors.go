package biz

import "errors"

// Typed failures surfaced by the file domain. Adapters translate their
// low-level errors into these; the service layer maps them to HTTP statuses.
var (
	// ErrNotFound indicates the record or blob does not exist
	ErrNotFound = errors.New("file: not found")

	// ErrForbidden indicates the requester is not allowed to access the record
	ErrForbidden = errors.New("file: forbidden")

	// ErrConflict indicates a per-owner filename conflict
	ErrConflict = errors.New("file: filename already exists for this owner")

	// ErrPayloadTooLarge indicates the upload exceeded the configured size limit
	ErrPayloadTooLarge = errors.New("file: payload too large")

	// ErrStreamRead indicates the inbound stream failed before completion.
	// Transient: the caller may retry the upload.
	ErrStreamRead = errors.New("file: stream read failed")

	// ErrStoreUnavailable indicates the object store could not be reached.
	// Transient: the caller may retry with backoff.
	ErrStoreUnavailable = errors.New("file: object store unavailable")

	// ErrContentMismatch indicates an object under the same content id has a
	// different size. Signals a digest collision or corruption; never retried.
	ErrContentMismatch = errors.New("file: content mismatch for existing blob")

	// ErrPersistence indicates the metadata index rejected a write
	ErrPersistence = errors.New("file: metadata persistence failed")

	// ErrDuplicateID indicates a link token collision on insert.
	// The coordinator regenerates the token and retries.
	ErrDuplicateID = errors.New("file: duplicate record id")

	// ErrInvalidPageToken indicates a page token the client supplied could
	// not be decoded for the requested listing
	ErrInvalidPageToken = errors.New("file: invalid page token")
)

// IsTransient reports whether the caller may retry the failed operation
// with the same arguments.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStreamRead) || errors.Is(err, ErrStoreUnavailable)
}
