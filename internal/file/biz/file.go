package biz

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Visibility controls who may resolve a file record
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
)

// ParseVisibility parses a visibility string, case-insensitively
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(VisibilityPrivate):
		return VisibilityPrivate, nil
	case string(VisibilityPublic):
		return VisibilityPublic, nil
	default:
		return "", fmt.Errorf("invalid visibility %q", s)
	}
}

// FileRecord is one logical upload. Its ID doubles as the unguessable
// download link token; several records may share one blob via ContentHash.
type FileRecord struct {
	ID          string
	OwnerID     string
	Filename    string
	Visibility  Visibility
	Tags        []string
	Size        int64
	ContentType string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortBy is the sort key for record listings
type SortBy string

const (
	SortByFilename  SortBy = "filename"
	SortByCreatedAt SortBy = "created_at"
	SortByUpdatedAt SortBy = "updated_at"
	SortBySize      SortBy = "size"
)

// SortDir is the sort direction for record listings
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// ParseSortBy parses a sort key, defaulting to created_at
func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SortByCreatedAt):
		return SortByCreatedAt, nil
	case string(SortByFilename):
		return SortByFilename, nil
	case string(SortByUpdatedAt):
		return SortByUpdatedAt, nil
	case string(SortBySize):
		return SortBySize, nil
	default:
		return "", fmt.Errorf("invalid sort key %q", s)
	}
}

// ParseSortDir parses a sort direction, defaulting to asc
func ParseSortDir(s string) (SortDir, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SortAsc):
		return SortAsc, nil
	case string(SortDesc):
		return SortDesc, nil
	default:
		return "", fmt.Errorf("invalid sort direction %q", s)
	}
}

// ListQuery describes a paginated record listing.
// PageToken is an opaque keyset cursor; pages remain stable under
// concurrent inserts because the cursor encodes the last-seen
// (sort value, record id) pair rather than a numeric offset.
type ListQuery struct {
	Tag       string
	SortBy    SortBy
	SortDir   SortDir
	PageSize  int
	PageToken string
}

// Page is one page of a record listing
type Page struct {
	Records       []*FileRecord
	NextPageToken string
}

// FileRepo is the metadata index. Implementations persist records atomically;
// a record is never partially visible.
type FileRepo interface {
	// Create persists a new record. Returns ErrDuplicateID when the record id
	// already exists, ErrPersistence on storage failure.
	Create(ctx context.Context, rec *FileRecord) error

	// GetByID returns the record with the given link token, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*FileRecord, error)

	// ListByOwner returns one page of the owner's records.
	ListByOwner(ctx context.Context, ownerID string, q ListQuery) (*Page, error)

	// ListPublic returns one page of PUBLIC records.
	ListPublic(ctx context.Context, q ListQuery) (*Page, error)

	// Rename updates the filename, or returns ErrNotFound.
	Rename(ctx context.Context, id, newFilename string, now time.Time) error

	// UpdateVisibility updates the visibility, or returns ErrNotFound.
	UpdateVisibility(ctx context.Context, id string, v Visibility, now time.Time) error

	// Delete removes the record only, never the blob. Returns ErrNotFound
	// when no such record exists.
	Delete(ctx context.Context, id string) error

	// CountByContentHash returns the number of records referencing the blob.
	CountByContentHash(ctx context.Context, contentHash string) (int64, error)

	// ExistsByOwnerAndFilename reports whether the owner already has a record
	// with the given filename.
	ExistsByOwnerAndFilename(ctx context.Context, ownerID, filename string) (bool, error)
}

// BlobInfo describes a stored blob
type BlobInfo struct {
	ContentHash string
	Size        int64
	ContentType string
	// ModifiedAt is when the blob was last written; the garbage collector
	// uses it as the blob's age for the grace period.
	ModifiedAt time.Time
}

// BlobStore stores blob bytes keyed by content hash, write-once.
//
// Put is idempotent: writing a hash that already exists succeeds after
// verifying the stored size matches, and fails with ErrContentMismatch
// otherwise. Concurrent identical writes are benign because both carry the
// same bytes. Transient store failures surface as ErrStoreUnavailable.
type BlobStore interface {
	Put(ctx context.Context, contentHash string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, contentHash string) (io.ReadCloser, *BlobInfo, error)
	Exists(ctx context.Context, contentHash string) (*BlobInfo, error) // nil when absent
	Delete(ctx context.Context, contentHash string) error
	List(ctx context.Context) ([]*BlobInfo, error)
}

// WriteClaimer is a best-effort claim on a content hash, taken before a
// physical write so concurrent identical uploads usually produce one write.
// Correctness never depends on it: the verified idempotent Put contract of
// the BlobStore is the sole concurrency guard.
type WriteClaimer interface {
	Claim(ctx context.Context, contentHash string) (bool, error)
	Release(ctx context.Context, contentHash string)
}
