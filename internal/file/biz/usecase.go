package biz

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"go.uber.org/zap"
)

// Config holds the tunables of the file use case
type Config struct {
	// MaxUploadSizeBytes caps a single upload payload; 0 means unlimited
	MaxUploadSizeBytes int64

	// DefaultVisibility applies when an upload does not specify one
	DefaultVisibility Visibility

	// SpoolDir is where in-flight uploads are spooled; "" means os.TempDir
	SpoolDir string
}

// FileUseCase orchestrates uploads, downloads and record management over the
// metadata index and the content-addressed blob store.
type FileUseCase struct {
	repo   FileRepo
	blobs  BlobStore
	claims WriteClaimer // optional, may be nil
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// NewFileUseCase creates a file use case. claims may be nil; dedup
// correctness does not depend on it.
func NewFileUseCase(repo FileRepo, blobs BlobStore, claims WriteClaimer, cfg Config, log *logger.Logger) *FileUseCase {
	if cfg.DefaultVisibility == "" {
		cfg.DefaultVisibility = VisibilityPrivate
	}

	return &FileUseCase{
		repo:   repo,
		blobs:  blobs,
		claims: claims,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Resolve maps a link token to its record, enforcing visibility.
// requesterID may be empty for anonymous requests. PUBLIC records resolve
// for anyone; PRIVATE records resolve only for their owner, and any other
// requester gets ErrForbidden rather than ErrNotFound: the existence of a
// private link is not the secret, its content is.
func (uc *FileUseCase) Resolve(ctx context.Context, token, requesterID string) (*FileRecord, error) {
	rec, err := uc.repo.GetByID(ctx, token)
	if err != nil {
		return nil, err
	}

	if rec.Visibility == VisibilityPublic {
		return rec, nil
	}
	if requesterID != "" && requesterID == rec.OwnerID {
		return rec, nil
	}
	return nil, ErrForbidden
}

// Download resolves a link token and opens the blob stream behind it
func (uc *FileUseCase) Download(ctx context.Context, token, requesterID string) (io.ReadCloser, *FileRecord, error) {
	rec, err := uc.Resolve(ctx, token, requesterID)
	if err != nil {
		return nil, nil, err
	}

	stream, _, err := uc.blobs.Get(ctx, rec.ContentHash)
	if err != nil {
		return nil, nil, err
	}
	return stream, rec, nil
}

// Get returns a record by token with owner-or-public access semantics
func (uc *FileUseCase) Get(ctx context.Context, token, requesterID string) (*FileRecord, error) {
	return uc.Resolve(ctx, token, requesterID)
}

// Rename changes a record's filename. Only the owner may rename, and the new
// name must not collide with another record of the same owner.
func (uc *FileUseCase) Rename(ctx context.Context, ownerID, token, newFilename string) (*FileRecord, error) {
	newFilename = strings.TrimSpace(newFilename)
	if newFilename == "" {
		return nil, errors.New("new filename is required")
	}

	rec, err := uc.repo.GetByID(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if rec.Filename == newFilename {
		return rec, nil
	}

	exists, err := uc.repo.ExistsByOwnerAndFilename(ctx, ownerID, newFilename)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	now := uc.now().UTC()
	if err := uc.repo.Rename(ctx, token, newFilename, now); err != nil {
		return nil, err
	}

	rec.Filename = newFilename
	rec.UpdatedAt = now
	return rec, nil
}

// UpdateVisibility changes who may resolve the record. Owner only.
func (uc *FileUseCase) UpdateVisibility(ctx context.Context, ownerID, token string, v Visibility) (*FileRecord, error) {
	rec, err := uc.repo.GetByID(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if rec.Visibility == v {
		return rec, nil
	}

	now := uc.now().UTC()
	if err := uc.repo.UpdateVisibility(ctx, token, v, now); err != nil {
		return nil, err
	}

	rec.Visibility = v
	rec.UpdatedAt = now
	return rec, nil
}

// Delete removes the record. The blob is never touched here: its lifecycle
// is decoupled and left to the garbage collector once no records reference it.
func (uc *FileUseCase) Delete(ctx context.Context, ownerID, token string) error {
	rec, err := uc.repo.GetByID(ctx, token)
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := uc.repo.Delete(ctx, token); err != nil {
		return err
	}

	uc.logger.Info("file record deleted",
		zap.String("record", token),
		zap.String("owner", ownerID),
		zap.String("content_hash", rec.ContentHash),
	)
	return nil
}

// ListMine returns one page of the owner's records
func (uc *FileUseCase) ListMine(ctx context.Context, ownerID string, q ListQuery) (*Page, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	normalizeQuery(&q)
	return uc.repo.ListByOwner(ctx, ownerID, q)
}

// ListPublic returns one page of PUBLIC records
func (uc *FileUseCase) ListPublic(ctx context.Context, q ListQuery) (*Page, error) {
	normalizeQuery(&q)
	return uc.repo.ListPublic(ctx, q)
}

func normalizeQuery(q *ListQuery) {
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.SortDir == "" {
		q.SortDir = SortAsc
	}
	if q.PageSize <= 0 {
		q.PageSize = 50
	}
	if q.PageSize > 500 {
		q.PageSize = 500
	}
}
