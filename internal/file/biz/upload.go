package biz

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// UploadRequest carries one inbound upload
type UploadRequest struct {
	OwnerID     string
	Filename    string
	Visibility  Visibility // empty means the configured default
	Tags        []string
	ContentType string
	Data        io.Reader
}

// tokenInsertAttempts bounds retries on a link-token collision. With 256-bit
// tokens a collision is practically a broken random source, not bad luck.
const tokenInsertAttempts = 3

// Upload runs one upload end to end with at-most-one-physical-write
// semantics for identical content:
//
// the stream is spooled and hashed chunk by chunk, the store is checked for
// the resulting content hash, the blob is written only when absent, and a
// fresh record with a fresh link token is always created regardless of
// whether the physical write happened. Deduplication affects physical
// storage only, never the logical record count.
//
// Failure before the record insert leaves no record; failure during the
// insert after a successful write can leave an orphaned blob, which the
// garbage collector reclaims after the grace period. A record pointing at a
// missing blob can never be created.
func (uc *FileUseCase) Upload(ctx context.Context, req UploadRequest) (*FileRecord, error) {
	if req.OwnerID == "" {
		return nil, errors.New("owner id is required")
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, errors.New("filename is required")
	}
	if req.Data == nil {
		return nil, errors.New("data stream is required")
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = uc.cfg.DefaultVisibility
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	taken, err := uc.repo.ExistsByOwnerAndFilename(ctx, req.OwnerID, filename)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrConflict
	}

	session, err := NewUploadSession(uc.cfg.SpoolDir, uc.cfg.MaxUploadSizeBytes)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Consume(ctx, req.Data); err != nil {
		return nil, err
	}

	contentHash := session.ContentHash()
	size := session.Size()

	if err := uc.ensureBlob(ctx, session, contentHash, size, contentType); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	rec := &FileRecord{
		OwnerID:     req.OwnerID,
		Filename:    filename,
		Visibility:  visibility,
		Tags:        req.Tags,
		Size:        size,
		ContentType: contentType,
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 0; attempt < tokenInsertAttempts; attempt++ {
		token, err := NewLinkToken()
		if err != nil {
			return nil, err
		}
		rec.ID = token

		err = uc.repo.Create(ctx, rec)
		if err == nil {
			uc.logger.Info("file uploaded",
				zap.String("record", rec.ID),
				zap.String("owner", rec.OwnerID),
				zap.String("content_hash", contentHash),
				zap.Int64("size", size),
			)
			return rec, nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return nil, err
		}
		uc.logger.Warn("link token collision, regenerating",
			zap.String("content_hash", contentHash),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, ErrPersistence
}

// ensureBlob guarantees the blob for contentHash is present in the store.
//
// The existence check is advisory: exists-then-put is not atomic, so the
// write path re-verifies through the store's idempotent Put contract. Two
// identical uploads racing here both write the same bytes, which is benign
// and tolerated. The write claim, when configured, merely makes that race
// unlikely; losing it changes nothing about correctness.
func (uc *FileUseCase) ensureBlob(ctx context.Context, session *UploadSession, contentHash string, size int64, contentType string) error {
	existing, err := uc.blobs.Exists(ctx, contentHash)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Size != size {
			uc.logger.Error("blob size mismatch for content hash",
				zap.String("content_hash", contentHash),
				zap.Int64("stored_size", existing.Size),
				zap.Int64("upload_size", size),
			)
			return ErrContentMismatch
		}
		uc.logger.Debug("blob already stored, skipping physical write",
			zap.String("content_hash", contentHash),
		)
		return nil
	}

	if uc.claims != nil {
		claimed, err := uc.claims.Claim(ctx, contentHash)
		if err == nil && !claimed {
			// Another upload is writing this blob right now. Re-check once;
			// if it has not landed yet we write too, relying on Put.
			if existing, err := uc.blobs.Exists(ctx, contentHash); err == nil && existing != nil {
				if existing.Size != size {
					return ErrContentMismatch
				}
				return nil
			}
		}
		if err == nil && claimed {
			defer uc.claims.Release(ctx, contentHash)
		}
	}

	data, err := session.Open()
	if err != nil {
		return err
	}
	return uc.blobs.Put(ctx, contentHash, data, size, contentType)
}
