package data

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/digitalarkcorp/filestorage/internal/file/biz"
	pkgminio "github.com/digitalarkcorp/filestorage/internal/pkg/minio"
)

// blobPrefix namespaces blob objects inside the bucket. Keys are sharded by
// the first two hash characters to keep listings of any one prefix small.
const blobPrefix = "blobs/"

// MinIOBlobStore implements biz.BlobStore on an S3-compatible object store.
//
// S3 put semantics make the write path naturally idempotent: two uploads
// racing to write the same content hash overwrite each other with identical
// bytes. Put still verifies the stored size against the incoming one, so a
// key occupied by different content surfaces as ErrContentMismatch instead
// of being silently accepted.
type MinIOBlobStore struct {
	client *pkgminio.Client
}

// NewMinIOBlobStore creates a blob store over the given MinIO client
func NewMinIOBlobStore(client *pkgminio.Client) *MinIOBlobStore {
	return &MinIOBlobStore{client: client}
}

func objectKey(contentHash string) string {
	return blobPrefix + contentHash[:2] + "/" + contentHash
}

// hashFromKey is the inverse of objectKey
func hashFromKey(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

func (s *MinIOBlobStore) Put(ctx context.Context, contentHash string, r io.Reader, size int64, contentType string) error {
	existing, err := s.Exists(ctx, contentHash)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Size != size {
			return biz.ErrContentMismatch
		}
		return nil
	}

	info, err := s.client.PutObject(ctx, objectKey(contentHash), r, size, pkgminio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storeErr(err)
	}
	if info.Size != size {
		return fmt.Errorf("%w: wrote %d bytes, expected %d", biz.ErrContentMismatch, info.Size, size)
	}
	return nil
}

func (s *MinIOBlobStore) Get(ctx context.Context, contentHash string) (io.ReadCloser, *biz.BlobInfo, error) {
	key := objectKey(contentHash)

	// GetObject is lazy; stat first so a missing blob surfaces as ErrNotFound
	// here rather than on the first read.
	stat, err := s.client.StatObject(ctx, key)
	if err != nil {
		if pkgminio.IsNotFound(err) {
			return nil, nil, biz.ErrNotFound
		}
		return nil, nil, storeErr(err)
	}

	stream, err := s.client.GetObject(ctx, key)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	return stream, &biz.BlobInfo{
		ContentHash: contentHash,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		ModifiedAt:  stat.LastModified,
	}, nil
}

func (s *MinIOBlobStore) Exists(ctx context.Context, contentHash string) (*biz.BlobInfo, error) {
	stat, err := s.client.StatObject(ctx, objectKey(contentHash))
	if err != nil {
		if pkgminio.IsNotFound(err) {
			return nil, nil
		}
		return nil, storeErr(err)
	}

	return &biz.BlobInfo{
		ContentHash: contentHash,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		ModifiedAt:  stat.LastModified,
	}, nil
}

func (s *MinIOBlobStore) Delete(ctx context.Context, contentHash string) error {
	key := objectKey(contentHash)

	if _, err := s.client.StatObject(ctx, key); err != nil {
		if pkgminio.IsNotFound(err) {
			return biz.ErrNotFound
		}
		return storeErr(err)
	}

	if err := s.client.RemoveObject(ctx, key); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *MinIOBlobStore) List(ctx context.Context) ([]*biz.BlobInfo, error) {
	objCh, errCh := s.client.ListObjects(ctx, blobPrefix)

	var blobs []*biz.BlobInfo
	for obj := range objCh {
		blobs = append(blobs, &biz.BlobInfo{
			ContentHash: hashFromKey(obj.Key),
			Size:        obj.Size,
			ModifiedAt:  obj.LastModified,
		})
	}
	if err := <-errCh; err != nil {
		return nil, storeErr(err)
	}
	return blobs, nil
}

// storeErr classifies an object-store failure as transient
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", biz.ErrStoreUnavailable, err)
}
