package biz

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadFixture(t *testing.T) (*FileUseCase, *memRepo, *memBlobStore) {
	t.Helper()

	repo := newMemRepo()
	blobs := newMemBlobStore()
	uc := NewFileUseCase(repo, blobs, nil, Config{
		DefaultVisibility: VisibilityPrivate,
		SpoolDir:          t.TempDir(),
	}, newTestLogger(t))
	return uc, repo, blobs
}

func TestUploadCreatesRecordAndBlob(t *testing.T) {
	uc, _, blobs := newUploadFixture(t)
	payload := []byte("report contents")
	wantHash := sha256.Sum256(payload)

	rec, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:     "alice",
		Filename:    "report.pdf",
		Visibility:  VisibilityPublic,
		Tags:        []string{"work", "q3"},
		ContentType: "application/pdf",
		Data:        bytes.NewReader(payload),
	})
	require.NoError(t, err)

	assert.Len(t, rec.ID, 43)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, "report.pdf", rec.Filename)
	assert.Equal(t, VisibilityPublic, rec.Visibility)
	assert.Equal(t, int64(len(payload)), rec.Size)
	assert.Equal(t, hex.EncodeToString(wantHash[:]), rec.ContentHash)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	stream, info, err := blobs.Get(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, int64(len(payload)), info.Size)
}

func TestUploadDeduplicatesPhysicalStorage(t *testing.T) {
	uc, repo, blobs := newUploadFixture(t)
	payload := []byte("shared content uploaded twice")

	first, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "mine.txt",
		Data:     bytes.NewReader(payload),
	})
	require.NoError(t, err)

	second, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "bob",
		Filename: "also-mine.txt",
		Data:     bytes.NewReader(payload),
	})
	require.NoError(t, err)

	// dedup is physical only: two records, two tokens, one stored blob
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, 1, blobs.blobCount())
	assert.Equal(t, 1, blobs.putCalls)

	refs, err := repo.CountByContentHash(context.Background(), first.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refs)
}

func TestUploadConcurrentIdenticalContent(t *testing.T) {
	uc, repo, blobs := newUploadFixture(t)
	payload := bytes.Repeat([]byte("popular meme "), 4096)
	wantHash := sha256.Sum256(payload)

	const uploaders = 8
	var wg sync.WaitGroup
	errs := make([]error, uploaders)

	for i := 0; i < uploaders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.Upload(context.Background(), UploadRequest{
				OwnerID:  fmt.Sprintf("user-%d", i),
				Filename: "meme.jpg",
				Data:     bytes.NewReader(payload),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "uploader %d", i)
	}

	assert.Equal(t, 1, blobs.blobCount())

	refs, err := repo.CountByContentHash(context.Background(), hex.EncodeToString(wantHash[:]))
	require.NoError(t, err)
	assert.Equal(t, int64(uploaders), refs)
}

func TestUploadFilenameConflictPerOwner(t *testing.T) {
	uc, _, _ := newUploadFixture(t)

	_, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "notes.md",
		Data:     strings.NewReader("v1"),
	})
	require.NoError(t, err)

	_, err = uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "notes.md",
		Data:     strings.NewReader("v2"),
	})
	require.ErrorIs(t, err, ErrConflict)

	// the same filename is fine under a different owner
	_, err = uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "bob",
		Filename: "notes.md",
		Data:     strings.NewReader("v3"),
	})
	require.NoError(t, err)
}

func TestUploadConcurrentSameOwnerFilename(t *testing.T) {
	uc, repo, _ := newUploadFixture(t)

	// both racers can pass the advisory existence check; the insert-time
	// uniqueness of (owner, filename) must still let only one land
	const racers = 2
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.Upload(context.Background(), UploadRequest{
				OwnerID:  "alice",
				Filename: "contested.txt",
				Data:     strings.NewReader(fmt.Sprintf("attempt %d", i)),
			})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, repo.records, 1)
}

func TestUploadAppliesDefaults(t *testing.T) {
	uc, _, _ := newUploadFixture(t)

	rec, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "plain",
		Data:     strings.NewReader("x"),
	})
	require.NoError(t, err)

	assert.Equal(t, VisibilityPrivate, rec.Visibility)
	assert.Equal(t, "application/octet-stream", rec.ContentType)
}

func TestUploadValidatesRequest(t *testing.T) {
	uc, _, _ := newUploadFixture(t)

	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"missing owner", UploadRequest{Filename: "f", Data: strings.NewReader("x")}},
		{"missing filename", UploadRequest{OwnerID: "alice", Data: strings.NewReader("x")}},
		{"blank filename", UploadRequest{OwnerID: "alice", Filename: "   ", Data: strings.NewReader("x")}},
		{"missing stream", UploadRequest{OwnerID: "alice", Filename: "f"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Upload(context.Background(), tc.req)
			assert.Error(t, err)
		})
	}
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	repo := newMemRepo()
	blobs := newMemBlobStore()
	uc := NewFileUseCase(repo, blobs, nil, Config{
		MaxUploadSizeBytes: 16,
		SpoolDir:           t.TempDir(),
	}, newTestLogger(t))

	_, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "big.bin",
		Data:     strings.NewReader("seventeen bytes!!"),
	})
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	assert.Equal(t, 0, blobs.blobCount())
	assert.Empty(t, repo.records)
}

func TestUploadStreamFailureLeavesNothing(t *testing.T) {
	uc, repo, blobs := newUploadFixture(t)

	_, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "flaky.bin",
		Data:     &failingReader{data: []byte("partial"), err: errors.New("peer reset")},
	})
	require.ErrorIs(t, err, ErrStreamRead)
	assert.True(t, IsTransient(err))

	assert.Equal(t, 0, blobs.blobCount())
	assert.Empty(t, repo.records)
}

func TestUploadPersistenceFailureLeavesOrphanBlobOnly(t *testing.T) {
	uc, repo, blobs := newUploadFixture(t)
	repo.createErr = ErrPersistence

	_, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "doomed.txt",
		Data:     strings.NewReader("written then orphaned"),
	})
	require.ErrorIs(t, err, ErrPersistence)

	// no record pointing at a missing blob, only the inverse is possible
	assert.Empty(t, repo.records)
	assert.Equal(t, 1, blobs.blobCount())
}

func TestUploadRetriesOnTokenCollision(t *testing.T) {
	uc, repo, _ := newUploadFixture(t)
	repo.createErr = ErrDuplicateID

	rec, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "lucky.txt",
		Data:     strings.NewReader("second token sticks"),
	})
	require.NoError(t, err)
	assert.Len(t, repo.records, 1)
	assert.Len(t, rec.ID, 43)
}

func TestUploadBlobSizeMismatchFailsClosed(t *testing.T) {
	uc, repo, blobs := newUploadFixture(t)

	rec, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "original.bin",
		Data:     strings.NewReader("original bytes"),
	})
	require.NoError(t, err)

	// corrupt the stored blob so its size no longer matches the hash
	blobs.mu.Lock()
	blobs.blobs[rec.ContentHash] = []byte("truncated")
	blobs.mu.Unlock()

	_, err = uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "bob",
		Filename: "copy.bin",
		Data:     strings.NewReader("original bytes"),
	})
	require.ErrorIs(t, err, ErrContentMismatch)
	assert.False(t, IsTransient(err))
	assert.Len(t, repo.records, 1)
}

func TestUploadWithWriteClaim(t *testing.T) {
	repo := newMemRepo()
	blobs := newMemBlobStore()
	claims := newMemClaimer()
	uc := NewFileUseCase(repo, blobs, claims, Config{SpoolDir: t.TempDir()}, newTestLogger(t))

	_, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "claimed.txt",
		Data:     strings.NewReader("claimed content"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, claims.claims)
	assert.Equal(t, 1, claims.releases)
	assert.Equal(t, 1, blobs.blobCount())
}

func TestUploadLostClaimStillStoresBlob(t *testing.T) {
	repo := newMemRepo()
	blobs := newMemBlobStore()
	claims := newMemClaimer()
	claims.deny = true
	uc := NewFileUseCase(repo, blobs, claims, Config{SpoolDir: t.TempDir()}, newTestLogger(t))

	// the claim holder never finishes; the upload must not be lost
	rec, err := uc.Upload(context.Background(), UploadRequest{
		OwnerID:  "alice",
		Filename: "raced.txt",
		Data:     strings.NewReader("raced content"),
	})
	require.NoError(t, err)

	_, info, err := blobs.Get(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, rec.Size, info.Size)
}
