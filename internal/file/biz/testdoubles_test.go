package biz

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(&logger.Config{
		Level:  "error",
		Format: "console",
		Output: "console",
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return log
}

// memRepo is an in-memory FileRepo honoring the same keyset pagination
// contract as the SQL implementation.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*FileRecord

	createErr error // returned once by Create when set
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*FileRecord)}
}

func (r *memRepo) Create(_ context.Context, rec *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	if _, ok := r.records[rec.ID]; ok {
		return ErrDuplicateID
	}
	// mirrors the unique (owner_id, filename) index of the real repository
	for _, existing := range r.records {
		if existing.OwnerID == rec.OwnerID && existing.Filename == rec.Filename {
			return ErrConflict
		}
	}

	clone := *rec
	r.records[rec.ID] = &clone
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *memRepo) ListByOwner(_ context.Context, ownerID string, q ListQuery) (*Page, error) {
	return r.list(func(rec *FileRecord) bool { return rec.OwnerID == ownerID }, q)
}

func (r *memRepo) ListPublic(_ context.Context, q ListQuery) (*Page, error) {
	return r.list(func(rec *FileRecord) bool { return rec.Visibility == VisibilityPublic }, q)
}

type memCursor struct {
	V  string `json:"v"`
	ID string `json:"id"`
}

func sortValue(rec *FileRecord, by SortBy) string {
	switch by {
	case SortByFilename:
		return rec.Filename
	case SortByUpdatedAt:
		return rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	case SortBySize:
		return fmt.Sprintf("%020d", rec.Size)
	default:
		return rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
}

func (r *memRepo) list(match func(*FileRecord) bool, q ListQuery) (*Page, error) {
	r.mu.Lock()
	var all []*FileRecord
	for _, rec := range r.records {
		if !match(rec) {
			continue
		}
		if q.Tag != "" && !hasTag(rec, q.Tag) {
			continue
		}
		clone := *rec
		all = append(all, &clone)
	}
	r.mu.Unlock()

	less := func(a, b *FileRecord) bool {
		av, bv := sortValue(a, q.SortBy), sortValue(b, q.SortBy)
		if av != bv {
			if q.SortDir == SortDesc {
				return av > bv
			}
			return av < bv
		}
		if q.SortDir == SortDesc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	if q.PageToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(q.PageToken)
		if err != nil {
			return nil, err
		}
		var c memCursor
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		after := &FileRecord{ID: c.ID}
		switch q.SortBy {
		case SortByFilename:
			after.Filename = c.V
		case SortByUpdatedAt:
			after.UpdatedAt, _ = time.Parse(time.RFC3339Nano, c.V)
		case SortBySize:
			after.Size, _ = strconv.ParseInt(c.V, 10, 64)
		default:
			after.CreatedAt, _ = time.Parse(time.RFC3339Nano, c.V)
		}
		filtered := all[:0]
		for _, rec := range all {
			if less(after, rec) {
				filtered = append(filtered, rec)
			}
		}
		all = filtered
	}

	page := &Page{}
	if len(all) > q.PageSize {
		last := all[q.PageSize-1]
		c := memCursor{V: sortValue(last, q.SortBy), ID: last.ID}
		if q.SortBy == SortBySize {
			c.V = strconv.FormatInt(last.Size, 10)
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		page.NextPageToken = base64.RawURLEncoding.EncodeToString(raw)
		all = all[:q.PageSize]
	}
	page.Records = all
	return page, nil
}

func hasTag(rec *FileRecord, tag string) bool {
	for _, t := range rec.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *memRepo) Rename(_ context.Context, id, newFilename string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Filename = newFilename
	rec.UpdatedAt = now
	return nil
}

func (r *memRepo) UpdateVisibility(_ context.Context, id string, v Visibility, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Visibility = v
	rec.UpdatedAt = now
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) CountByContentHash(_ context.Context, contentHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, rec := range r.records {
		if rec.ContentHash == contentHash {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ExistsByOwnerAndFilename(_ context.Context, ownerID, filename string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.OwnerID == ownerID && rec.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

// memBlobStore is an in-memory BlobStore with the verified idempotent put
// contract and an injectable clock for grace-period tests.
type memBlobStore struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	modifiedAt map[string]time.Time
	putCalls   int

	putErr error // returned once by Put when set
	now    func() time.Time
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs:      make(map[string][]byte),
		modifiedAt: make(map[string]time.Time),
		now:        time.Now,
	}
}

func (s *memBlobStore) Put(_ context.Context, contentHash string, r io.Reader, size int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamRead, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		err := s.putErr
		s.putErr = nil
		return err
	}

	s.putCalls++
	if existing, ok := s.blobs[contentHash]; ok {
		if int64(len(existing)) != size {
			return ErrContentMismatch
		}
		return nil
	}
	if int64(len(data)) != size {
		return ErrContentMismatch
	}
	s.blobs[contentHash] = data
	s.modifiedAt[contentHash] = s.now()
	return nil
}

func (s *memBlobStore) Get(_ context.Context, contentHash string) (io.ReadCloser, *BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[contentHash]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &BlobInfo{
		ContentHash: contentHash,
		Size:        int64(len(data)),
		ModifiedAt:  s.modifiedAt[contentHash],
	}, nil
}

func (s *memBlobStore) Exists(_ context.Context, contentHash string) (*BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[contentHash]
	if !ok {
		return nil, nil
	}
	return &BlobInfo{
		ContentHash: contentHash,
		Size:        int64(len(data)),
		ModifiedAt:  s.modifiedAt[contentHash],
	}, nil
}

func (s *memBlobStore) Delete(_ context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[contentHash]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, contentHash)
	delete(s.modifiedAt, contentHash)
	return nil
}

func (s *memBlobStore) List(_ context.Context) ([]*BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blobs []*BlobInfo
	for hash, data := range s.blobs {
		blobs = append(blobs, &BlobInfo{
			ContentHash: hash,
			Size:        int64(len(data)),
			ModifiedAt:  s.modifiedAt[hash],
		})
	}
	return blobs, nil
}

// memClaimer is an in-process WriteClaimer
type memClaimer struct {
	mu   sync.Mutex
	held map[string]bool
	deny bool // deny all claims, simulating a concurrent writer holding them

	claims   int
	releases int
}

func newMemClaimer() *memClaimer {
	return &memClaimer{held: make(map[string]bool)}
}

func (c *memClaimer) Claim(_ context.Context, contentHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deny || c.held[contentHash] {
		return false, nil
	}
	c.held[contentHash] = true
	c.claims++
	return true, nil
}

func (c *memClaimer) Release(_ context.Context, contentHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.held, contentHash)
	c.releases++
}

func (s *memBlobStore) blobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
