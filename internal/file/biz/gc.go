package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"github.com/digitalarkcorp/filestorage/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// GarbageCollector reclaims blobs no record references anymore.
//
// Reference counts are computed on demand from the metadata index, never
// maintained as a counter on the blob, so there is no counter to corrupt
// under concurrent create/delete. The grace clock starts when a blob is
// first OBSERVED unreferenced, not when it was written: a blob becomes
// eligible only once a full grace period has passed since that observation
// with no reference reappearing, so deleting the last record of an old blob
// never makes it collectible on the next sweep. A young-blob age check on
// top of that covers the window between a fresh upload's physical write and
// its record insert.
type GarbageCollector struct {
	repo   FileRepo
	blobs  BlobStore
	pool   *workerpool.Pool
	grace  time.Duration
	logger *logger.Logger
	now    func() time.Time

	mu                sync.Mutex
	unreferencedSince map[string]time.Time
}

// NewGarbageCollector creates a garbage collector. pool may be nil, in which
// case deletions run sequentially.
func NewGarbageCollector(repo FileRepo, blobs BlobStore, pool *workerpool.Pool, grace time.Duration, log *logger.Logger) *GarbageCollector {
	return &GarbageCollector{
		repo:              repo,
		blobs:             blobs,
		pool:              pool,
		grace:             grace,
		logger:            log,
		now:               time.Now,
		unreferencedSince: make(map[string]time.Time),
	}
}

// Sweep scans the blob store once and deletes every blob that has stayed
// unreferenced for a full grace period since it was first seen unreferenced.
// A fresh orphan is therefore observed by one sweep and deleted by a later
// one. Returns the number of blobs deleted.
func (gc *GarbageCollector) Sweep(ctx context.Context) (int, error) {
	blobs, err := gc.blobs.List(ctx)
	if err != nil {
		return 0, err
	}

	now := gc.now()
	cutoff := now.Add(-gc.grace)
	seen := make(map[string]struct{}, len(blobs))

	var deleted atomic.Int64
	var wg sync.WaitGroup

	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			break
		}
		seen[blob.ContentHash] = struct{}{}

		refs, err := gc.repo.CountByContentHash(ctx, blob.ContentHash)
		if err != nil {
			gc.logger.Warn("gc: reference count failed, keeping blob",
				zap.String("content_hash", blob.ContentHash),
				zap.Error(err),
			)
			continue
		}
		if refs > 0 {
			gc.clearUnreferenced(blob.ContentHash)
			continue
		}

		since := gc.markUnreferenced(blob.ContentHash, now)
		if now.Sub(since) < gc.grace {
			continue
		}
		if blob.ModifiedAt.After(cutoff) {
			continue
		}

		hash := blob.ContentHash
		task := func() {
			defer wg.Done()
			if err := gc.blobs.Delete(ctx, hash); err != nil {
				gc.logger.Warn("gc: blob deletion failed",
					zap.String("content_hash", hash),
					zap.Error(err),
				)
				return
			}
			gc.clearUnreferenced(hash)
			deleted.Add(1)
			gc.logger.Info("gc: unreferenced blob deleted", zap.String("content_hash", hash))
		}

		wg.Add(1)
		if gc.pool != nil {
			if err := gc.pool.Submit(task); err != nil {
				wg.Done()
				gc.logger.Warn("gc: failed to schedule deletion", zap.Error(err))
			}
		} else {
			task()
		}
	}

	wg.Wait()
	gc.pruneUnreferenced(seen)
	return int(deleted.Load()), ctx.Err()
}

// markUnreferenced records the first time a blob was seen with zero
// references and returns that time.
func (gc *GarbageCollector) markUnreferenced(contentHash string, now time.Time) time.Time {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if since, ok := gc.unreferencedSince[contentHash]; ok {
		return since
	}
	gc.unreferencedSince[contentHash] = now
	return now
}

func (gc *GarbageCollector) clearUnreferenced(contentHash string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	delete(gc.unreferencedSince, contentHash)
}

// pruneUnreferenced drops tracking entries for blobs no longer in the store
func (gc *GarbageCollector) pruneUnreferenced(seen map[string]struct{}) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	for hash := range gc.unreferencedSince {
		if _, ok := seen[hash]; !ok {
			delete(gc.unreferencedSince, hash)
		}
	}
}

// Run sweeps on the given interval until ctx is cancelled
func (gc *GarbageCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	gc.logger.Info("garbage collector started",
		zap.Duration("interval", interval),
		zap.Duration("grace", gc.grace),
	)

	for {
		select {
		case <-ctx.Done():
			gc.logger.Info("garbage collector stopped")
			return
		case <-ticker.C:
			n, err := gc.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				gc.logger.Error("gc: sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				gc.logger.Info("gc: sweep finished", zap.Int("deleted", n))
			}
		}
	}
}
