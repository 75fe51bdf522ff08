package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

const spoolChunkSize = 32 * 1024

// UploadSession spools an inbound byte stream to a temporary file while
// streaming it through a sha256 digest, chunk by chunk, so the content hash
// is known without the payload ever being resident in memory and the bytes
// stay re-readable for the physical write that follows.
//
// A session is owned by exactly one upload and must be closed when the
// upload finishes or fails; closing removes the spool file.
type UploadSession struct {
	spool    *os.File
	digest   hash.Hash
	size     int64
	limit    int64
	sum      string
	consumed bool
	closed   bool
}

// NewUploadSession creates a session spooling into dir ("" means the system
// temp directory). limit caps the accepted payload size; 0 means unlimited.
func NewUploadSession(dir string, limit int64) (*UploadSession, error) {
	f, err := os.CreateTemp(dir, "upload-*.spool")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload spool: %w", err)
	}

	return &UploadSession{
		spool:  f,
		digest: sha256.New(),
		limit:  limit,
	}, nil
}

// Consume drains the stream into the spool and the digest. It fails with
// ErrPayloadTooLarge as soon as the limit is exceeded mid-stream and with
// ErrStreamRead when the stream errors before completion; in both cases the
// partial digest is discarded and ContentHash stays empty. Cancellation of
// ctx is checked between chunks.
func (s *UploadSession) Consume(ctx context.Context, r io.Reader) error {
	if s.consumed {
		return errors.New("upload session already consumed")
	}
	s.consumed = true

	buf := make([]byte, spoolChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			s.size += int64(n)
			if s.limit > 0 && s.size > s.limit {
				return ErrPayloadTooLarge
			}
			if _, werr := s.spool.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: spooling failed: %v", ErrStreamRead, werr)
			}
			s.digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStreamRead, err)
		}
	}

	s.sum = hex.EncodeToString(s.digest.Sum(nil))
	return nil
}

// ContentHash returns the hex sha256 of the consumed stream, or "" if the
// stream was not fully consumed.
func (s *UploadSession) ContentHash() string {
	return s.sum
}

// Size returns the number of bytes consumed so far
func (s *UploadSession) Size() int64 {
	return s.size
}

// Open rewinds the spool and returns a reader over the consumed bytes
func (s *UploadSession) Open() (io.Reader, error) {
	if s.sum == "" {
		return nil, errors.New("upload session not fully consumed")
	}
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload spool: %w", err)
	}
	return s.spool, nil
}

// Close releases the spool file. Safe to call more than once.
func (s *UploadSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	name := s.spool.Name()
	cerr := s.spool.Close()
	if rerr := os.Remove(name); rerr != nil && cerr == nil {
		cerr = rerr
	}
	return cerr
}
