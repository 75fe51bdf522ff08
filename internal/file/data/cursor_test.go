package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalarkcorp/filestorage/internal/file/biz"
)

func TestCursorRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	rec := &biz.FileRecord{
		ID:        "tok-abc",
		Filename:  "quarterly report.pdf",
		Size:      1 << 20,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}

	t.Run("filename", func(t *testing.T) {
		token, err := encodeCursor(rec, biz.SortByFilename)
		require.NoError(t, err)

		v, id, err := decodeCursor(token, biz.SortByFilename)
		require.NoError(t, err)
		assert.Equal(t, rec.Filename, v)
		assert.Equal(t, rec.ID, id)
	})

	t.Run("created_at keeps nanosecond precision", func(t *testing.T) {
		token, err := encodeCursor(rec, biz.SortByCreatedAt)
		require.NoError(t, err)

		v, id, err := decodeCursor(token, biz.SortByCreatedAt)
		require.NoError(t, err)
		assert.True(t, rec.CreatedAt.Equal(v.(time.Time)))
		assert.Equal(t, rec.ID, id)
	})

	t.Run("updated_at", func(t *testing.T) {
		token, err := encodeCursor(rec, biz.SortByUpdatedAt)
		require.NoError(t, err)

		v, _, err := decodeCursor(token, biz.SortByUpdatedAt)
		require.NoError(t, err)
		assert.True(t, rec.UpdatedAt.Equal(v.(time.Time)))
	})

	t.Run("size", func(t *testing.T) {
		token, err := encodeCursor(rec, biz.SortBySize)
		require.NoError(t, err)

		v, _, err := decodeCursor(token, biz.SortBySize)
		require.NoError(t, err)
		assert.Equal(t, rec.Size, v.(int64))
	})
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not base64url", "%%%"},
		{"not json", "bm90LWpzb24"},
		{"missing id", "eyJ2IjoiYSJ9"}, // {"v":"a"}
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeCursor(tc.token, biz.SortByFilename)
			// client input, so the failure must carry the bad-request sentinel
			assert.ErrorIs(t, err, biz.ErrInvalidPageToken)
		})
	}
}

func TestDecodeCursorRejectsMismatchedSortValue(t *testing.T) {
	rec := &biz.FileRecord{ID: "tok", Filename: "not-a-timestamp"}

	token, err := encodeCursor(rec, biz.SortByFilename)
	require.NoError(t, err)

	// a filename cursor replayed against a time-sorted listing must not parse
	_, _, err = decodeCursor(token, biz.SortByCreatedAt)
	assert.ErrorIs(t, err, biz.ErrInvalidPageToken)

	_, _, err = decodeCursor(token, biz.SortBySize)
	assert.ErrorIs(t, err, biz.ErrInvalidPageToken)
}

func TestEncodeCursorRejectsUnknownSortKey(t *testing.T) {
	_, err := encodeCursor(&biz.FileRecord{ID: "tok"}, biz.SortBy("owner"))
	assert.Error(t, err)
}
