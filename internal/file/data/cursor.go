package data

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/file/biz"
)

// cursor is the opaque keyset pagination token: the last-seen sort value and
// record id. Because it never encodes a numeric offset, pages stay valid
// when records are inserted or deleted between fetches.
type cursor struct {
	SortValue string `json:"v"`
	ID        string `json:"id"`
}

func encodeCursor(rec *biz.FileRecord, sortBy biz.SortBy) (string, error) {
	c := cursor{ID: rec.ID}

	switch sortBy {
	case biz.SortByFilename:
		c.SortValue = rec.Filename
	case biz.SortByCreatedAt:
		c.SortValue = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	case biz.SortByUpdatedAt:
		c.SortValue = rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	case biz.SortBySize:
		c.SortValue = strconv.FormatInt(rec.Size, 10)
	default:
		return "", fmt.Errorf("unsupported sort key %q", sortBy)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor parses a page token back into a typed sort value for the
// keyset comparison. Malformed tokens come from clients, so every failure
// wraps biz.ErrInvalidPageToken for the service layer to map to a 400.
func decodeCursor(token string, sortBy biz.SortBy) (sortValue interface{}, id string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", biz.ErrInvalidPageToken, err)
	}

	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, "", fmt.Errorf("%w: %v", biz.ErrInvalidPageToken, err)
	}
	if c.ID == "" {
		return nil, "", fmt.Errorf("%w: missing id", biz.ErrInvalidPageToken)
	}

	switch sortBy {
	case biz.SortByFilename:
		return c.SortValue, c.ID, nil
	case biz.SortByCreatedAt, biz.SortByUpdatedAt:
		t, err := time.Parse(time.RFC3339Nano, c.SortValue)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", biz.ErrInvalidPageToken, err)
		}
		return t, c.ID, nil
	case biz.SortBySize:
		n, err := strconv.ParseInt(c.SortValue, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", biz.ErrInvalidPageToken, err)
		}
		return n, c.ID, nil
	default:
		return nil, "", fmt.Errorf("unsupported sort key %q", sortBy)
	}
}
