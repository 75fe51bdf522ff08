package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/file/biz"
	"github.com/digitalarkcorp/filestorage/internal/pkg/database"
	"gorm.io/gorm"
)

// FilePO is the database model for file records
type FilePO struct {
	ID          string    `gorm:"primaryKey;size:64"`
	OwnerID     string    `gorm:"column:owner_id;size:64;not null;uniqueIndex:uk_file_records_owner_filename"`
	Filename    string    `gorm:"size:255;not null;uniqueIndex:uk_file_records_owner_filename"`
	Visibility  string    `gorm:"size:10;not null;index:idx_file_records_visibility"`
	Tags        string    `gorm:"type:jsonb;not null;default:'[]'"`
	Size        int64     `gorm:"not null"`
	ContentType string    `gorm:"column:content_type;size:255;not null"`
	ContentHash string    `gorm:"column:content_hash;size:64;not null;index:idx_file_records_content_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (FilePO) TableName() string {
	return "file_records"
}

// FileRepo implements biz.FileRepo on PostgreSQL
type FileRepo struct {
	db *database.DB
}

// NewFileRepo creates a file repository
func NewFileRepo(db *database.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, rec *biz.FileRecord) error {
	po, err := toPO(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}

	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKey(err) {
			// Either constraint can fire: the token primary key or the
			// (owner_id, filename) unique index. The translated error does
			// not say which, so re-check the filename; losing a concurrent
			// same-name race is a conflict, not a token collision.
			taken, checkErr := r.ExistsByOwnerAndFilename(ctx, rec.OwnerID, rec.Filename)
			if checkErr == nil && taken {
				return biz.ErrConflict
			}
			return biz.ErrDuplicateID
		}
		return fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}
	return nil
}

func (r *FileRepo) GetByID(ctx context.Context, id string) (*biz.FileRecord, error) {
	var po FilePO
	err := r.db.WithContext(ctx).First(&po, "id = ?", id).Error
	if err != nil {
		if database.IsRecordNotFound(err) {
			return nil, biz.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}
	return toDomain(&po)
}

func (r *FileRepo) ListByOwner(ctx context.Context, ownerID string, q biz.ListQuery) (*biz.Page, error) {
	tx := r.db.WithContext(ctx).Model(&FilePO{}).Where("owner_id = ?", ownerID)
	return r.list(tx, q)
}

func (r *FileRepo) ListPublic(ctx context.Context, q biz.ListQuery) (*biz.Page, error) {
	tx := r.db.WithContext(ctx).Model(&FilePO{}).Where("visibility = ?", string(biz.VisibilityPublic))
	return r.list(tx, q)
}

// list applies the tag filter, keyset cursor and ordering shared by both
// listings. Ordering is always (sort column, id) so it is total: records
// with equal sort values still come back in a stable order, and the cursor
// comparison can use PostgreSQL row-wise comparison directly.
func (r *FileRepo) list(tx *gorm.DB, q biz.ListQuery) (*biz.Page, error) {
	column, err := sortColumn(q.SortBy)
	if err != nil {
		return nil, err
	}

	if q.Tag != "" {
		tag, err := json.Marshal([]string{q.Tag})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", biz.ErrPersistence, err)
		}
		tx = tx.Where("tags @> ?", string(tag))
	}

	if q.PageToken != "" {
		sortValue, lastID, err := decodeCursor(q.PageToken, q.SortBy)
		if err != nil {
			return nil, err
		}
		op := ">"
		if q.SortDir == biz.SortDesc {
			op = "<"
		}
		tx = tx.Where(fmt.Sprintf("(%s, id) %s (?, ?)", column, op), sortValue, lastID)
	}

	dir := "ASC"
	if q.SortDir == biz.SortDesc {
		dir = "DESC"
	}
	tx = tx.Order(fmt.Sprintf("%s %s, id %s", column, dir, dir)).Limit(q.PageSize + 1)

	var pos []FilePO
	if err := tx.Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}

	hasMore := len(pos) > q.PageSize
	if hasMore {
		pos = pos[:q.PageSize]
	}

	records := make([]*biz.FileRecord, 0, len(pos))
	for i := range pos {
		rec, err := toDomain(&pos[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	page := &biz.Page{Records: records}
	if hasMore && len(records) > 0 {
		token, err := encodeCursor(records[len(records)-1], q.SortBy)
		if err != nil {
			return nil, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *FileRepo) Rename(ctx context.Context, id, newFilename string, now time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"filename":   newFilename,
		"updated_at": now,
	})
}

func (r *FileRepo) UpdateVisibility(ctx context.Context, id string, v biz.Visibility, now time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"visibility": string(v),
		"updated_at": now,
	})
}

func (r *FileRepo) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&FilePO{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", biz.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return biz.ErrNotFound
	}
	return nil
}

func (r *FileRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&FilePO{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", biz.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return biz.ErrNotFound
	}
	return nil
}

func (r *FileRepo) CountByContentHash(ctx context.Context, contentHash string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("content_hash = ?", contentHash).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}
	return count, nil
}

func (r *FileRepo) ExistsByOwnerAndFilename(ctx context.Context, ownerID, filename string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("owner_id = ? AND filename = ?", ownerID, filename).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", biz.ErrPersistence, err)
	}
	return count > 0, nil
}

func sortColumn(s biz.SortBy) (string, error) {
	switch s {
	case biz.SortByFilename:
		return "filename", nil
	case biz.SortByCreatedAt:
		return "created_at", nil
	case biz.SortByUpdatedAt:
		return "updated_at", nil
	case biz.SortBySize:
		return "size", nil
	default:
		return "", fmt.Errorf("unsupported sort key %q", s)
	}
}

func toPO(rec *biz.FileRecord) (*FilePO, error) {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	return &FilePO{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Filename:    rec.Filename,
		Visibility:  string(rec.Visibility),
		Tags:        string(tagsJSON),
		Size:        rec.Size,
		ContentType: rec.ContentType,
		ContentHash: rec.ContentHash,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func toDomain(po *FilePO) (*biz.FileRecord, error) {
	var tags []string
	if po.Tags != "" {
		if err := json.Unmarshal([]byte(po.Tags), &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &biz.FileRecord{
		ID:          po.ID,
		OwnerID:     po.OwnerID,
		Filename:    po.Filename,
		Visibility:  biz.Visibility(po.Visibility),
		Tags:        tags,
		Size:        po.Size,
		ContentType: po.ContentType,
		ContentHash: po.ContentHash,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}, nil
}
