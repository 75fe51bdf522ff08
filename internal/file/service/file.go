package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/digitalarkcorp/filestorage/internal/file/biz"
	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// userIDHeader carries the requester identity. Authentication itself lives
// in front of this service; an empty header is an anonymous request.
const userIDHeader = "X-User-Id"

// FileService exposes the file domain over HTTP
type FileService struct {
	uc     *biz.FileUseCase
	logger *logger.Logger
}

// NewFileService creates the HTTP service for files
func NewFileService(uc *biz.FileUseCase, log *logger.Logger) *FileService {
	return &FileService{
		uc:     uc,
		logger: log,
	}
}

// RegisterRoutes registers the file routes on the given group
func (s *FileService) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/files", s.Upload)
	r.GET("/files", s.ListMine)
	r.GET("/files/public", s.ListPublic)
	r.GET("/files/:id", s.Get)
	r.PATCH("/files/:id/name", s.Rename)
	r.PATCH("/files/:id/visibility", s.UpdateVisibility)
	r.DELETE("/files/:id", s.Delete)
}

// UploadMetadata is the JSON "metadata" part of a multipart upload
type UploadMetadata struct {
	Filename   string   `json:"filename" binding:"required"`
	Visibility string   `json:"visibility"`
	Tags       []string `json:"tags"`
}

// RenameRequest is the body of a rename call
type RenameRequest struct {
	NewFilename string `json:"new_filename" binding:"required"`
}

// VisibilityRequest is the body of a visibility update
type VisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

// FileResponse is the JSON shape of a file record
type FileResponse struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"owner_id"`
	Filename     string   `json:"filename"`
	Visibility   string   `json:"visibility"`
	Tags         []string `json:"tags"`
	Size         int64    `json:"size"`
	ContentType  string   `json:"content_type"`
	DownloadLink string   `json:"download_link"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// PageResponse is one page of file records
type PageResponse struct {
	Files         []*FileResponse `json:"files"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (s *FileService) Upload(c *gin.Context) {
	ownerID, ok := s.requireUserID(c)
	if !ok {
		return
	}

	var meta UploadMetadata
	raw := c.PostForm("metadata")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing metadata part"})
		return
	}
	if err := bindMetadata(raw, &meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visibility := biz.Visibility("")
	if meta.Visibility != "" {
		v, err := biz.ParseVisibility(meta.Visibility)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		visibility = v
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file part"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file part"})
		return
	}
	defer file.Close()

	rec, err := s.uc.Upload(c.Request.Context(), biz.UploadRequest{
		OwnerID:     ownerID,
		Filename:    meta.Filename,
		Visibility:  visibility,
		Tags:        meta.Tags,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        file,
	})
	if err != nil {
		s.respondError(c, "upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(rec))
}

func (s *FileService) Get(c *gin.Context) {
	rec, err := s.uc.Get(c.Request.Context(), c.Param("id"), c.GetHeader(userIDHeader))
	if err != nil {
		s.respondError(c, "failed to get file", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(rec))
}

func (s *FileService) ListMine(c *gin.Context) {
	ownerID, ok := s.requireUserID(c)
	if !ok {
		return
	}

	q, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := s.uc.ListMine(c.Request.Context(), ownerID, q)
	if err != nil {
		s.respondError(c, "failed to list files", err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

func (s *FileService) ListPublic(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := s.uc.ListPublic(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, "failed to list public files", err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

func (s *FileService) Rename(c *gin.Context) {
	ownerID, ok := s.requireUserID(c)
	if !ok {
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.uc.Rename(c.Request.Context(), ownerID, c.Param("id"), req.NewFilename)
	if err != nil {
		s.respondError(c, "rename failed", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(rec))
}

func (s *FileService) UpdateVisibility(c *gin.Context) {
	ownerID, ok := s.requireUserID(c)
	if !ok {
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := biz.ParseVisibility(req.Visibility)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.uc.UpdateVisibility(c.Request.Context(), ownerID, c.Param("id"), v)
	if err != nil {
		s.respondError(c, "visibility update failed", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(rec))
}

func (s *FileService) Delete(c *gin.Context) {
	ownerID, ok := s.requireUserID(c)
	if !ok {
		return
	}

	if err := s.uc.Delete(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		s.respondError(c, "delete failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *FileService) requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + userIDHeader + " header"})
		return "", false
	}
	return userID, true
}

// respondError maps domain errors to HTTP statuses
func (s *FileService) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, biz.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, biz.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, biz.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, biz.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
	case errors.Is(err, biz.ErrStreamRead):
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload stream failed, please retry"})
	case errors.Is(err, biz.ErrInvalidPageToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page token"})
	case errors.Is(err, biz.ErrStoreUnavailable):
		s.logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage temporarily unavailable"})
	default:
		s.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// bindMetadata parses the JSON metadata part of a multipart upload
func bindMetadata(raw string, meta *UploadMetadata) error {
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}
	if strings.TrimSpace(meta.Filename) == "" {
		return errors.New("metadata.filename is required")
	}
	return nil
}

func parseListQuery(c *gin.Context) (biz.ListQuery, error) {
	sortBy, err := biz.ParseSortBy(c.Query("sort_by"))
	if err != nil {
		return biz.ListQuery{}, err
	}
	sortDir, err := biz.ParseSortDir(c.Query("sort_dir"))
	if err != nil {
		return biz.ListQuery{}, err
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	return biz.ListQuery{
		Tag:       c.Query("tag"),
		SortBy:    sortBy,
		SortDir:   sortDir,
		PageSize:  pageSize,
		PageToken: c.Query("page_token"),
	}, nil
}

func toResponse(rec *biz.FileRecord) *FileResponse {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	return &FileResponse{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		Filename:     rec.Filename,
		Visibility:   string(rec.Visibility),
		Tags:         tags,
		Size:         rec.Size,
		ContentType:  rec.ContentType,
		DownloadLink: "/d/" + rec.ID,
		CreatedAt:    rec.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:    rec.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPageResponse(page *biz.Page) *PageResponse {
	files := make([]*FileResponse, 0, len(page.Records))
	for _, rec := range page.Records {
		files = append(files, toResponse(rec))
	}
	return &PageResponse{
		Files:         files,
		NextPageToken: page.NextPageToken,
	}
}
