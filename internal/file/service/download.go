package service

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterDownloadRoutes registers the unauthenticated download route on the
// router root; download links are capability URLs and live outside the API
// group.
func (s *FileService) RegisterDownloadRoutes(r *gin.Engine) {
	r.GET("/d/:linkId", s.Download)
}

func (s *FileService) Download(c *gin.Context) {
	stream, rec, err := s.uc.Download(c.Request.Context(), c.Param("linkId"), c.GetHeader(userIDHeader))
	if err != nil {
		s.respondError(c, "download failed", err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", rec.ContentType)
	c.Header("Content-Length", fmt.Sprintf("%d", rec.Size))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, stream); err != nil {
		// Headers are already out; all we can do is log the broken transfer.
		s.logger.Warn("download stream interrupted",
			zap.String("record", rec.ID),
			zap.Error(err),
		)
	}
}
