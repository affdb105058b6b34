package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/filestore"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// multipartOverhead 是 multipart 边界与表单字段的额外字节余量。
const multipartOverhead = 1 << 20

// handleUploadAttachment 上传附件。
//
// 校验顺序：文件 → todoId → 大小 → 扩展名 → MIME 类型 → 待办归属。
// 写库失败时删除已保存的文件。
func (s *Server) handleUploadAttachment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.policy.MaxSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.AttachmentsRejectedTotal.WithLabelValues("size").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": filestore.ErrTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	todoID := strings.TrimSpace(c.PostForm("todoId"))
	if todoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "todoId is required"})
		return
	}

	fileType, err := s.policy.Validate(fh.Filename, fh.Header.Get("Content-Type"), fh.Size)
	if err != nil {
		metrics.AttachmentsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.FindTodo(ctx, userID, todoID); err != nil {
		s.storeError(c, err, "todo", "find todo")
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read uploaded file failed"})
		return
	}
	defer src.Close()

	name := filestore.StoredName(fh.Filename, s.now())
	written, err := s.files.Save(ctx, name, src)
	if err != nil {
		s.logger.Error("save attachment failed", slog.String("todo_id", todoID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}

	att := model.Attachment{
		TodoID:       todoID,
		Filename:     name,
		OriginalName: fh.Filename,
		FileType:     fileType,
		FileSize:     written,
		FilePath:     name,
	}
	if err := s.store.CreateAttachment(ctx, &att); err != nil {
		if delErr := s.files.Delete(ctx, name); delErr != nil {
			s.logger.Warn("remove orphan file failed", slog.String("file", name), slog.String("error", delErr.Error()))
		}
		s.storeError(c, err, "attachment", "create attachment")
		return
	}

	metrics.AttachmentsUploadedTotal.Inc()
	metrics.AttachmentBytesTotal.Add(float64(written))
	s.logger.Info("attachment uploaded",
		slog.String("user_id", userID),
		slog.String("todo_id", todoID),
		slog.String("attachment_id", att.ID),
		slog.Int64("size", written),
	)
	c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully", "attachment": att})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, filestore.ErrTooLarge):
		return "size"
	case errors.Is(err, filestore.ErrExtension):
		return "extension"
	case errors.Is(err, filestore.ErrMIMEType):
		return "mime"
	}
	return "other"
}

func (s *Server) handleListAttachments(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	todoID := strings.TrimSpace(c.Query("todoId"))
	if todoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "todoId is required"})
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.FindTodo(ctx, userID, todoID); err != nil {
		s.storeError(c, err, "todo", "find todo")
		return
	}
	list, err := s.store.ListAttachments(ctx, todoID)
	if err != nil {
		s.storeError(c, err, "attachment", "list attachments")
		return
	}
	if list == nil {
		list = []model.Attachment{}
	}
	c.JSON(http.StatusOK, gin.H{"attachments": list})
}

// handleDownloadAttachment 以附件形式返回文件内容，文件名做 URL 编码。
func (s *Server) handleDownloadAttachment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	att, err := s.store.FindAttachment(ctx, userID, c.Param("id"))
	if err != nil {
		s.storeError(c, err, "attachment", "find attachment")
		return
	}

	rc, err := s.files.Open(ctx, att.FilePath)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		s.logger.Error("open attachment failed", slog.String("attachment_id", att.ID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, att.FileSize, att.FileType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(att.OriginalName)),
	})
}

// handleDeleteAttachment 先删除记录再删除文件，文件删除失败只记录日志。
func (s *Server) handleDeleteAttachment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	att, err := s.store.FindAttachment(ctx, userID, c.Param("id"))
	if err != nil {
		s.storeError(c, err, "attachment", "find attachment")
		return
	}
	if err := s.store.DeleteAttachment(ctx, att.ID); err != nil {
		s.storeError(c, err, "attachment", "delete attachment")
		return
	}
	s.removeStoredFile(c, *att)
	c.JSON(http.StatusOK, gin.H{"message": "Attachment deleted successfully"})
}
