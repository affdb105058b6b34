package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fenger067850/todo-manager/internal/api/auth"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/gin-gonic/gin"
)

// getUserID 从 gin.Context 中获取当前用户 ID。
func getUserID(c *gin.Context) (string, bool) {
	val, ok := c.Get(auth.ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// requireUser 获取当前用户，未登录时直接返回 401。
func requireUser(c *gin.Context) (string, bool) {
	id, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
}

// storeError 将存储层错误映射为响应：ErrNotFound 为 404，其余记录日志后返回 500。
func (s *Server) storeError(c *gin.Context, err error, entity, op string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
		return
	}
	s.logger.Error(op+" failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
