package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/reminder"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/gin-gonic/gin"
)

type createReminderRequest struct {
	TodoID   string    `json:"todoId" binding:"required"`
	RemindAt *FlexTime `json:"remindAt" binding:"required"`
	Message  *string   `json:"message" binding:"omitempty,max=200"`
}

type updateReminderRequest struct {
	RemindAt *FlexTime        `json:"remindAt"`
	Message  Nullable[string] `json:"message"`
	IsActive *bool            `json:"isActive"`
}

// handleListReminders 返回当前用户的提醒。upcoming=true 时只返回一小时内的活跃提醒。
func (s *Server) handleListReminders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	filter := store.ReminderFilter{Now: s.now(), Window: upcomingWindow}
	if raw := strings.TrimSpace(c.Query("isActive")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid isActive %q", raw))
			return
		}
		filter.IsActive = &v
	}
	if raw := strings.TrimSpace(c.Query("upcoming")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid upcoming %q", raw))
			return
		}
		filter.Upcoming = v
	}

	list, err := s.store.ListReminders(c.Request.Context(), userID, filter)
	if err != nil {
		s.storeError(c, err, "reminder", "list reminders")
		return
	}
	if list == nil {
		list = []model.Reminder{}
	}
	c.JSON(http.StatusOK, gin.H{"reminders": list})
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	if _, err := s.store.FindTodo(ctx, userID, strings.TrimSpace(req.TodoID)); err != nil {
		s.storeError(c, err, "todo", "find todo")
		return
	}
	at := req.RemindAt.UTC()
	if err := reminder.ValidateRemindAt(at, s.now()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r := model.Reminder{
		TodoID:   strings.TrimSpace(req.TodoID),
		RemindAt: at,
		Message:  req.Message,
		IsActive: true,
	}
	if err := s.store.CreateReminder(ctx, &r); err != nil {
		s.storeError(c, err, "reminder", "create reminder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder created successfully", "reminder": r})
}

func (s *Server) handleUpdateReminder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.store.FindReminder(ctx, userID, id); err != nil {
		s.storeError(c, err, "reminder", "find reminder")
		return
	}

	updates := map[string]any{}
	if req.RemindAt != nil {
		at := req.RemindAt.UTC()
		if err := reminder.ValidateRemindAt(at, s.now()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["remind_at"] = at
	}
	if req.Message.Set {
		if req.Message.Valid && utf8.RuneCountInString(req.Message.Value) > 200 {
			badRequest(c, errors.New("message must be at most 200 characters"))
			return
		}
		updates["message"] = req.Message.Ptr()
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	r, err := s.store.UpdateReminder(ctx, userID, id, updates)
	if err != nil {
		s.storeError(c, err, "reminder", "update reminder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder updated successfully", "reminder": r})
}

func (s *Server) handleDeleteReminder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := s.store.DeleteReminder(c.Request.Context(), userID, c.Param("id")); err != nil {
		s.storeError(c, err, "reminder", "delete reminder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder deleted successfully"})
}

// handleProcessReminders 手动执行一次提醒批处理。
func (s *Server) handleProcessReminders(c *gin.Context) {
	if s.processor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminder processing unavailable"})
		return
	}
	res, err := s.processor.ProcessPending(c.Request.Context())
	if err != nil {
		s.logger.Error("process reminders failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "process reminders failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Reminders processed",
		"timestamp": s.now().Format(time.RFC3339),
		"found":     res.Found,
		"processed": res.Processed,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
	})
}
