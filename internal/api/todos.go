package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/filestore"
	"github.com/fenger067850/todo-manager/internal/reminder"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/gin-gonic/gin"
)

type createTodoRequest struct {
	Title       string    `json:"title" binding:"required,max=100"`
	Description *string   `json:"description"`
	DueDate     *FlexTime `json:"dueDate"`
	Priority    *string   `json:"priority" binding:"omitempty,priority"`
	Quadrant    *string   `json:"quadrant" binding:"omitempty,quadrant"`
	CategoryID  *string   `json:"categoryId"`
}

// updateTodoRequest 中可空字段使用 Nullable：缺省不修改，null 置空。
type updateTodoRequest struct {
	Title       *string            `json:"title" binding:"omitempty,max=100"`
	Description Nullable[string]   `json:"description"`
	DueDate     Nullable[FlexTime] `json:"dueDate"`
	IsCompleted *bool              `json:"isCompleted"`
	Priority    *string            `json:"priority" binding:"omitempty,priority"`
	Quadrant    Nullable[string]   `json:"quadrant"`
	CategoryID  Nullable[string]   `json:"categoryId"`
}

type dateRangeRequest struct {
	StartDate *FlexTime `json:"startDate" binding:"required"`
	EndDate   *FlexTime `json:"endDate" binding:"required"`
}

// handleListTodos 返回当前用户的待办列表，支持 quadrant / priority / isCompleted / categoryId 过滤。
func (s *Server) handleListTodos(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	filter, err := parseTodoFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	todos, err := s.store.ListTodos(c.Request.Context(), userID, filter)
	if err != nil {
		s.storeError(c, err, "todo", "list todos")
		return
	}
	for i := range todos {
		todos[i].FillEmpty()
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

func parseTodoFilter(c *gin.Context) (store.TodoFilter, error) {
	var f store.TodoFilter
	if raw := strings.TrimSpace(c.Query("quadrant")); raw != "" {
		q := model.Quadrant(raw)
		if !q.Valid() {
			return f, fmt.Errorf("invalid quadrant %q", raw)
		}
		f.Quadrant = &q
	}
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		p := model.Priority(raw)
		if !p.Valid() {
			return f, fmt.Errorf("invalid priority %q", raw)
		}
		f.Priority = &p
	}
	if raw := strings.TrimSpace(c.Query("isCompleted")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid isCompleted %q", raw)
		}
		f.IsCompleted = &v
	}
	if raw := strings.TrimSpace(c.Query("categoryId")); raw != "" {
		f.CategoryID = &raw
	}
	return f, nil
}

func (s *Server) handleGetTodo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	todo, err := s.store.GetTodo(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.storeError(c, err, "todo", "get todo")
		return
	}
	todo.FillEmpty()
	c.JSON(http.StatusOK, gin.H{"todo": todo})
}

// handleCreateTodo 创建待办。截止时间在未来且开启自动提醒时，同一事务内生成默认提醒。
func (s *Server) handleCreateTodo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		badRequest(c, errors.New("title is required"))
		return
	}
	ctx := c.Request.Context()

	categoryID := trimmedOrNil(req.CategoryID)
	if categoryID != nil {
		if _, err := s.store.FindCategory(ctx, userID, *categoryID); err != nil {
			s.storeError(c, err, "category", "find category")
			return
		}
	}

	todo := model.Todo{
		Title:       title,
		Description: req.Description,
		Priority:    model.PriorityMedium,
		UserID:      userID,
		CategoryID:  categoryID,
	}
	if req.Priority != nil {
		todo.Priority = model.Priority(*req.Priority)
	}
	if req.Quadrant != nil {
		q := model.Quadrant(*req.Quadrant)
		todo.Quadrant = &q
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		todo.DueDate = &due
	}

	var reminders []model.Reminder
	if s.cfg.Reminder.AutoCreate {
		reminders = reminder.DefaultReminders("", todo.DueDate, s.now())
	}

	if err := s.store.CreateTodo(ctx, &todo, reminders); err != nil {
		s.storeError(c, err, "todo", "create todo")
		return
	}

	created, err := s.store.GetTodo(ctx, userID, todo.ID)
	if err != nil {
		s.storeError(c, err, "todo", "load todo")
		return
	}
	created.FillEmpty()
	s.logger.Info("todo created",
		slog.String("user_id", userID),
		slog.String("todo_id", created.ID),
		slog.Int("reminders", len(reminders)),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Todo created successfully", "todo": created})
}

// handleUpdateTodo 部分更新待办：缺省字段不变，可空字段传 null 置空。
func (s *Server) handleUpdateTodo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.store.FindTodo(ctx, userID, id); err != nil {
		s.storeError(c, err, "todo", "find todo")
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			badRequest(c, errors.New("title must not be empty"))
			return
		}
		updates["title"] = title
	}
	if req.Description.Set {
		updates["description"] = req.Description.Ptr()
	}
	if req.DueDate.Set {
		if req.DueDate.Valid {
			updates["due_date"] = req.DueDate.Value.UTC()
		} else {
			updates["due_date"] = nil
		}
	}
	if req.IsCompleted != nil {
		updates["is_completed"] = *req.IsCompleted
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.Quadrant.Set {
		if req.Quadrant.Valid {
			if !model.Quadrant(req.Quadrant.Value).Valid() {
				badRequest(c, fmt.Errorf("invalid quadrant %q", req.Quadrant.Value))
				return
			}
			updates["quadrant"] = req.Quadrant.Value
		} else {
			updates["quadrant"] = nil
		}
	}
	if req.CategoryID.Set {
		categoryID := trimmedOrNil(req.CategoryID.Ptr())
		if categoryID != nil {
			if _, err := s.store.FindCategory(ctx, userID, *categoryID); err != nil {
				s.storeError(c, err, "category", "find category")
				return
			}
			updates["category_id"] = *categoryID
		} else {
			updates["category_id"] = nil
		}
	}

	todo, err := s.store.UpdateTodo(ctx, userID, id, updates)
	if err != nil {
		s.storeError(c, err, "todo", "update todo")
		return
	}
	todo.FillEmpty()
	c.JSON(http.StatusOK, gin.H{"message": "Todo updated successfully", "todo": todo})
}

// handleDeleteTodo 删除待办及其提醒与附件，附件文件删除失败只记录日志。
func (s *Server) handleDeleteTodo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	removed, err := s.store.DeleteTodo(ctx, userID, id)
	if err != nil {
		s.storeError(c, err, "todo", "delete todo")
		return
	}
	for _, a := range removed {
		s.removeStoredFile(c, a)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Todo deleted successfully"})
}

// handleTodosByDateRange 返回截止时间落在 [startDate, endDate] 内的待办。
func (s *Server) handleTodosByDateRange(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, end := req.StartDate.UTC(), req.EndDate.UTC()
	if start.After(end) {
		badRequest(c, errors.New("startDate must not be after endDate"))
		return
	}

	todos, err := s.store.ListTodosByDueRange(c.Request.Context(), userID, start, end)
	if err != nil {
		s.storeError(c, err, "todo", "list todos")
		return
	}
	for i := range todos {
		todos[i].FillEmpty()
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

func (s *Server) removeStoredFile(c *gin.Context, a model.Attachment) {
	name := a.FilePath
	if name == "" {
		name = a.Filename
	}
	if err := s.files.Delete(c.Request.Context(), name); err != nil && !errors.Is(err, filestore.ErrNotExist) {
		s.logger.Warn("remove attachment file failed",
			slog.String("attachment_id", a.ID),
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
