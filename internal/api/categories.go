package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/fenger067850/todo-manager/internal/model"

	"github.com/gin-gonic/gin"
)

type createCategoryRequest struct {
	Name        string  `json:"name" binding:"required,max=50"`
	Color       *string `json:"color" binding:"omitempty,hexcolor6"`
	Description *string `json:"description" binding:"omitempty,max=200"`
}

type updateCategoryRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=50"`
	Color       Nullable[string] `json:"color"`
	Description Nullable[string] `json:"description"`
}

func (s *Server) handleListCategories(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	list, err := s.store.ListCategories(c.Request.Context(), userID)
	if err != nil {
		s.storeError(c, err, "category", "list categories")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": list})
}

// handleCreateCategory 创建分类，同一用户下名称重复返回 400。
func (s *Server) handleCreateCategory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		badRequest(c, errors.New("name is required"))
		return
	}
	ctx := c.Request.Context()

	taken, err := s.store.CategoryNameTaken(ctx, userID, name, "")
	if err != nil {
		s.storeError(c, err, "category", "check category")
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category name already exists"})
		return
	}

	cat := model.Category{
		Name:        name,
		Color:       req.Color,
		Description: req.Description,
		UserID:      userID,
	}
	if err := s.store.CreateCategory(ctx, &cat); err != nil {
		s.storeError(c, err, "category", "create category")
		return
	}
	cat.Count = &model.CategoryCount{}
	c.JSON(http.StatusOK, gin.H{"message": "Category created successfully", "category": cat})
}

func (s *Server) handleUpdateCategory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	existing, err := s.store.FindCategory(ctx, userID, id)
	if err != nil {
		s.storeError(c, err, "category", "find category")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			badRequest(c, errors.New("name must not be empty"))
			return
		}
		if name != existing.Name {
			taken, err := s.store.CategoryNameTaken(ctx, userID, name, id)
			if err != nil {
				s.storeError(c, err, "category", "check category")
				return
			}
			if taken {
				c.JSON(http.StatusBadRequest, gin.H{"error": "category name already exists"})
				return
			}
		}
		updates["name"] = name
	}
	if req.Color.Set {
		if req.Color.Valid && !hexColorPattern.MatchString(req.Color.Value) {
			badRequest(c, fmt.Errorf("invalid color %q", req.Color.Value))
			return
		}
		updates["color"] = req.Color.Ptr()
	}
	if req.Description.Set {
		if req.Description.Valid && utf8.RuneCountInString(req.Description.Value) > 200 {
			badRequest(c, errors.New("description must be at most 200 characters"))
			return
		}
		updates["description"] = req.Description.Ptr()
	}

	cat, err := s.store.UpdateCategory(ctx, userID, id, updates)
	if err != nil {
		s.storeError(c, err, "category", "update category")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category updated successfully", "category": cat})
}

// handleDeleteCategory 删除分类，仍被待办引用时返回 400 与引用数。
func (s *Server) handleDeleteCategory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.store.FindCategory(ctx, userID, id); err != nil {
		s.storeError(c, err, "category", "find category")
		return
	}
	count, err := s.store.CountCategoryTodos(ctx, id)
	if err != nil {
		s.storeError(c, err, "category", "count todos")
		return
	}
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "cannot delete category with associated todos",
			"todoCount": count,
		})
		return
	}
	if err := s.store.DeleteCategory(ctx, userID, id); err != nil {
		s.storeError(c, err, "category", "delete category")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}
