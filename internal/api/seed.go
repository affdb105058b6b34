package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	demoEmail    = "demo@todo-manager.local"
	demoUsername = "demo"
)

// demoCategories 是演示账号的初始分类。
var demoCategories = []struct {
	name  string
	color string
	desc  string
}{
	{"Work", "#3B82F6", "Work related tasks"},
	{"Personal", "#10B981", "Personal errands"},
	{"Study", "#F59E0B", "Courses and reading"},
}

// SeedDemoData 初始化演示账号与初始分类，可重复执行。
func (s *Server) SeedDemoData(ctx context.Context) error {
	user, err := s.store.FindUserByEmail(ctx, demoEmail)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		password := s.cfg.App.DemoPassword
		if password == "" {
			password = "demo-password"
		}
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		name := "Demo User"
		user = &model.User{
			Email:    demoEmail,
			Username: demoUsername,
			Name:     &name,
			Password: string(hash),
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return err
		}
		s.logger.Info("demo user created", slog.String("email", demoEmail))
	}

	for _, dc := range demoCategories {
		taken, err := s.store.CategoryNameTaken(ctx, user.ID, dc.name, "")
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		color, desc := dc.color, dc.desc
		cat := model.Category{Name: dc.name, Color: &color, Description: &desc, UserID: user.ID}
		if err := s.store.CreateCategory(ctx, &cat); err != nil {
			return err
		}
	}
	return nil
}
