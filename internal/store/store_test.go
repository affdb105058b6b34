package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/database"
	"github.com/fenger067850/todo-manager/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db)
}

func seedUser(t *testing.T, s *Store, email, username string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Username: username, Password: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func ptr[T any](v T) *T { return &v }

func TestUserExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "a@example.com", "alice")

	ok, err := s.UserExists(ctx, "a@example.com", "other")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UserExists(ctx, "b@example.com", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UserExists(ctx, "b@example.com", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.FindUserByEmail(ctx, "missing@example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCategories_OwnershipNameAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "a@example.com", "alice")
	bob := seedUser(t, s, "b@example.com", "bob")

	work := &model.Category{Name: "Work", UserID: alice.ID, Color: ptr("#FF0000")}
	home := &model.Category{Name: "Home", UserID: alice.ID}
	require.NoError(t, s.CreateCategory(ctx, work))
	require.NoError(t, s.CreateCategory(ctx, home))

	taken, err := s.CategoryNameTaken(ctx, alice.ID, "Work", "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.CategoryNameTaken(ctx, alice.ID, "Work", work.ID)
	require.NoError(t, err)
	assert.False(t, taken, "renaming to own name is allowed")

	taken, err = s.CategoryNameTaken(ctx, bob.ID, "Work", "")
	require.NoError(t, err)
	assert.False(t, taken, "names are unique per user")

	_, err = s.FindCategory(ctx, bob.ID, work.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateTodo(ctx, &model.Todo{Title: "t", UserID: alice.ID, CategoryID: &work.ID}, nil))
	}

	cats, err := s.ListCategories(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	counts := map[string]int64{}
	for _, c := range cats {
		require.NotNil(t, c.Count)
		counts[c.Name] = c.Count.Todos
	}
	assert.Equal(t, int64(2), counts["Work"])
	assert.Equal(t, int64(0), counts["Home"])

	n, err := s.CountCategoryTodos(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.True(t, errors.Is(s.DeleteCategory(ctx, bob.ID, home.ID), ErrNotFound))
	require.NoError(t, s.DeleteCategory(ctx, alice.ID, home.ID))

	updated, err := s.UpdateCategory(ctx, alice.ID, work.ID, map[string]any{"name": "Office", "color": nil})
	require.NoError(t, err)
	assert.Equal(t, "Office", updated.Name)
	assert.Nil(t, updated.Color)
}

func TestListTodos_OrderAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	now := time.Now().UTC().Truncate(time.Second)

	create := func(title string, p model.Priority, due *time.Time, done bool) *model.Todo {
		todo := &model.Todo{Title: title, Priority: p, DueDate: due, UserID: u.ID}
		require.NoError(t, s.CreateTodo(ctx, todo, nil))
		if done {
			_, err := s.UpdateTodo(ctx, u.ID, todo.ID, map[string]any{"is_completed": true})
			require.NoError(t, err)
		}
		return todo
	}
	create("done-high", model.PriorityHigh, ptr(now.Add(time.Hour)), true)
	create("low-nodue", model.PriorityLow, nil, false)
	create("high-later", model.PriorityHigh, ptr(now.Add(48*time.Hour)), false)
	create("high-sooner", model.PriorityHigh, ptr(now.Add(24*time.Hour)), false)
	create("medium-nodue", model.PriorityMedium, nil, false)

	todos, err := s.ListTodos(ctx, u.ID, TodoFilter{})
	require.NoError(t, err)
	titles := make([]string, 0, len(todos))
	for _, td := range todos {
		titles = append(titles, td.Title)
	}
	assert.Equal(t, []string{"high-sooner", "high-later", "medium-nodue", "low-nodue", "done-high"}, titles)

	todos, err = s.ListTodos(ctx, u.ID, TodoFilter{Priority: ptr(model.PriorityHigh), IsCompleted: ptr(false)})
	require.NoError(t, err)
	assert.Len(t, todos, 2)

	todos, err = s.ListTodosByDueRange(ctx, u.ID, now, now.Add(30*time.Hour))
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "done-high", todos[0].Title, "range is ordered by due date only")
	assert.Equal(t, "high-sooner", todos[1].Title)
}

func TestCreateTodo_WithRemindersAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	other := seedUser(t, s, "b@example.com", "bob")
	due := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)

	todo := &model.Todo{Title: "report", DueDate: &due, UserID: u.ID}
	reminders := []model.Reminder{
		{RemindAt: due.Add(-time.Hour), IsActive: true},
		{RemindAt: due.Add(-24 * time.Hour), IsActive: true},
	}
	require.NoError(t, s.CreateTodo(ctx, todo, reminders))
	assert.Equal(t, model.PriorityMedium, todo.Priority)
	require.Len(t, todo.Reminders, 2)
	assert.Equal(t, todo.ID, todo.Reminders[0].TodoID)

	require.NoError(t, s.CreateAttachment(ctx, &model.Attachment{
		TodoID: todo.ID, Filename: "1_abc_a.pdf", OriginalName: "a.pdf",
		FileType: "application/pdf", FileSize: 3, FilePath: "1_abc_a.pdf",
	}))

	got, err := s.GetTodo(ctx, u.ID, todo.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reminders, 2)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "a.pdf", got.Attachments[0].OriginalName)

	_, err = s.DeleteTodo(ctx, other.ID, todo.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	removed, err := s.DeleteTodo(ctx, u.ID, todo.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "1_abc_a.pdf", removed[0].FilePath)

	list, err := s.ListReminders(ctx, u.ID, ReminderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.FindTodo(ctx, u.ID, todo.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateTodo_NilClearsColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	cat := &model.Category{Name: "Work", UserID: u.ID}
	require.NoError(t, s.CreateCategory(ctx, cat))
	due := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	todo := &model.Todo{Title: "x", DueDate: &due, CategoryID: &cat.ID, UserID: u.ID, Description: ptr("d")}
	require.NoError(t, s.CreateTodo(ctx, todo, nil))

	got, err := s.UpdateTodo(ctx, u.ID, todo.ID, map[string]any{
		"due_date":    nil,
		"category_id": nil,
		"title":       "y",
	})
	require.NoError(t, err)
	assert.Equal(t, "y", got.Title)
	assert.Nil(t, got.DueDate)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.Category)
	require.NotNil(t, got.Description)
	assert.Equal(t, "d", *got.Description)
}

func TestReminders_OwnershipAndUpcoming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	other := seedUser(t, s, "b@example.com", "bob")
	now := time.Now().UTC().Truncate(time.Second)

	todo := &model.Todo{Title: "x", UserID: u.ID}
	require.NoError(t, s.CreateTodo(ctx, todo, nil))

	soon := &model.Reminder{TodoID: todo.ID, RemindAt: now.Add(30 * time.Minute), IsActive: true}
	later := &model.Reminder{TodoID: todo.ID, RemindAt: now.Add(3 * time.Hour), IsActive: true}
	require.NoError(t, s.CreateReminder(ctx, soon))
	require.NoError(t, s.CreateReminder(ctx, later))
	require.NotNil(t, soon.Todo)

	all, err := s.ListReminders(ctx, u.ID, ReminderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, soon.ID, all[0].ID)
	require.NotNil(t, all[0].Todo)

	upcoming, err := s.ListReminders(ctx, u.ID, ReminderFilter{Upcoming: true, Now: now, Window: time.Hour})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, soon.ID, upcoming[0].ID)

	none, err := s.ListReminders(ctx, other.ID, ReminderFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.FindReminder(ctx, other.ID, soon.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeleteReminder(ctx, other.ID, soon.ID), ErrNotFound))

	updated, err := s.UpdateReminder(ctx, u.ID, later.ID, map[string]any{"is_active": false})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	inactive, err := s.ListReminders(ctx, u.ID, ReminderFilter{IsActive: ptr(false)})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, later.ID, inactive[0].ID)

	require.NoError(t, s.DeleteReminder(ctx, u.ID, soon.ID))
}

func TestPendingReminders_AndMarkProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	now := time.Now().UTC().Truncate(time.Second)

	cat := &model.Category{Name: "Work", UserID: u.ID, Color: ptr("#00FF00")}
	require.NoError(t, s.CreateCategory(ctx, cat))
	open := &model.Todo{Title: "open", UserID: u.ID, CategoryID: &cat.ID}
	done := &model.Todo{Title: "done", UserID: u.ID}
	require.NoError(t, s.CreateTodo(ctx, open, nil))
	require.NoError(t, s.CreateTodo(ctx, done, nil))
	_, err := s.UpdateTodo(ctx, u.ID, done.ID, map[string]any{"is_completed": true})
	require.NoError(t, err)

	due := &model.Reminder{TodoID: open.ID, RemindAt: now.Add(-time.Minute), Message: ptr("ping"), IsActive: true}
	future := &model.Reminder{TodoID: open.ID, RemindAt: now.Add(time.Hour), IsActive: true}
	inactive := &model.Reminder{TodoID: open.ID, RemindAt: now.Add(-2 * time.Minute), IsActive: true}
	onDone := &model.Reminder{TodoID: done.ID, RemindAt: now.Add(-time.Minute), IsActive: true}
	for _, r := range []*model.Reminder{due, future, inactive, onDone} {
		require.NoError(t, s.CreateReminder(ctx, r))
	}
	_, err = s.UpdateReminder(ctx, u.ID, inactive.ID, map[string]any{"is_active": false})
	require.NoError(t, err)

	pending, err := s.PendingReminders(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	p := pending[0]
	assert.Equal(t, due.ID, p.ID)
	assert.Equal(t, "open", p.TodoTitle)
	assert.Equal(t, "a@example.com", p.UserEmail)
	assert.Equal(t, "alice", p.UserName)
	require.NotNil(t, p.CategoryName)
	assert.Equal(t, "Work", *p.CategoryName)
	require.NotNil(t, p.Message)
	assert.Equal(t, "ping", *p.Message)

	ok, err := s.MarkReminderProcessed(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkReminderProcessed(ctx, due.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second mark is a no-op")

	pending, err = s.PendingReminders(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFindAttachment_Ownership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com", "alice")
	other := seedUser(t, s, "b@example.com", "bob")
	todo := &model.Todo{Title: "x", UserID: u.ID}
	require.NoError(t, s.CreateTodo(ctx, todo, nil))

	a := &model.Attachment{TodoID: todo.ID, Filename: "f", OriginalName: "a.txt", FileType: "text/plain", FileSize: 1, FilePath: "f"}
	require.NoError(t, s.CreateAttachment(ctx, a))

	_, err := s.FindAttachment(ctx, other.ID, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := s.FindAttachment(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.OriginalName)

	list, err := s.ListAttachments(ctx, todo.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteAttachment(ctx, a.ID))
	assert.True(t, errors.Is(s.DeleteAttachment(ctx, a.ID), ErrNotFound))
}
