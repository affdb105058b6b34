package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenger067850/todo-manager/internal/api/auth"
	"github.com/fenger067850/todo-manager/internal/api/scheduler"
	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/database"
	"github.com/fenger067850/todo-manager/internal/pkg/filestore"
	"github.com/fenger067850/todo-manager/internal/pkg/logger"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

type fakeProcessor struct {
	result scheduler.Result
	err    error
	calls  int
}

func (f *fakeProcessor) ProcessPending(ctx context.Context) (scheduler.Result, error) {
	f.calls++
	return f.result, f.err
}

type testEnv struct {
	srv       *Server
	store     *store.Store
	files     *filestore.LocalStore
	dir       string
	processor *fakeProcessor
}

// newTestEnv 基于内存 sqlite 与临时目录构建完整路由。
func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics(1)
	require.NoError(t, registerValidators())

	cfg := &config.Config{
		Security: config.SecurityConfig{JWTSecret: testJWTSecret, TokenTTL: time.Hour},
		Reminder: config.ReminderConfig{AutoCreate: true},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { closeDB(db) })

	dir := t.TempDir()
	files, err := filestore.NewLocalStore(dir)
	require.NoError(t, err)

	lg := logger.Discard()
	st := store.New(db)
	proc := &fakeProcessor{}
	s := &Server{
		cfg:       cfg,
		logger:    lg,
		db:        db,
		store:     st,
		files:     files,
		policy:    filestore.DefaultPolicy(cfg.Storage.MaxFileSize),
		auth:      auth.NewHandler(st, cfg.Security.JWTSecret, cfg.Security.TokenTTL, lg),
		processor: proc,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.setupRouter(gin.TestMode)

	return &testEnv{srv: s, store: st, files: files, dir: dir, processor: proc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

// register 注册用户并返回令牌与用户 ID。
func (e *testEnv) register(t *testing.T, username string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    username + "@example.com",
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type todoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
	IsCompleted bool    `json:"isCompleted"`
	Priority    string  `json:"priority"`
	Quadrant    *string `json:"quadrant"`
	CategoryID  *string `json:"categoryId"`
	Category    *struct {
		Name string `json:"name"`
	} `json:"category"`
	Reminders []struct {
		ID       string `json:"id"`
		RemindAt string `json:"remindAt"`
		IsActive bool   `json:"isActive"`
	} `json:"reminders"`
	Attachments []struct {
		ID string `json:"id"`
	} `json:"attachments"`
}

func (e *testEnv) createTodo(t *testing.T, token string, body map[string]any) todoJSON {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/todos", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		Todo todoJSON `json:"todo"`
	}](t, w).Todo
}

func (e *testEnv) createCategory(t *testing.T, token, name string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/categories", token, map[string]any{"name": name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		Category struct {
			ID string `json:"id"`
		} `json:"category"`
	}](t, w).Category.ID
}
