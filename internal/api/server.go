package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fenger067850/todo-manager/internal/api/auth"
	"github.com/fenger067850/todo-manager/internal/api/middleware"
	"github.com/fenger067850/todo-manager/internal/api/scheduler"
	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/database"
	"github.com/fenger067850/todo-manager/internal/pkg/filestore"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/pkg/ratelimit"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// upcomingWindow 是 upcoming=true 时查询的提醒时间窗口。
const upcomingWindow = time.Hour

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、附件存储、提醒调度器以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	store     *store.Store
	files     filestore.Store
	policy    filestore.Policy
	auth      *auth.Handler
	limiter   middleware.Limiter
	sched     *scheduler.Scheduler
	processor ReminderProcessor
	now       func() time.Time
}

// ReminderProcessor 执行一次提醒批处理。
type ReminderProcessor interface {
	ProcessPending(ctx context.Context) (scheduler.Result, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时）
// 3. 初始化附件存储与提醒调度器
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	} else {
		logger.Warn("redis not configured, rate limiting and reminder dedup disabled")
	}

	files, err := filestore.Open(cfg.Storage)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	if err := registerValidators(); err != nil {
		closeDB(db)
		return nil, err
	}

	metrics.InitMetrics(cfg.App.NotifyWorkers)

	st := store.New(db)
	sched := scheduler.NewFromConfig(cfg, st, rdb, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		store:     st,
		files:     files,
		policy:    filestore.DefaultPolicy(cfg.Storage.MaxFileSize),
		auth:      auth.NewHandler(st, cfg.Security.JWTSecret, cfg.Security.TokenTTL, logger),
		limiter:   ratelimit.New(rdb, logger, cfg.App.RateLimit, cfg.App.RateBurst),
		sched:     sched,
		processor: sched,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.setupRouter(gin.ReleaseMode)

	if cfg.App.SeedDemo {
		if err := s.SeedDemoData(ctx); err != nil {
			logger.Warn("seed demo data failed", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

func (s *Server) setupRouter(mode string) {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Metrics())
	r.MaxMultipartMemory = 8 << 20
	s.router = r
	s.registerRoutes()
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartScheduler 启动提醒调度。Reminder.Enabled 为 false 时只启动通知 worker，
// 由独立 worker 进程或手动接口触发批处理。
func (s *Server) StartScheduler(ctx context.Context) {
	if s.sched == nil {
		return
	}
	if !s.cfg.Reminder.Enabled {
		s.sched.StartWorkers(ctx)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in reminder scheduler", slog.Any("panic", r))
			}
		}()
		if err := s.sched.Start(ctx); err != nil {
			s.logger.Error("reminder scheduler not started", slog.String("error", err.Error()))
		}
	}()
}

// Close 停止调度器并关闭数据库与缓存连接。
func (s *Server) Close() error {
	if s.sched != nil {
		s.sched.Stop()
	}
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/api")
	api.POST("/auth/register", middleware.RateLimit(s.limiter, "register", s.logger), s.auth.Register)
	api.POST("/auth/login", middleware.RateLimit(s.limiter, "login", s.logger), s.auth.Login)

	// 配置了 cron 密钥时由外部定时器凭密钥调用，否则要求用户登录
	processGuard := middleware.AuthMiddleware(s.cfg.Security.JWTSecret)
	if s.cfg.Security.CronSecret != "" {
		processGuard = middleware.SharedSecret(s.cfg.Security.CronSecret)
	}
	api.POST("/reminders/process", processGuard, s.handleProcessReminders)
	api.GET("/reminders/process", processGuard, s.handleProcessReminders)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.GET("/auth/me", s.auth.Me)

	authed.GET("/todos", s.handleListTodos)
	authed.POST("/todos", s.handleCreateTodo)
	authed.POST("/todos/date-range", s.handleTodosByDateRange)
	authed.GET("/todos/:id", s.handleGetTodo)
	authed.PUT("/todos/:id", s.handleUpdateTodo)
	authed.DELETE("/todos/:id", s.handleDeleteTodo)

	authed.GET("/categories", s.handleListCategories)
	authed.POST("/categories", s.handleCreateCategory)
	authed.PUT("/categories/:id", s.handleUpdateCategory)
	authed.DELETE("/categories/:id", s.handleDeleteCategory)

	authed.GET("/reminders", s.handleListReminders)
	authed.POST("/reminders", s.handleCreateReminder)
	authed.PUT("/reminders/:id", s.handleUpdateReminder)
	authed.DELETE("/reminders/:id", s.handleDeleteReminder)

	authed.GET("/attachments", s.handleListAttachments)
	authed.POST("/attachments", s.handleUploadAttachment)
	authed.GET("/attachments/:id", s.handleDownloadAttachment)
	authed.DELETE("/attachments/:id", s.handleDeleteAttachment)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		s.logger.Warn("healthz db check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "database"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("healthz redis check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
