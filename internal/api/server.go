package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/HemantRana01/TODO/internal/api/auth"
	"github.com/HemantRana01/TODO/internal/api/middleware"
	"github.com/HemantRana01/TODO/internal/config"
	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/metrics"
	"github.com/HemantRana01/TODO/internal/pkg/statscache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	auth       *auth.Handler
	todoStore  TodoStore
	userStore  UserStore
	statsCache StatsCache
}

// StatsCache 用户统计缓存接口。
type StatsCache interface {
	Get(ctx context.Context, userID uint) (*statscache.Stats, error)
	Set(ctx context.Context, userID uint, stats statscache.Stats) error
	Invalidate(ctx context.Context, userID uint) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Todo{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RequestMetrics())

	userStore := NewUserStore(db)
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		router:     r,
		auth:       auth.NewHandler(db, cfg.Security.JWTSecret, cfg.Security.TokenExpiry, logger),
		todoStore:  NewTodoStore(db),
		userStore:  userStore,
		statsCache: statscache.NewCache(rdb, cfg.App.StatsCacheTTL),
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
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
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	authGroup := s.router.Group("/auth")
	authGroup.POST("/register", s.auth.Register)
	authGroup.POST("/login", s.auth.Login)

	gate := middleware.AuthMiddleware(s.cfg.Security.JWTSecret, s.userStore)

	todos := s.router.Group("/todos")
	todos.Use(gate)
	todos.POST("", s.handleCreateTodo)
	todos.GET("", s.handleListTodos)
	todos.GET("/all", s.handleListAllTodos)
	todos.GET("/status/:status", s.handleListTodosByStatus)
	todos.GET("/overdue", s.handleListOverdueTodos)
	todos.GET("/:id", s.handleGetTodo)
	todos.PATCH("/:id", s.handleUpdateTodo)
	todos.PATCH("/:id/toggle", s.handleToggleTodoStatus)
	todos.DELETE("/:id", s.handleDeleteTodo)

	users := s.router.Group("/users")
	users.Use(gate)
	users.GET("/profile", s.handleGetProfile)
	users.PATCH("/profile", s.handleUpdateProfile)
	users.GET("/stats", s.handleUserStats)
	users.POST("/change-password", s.handleChangePassword)
	users.POST("/deactivate", s.handleDeactivate)
	users.POST("/activate", s.handleActivate)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func getUserID(c *gin.Context) uint {
	return c.GetUint("userID")
}

// startOfToday 返回进程本地时区的当天零点，作为逾期判断的边界。
func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
