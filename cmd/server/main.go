package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-system/config"
	"chat-system/internal/handler"
	"chat-system/internal/hub"
	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/internal/service"
	dbPkg "chat-system/pkg/db"
	"chat-system/pkg/jwt"
	"chat-system/pkg/logger"
	"chat-system/pkg/redis"
	"chat-system/pkg/response"
	"chat-system/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== 聊天系统启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("database_name", cfg.Database.Database),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.String("hub_path", cfg.WebSocket.Path),
		zap.Duration("jwt_expire_time", cfg.JWT.ExpireTime),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	if _, err := dbPkg.InitDB(cfg.Database); err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(&model.User{}, &model.Message{}, &model.MessageReaction{}); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 3.2 Redis在线状态镜像（可选，连接失败时降级为仅内存）
	var (
		mirror         hub.PresenceMirror
		presenceReader handler.PresenceReader
		presenceStore  *redis.PresenceStore
	)
	if cfg.Redis.Enabled {
		client, err := redis.InitRedis(cfg.Redis)
		if err != nil {
			log.Warn("Redis不可用，在线状态仅保存在内存中", zap.Error(err))
		} else {
			defer func() {
				if err := redis.Close(); err != nil {
					log.Error("关闭Redis连接失败", zap.Error(err))
				}
			}()
			presenceStore = redis.NewPresenceStore(client, cfg.Redis.PresenceTTL)
			mirror = presenceStore
			presenceReader = presenceStore
			log.Info("Redis连接成功")
		}
	}

	// 3.3 初始化业务服务
	db := dbPkg.GetDB()
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	userSvc := service.NewUserService(userRepo, jwtSvc)
	messageSvc := service.NewMessageService(messageRepo, cfg.Chat)
	reactionSvc := service.NewReactionService(reactionRepo, cfg.Chat)

	chatHub := hub.New(hub.Options{
		Verifier:  jwtSvc,
		Users:     userRepo,
		Messages:  messageSvc,
		Reactions: reactionSvc,
		Status:    userRepo,
		Mirror:    mirror,
		Logger:    logger.L().Named("hub"),
	})

	userHandler := handler.NewUserHandler(userSvc, userRepo, chatHub, presenceReader, logger.L())
	messageHandler := handler.NewMessageHandler(chatHub, messageRepo, reactionRepo, logger.L())
	hubHandler := websocket.NewHandler(chatHub, cfg.WebSocket, logger.L().Named("ws"))

	// 4. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. 创建Gin路由
	router := gin.New()

	// 使用中间件
	router.Use(logger.LoggerMiddleware())      // 自定义日志中间件
	router.Use(logger.ErrorLoggerMiddleware()) // 错误日志中间件

	// 6. 设置基础路由
	setupBasicRoutes(router, cfg)

	// 6.1 绑定用户路由
	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			// 公开接口（无需认证）
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的接口
			authUsers := users.Group("")
			authUsers.Use(jwtSvc.AuthMiddleware()) // 应用JWT中间件
			{
				authUsers.GET("/profile", userHandler.GetProfile)
				authUsers.GET("/online", userHandler.GetOnlineUsers)
				authUsers.GET("/:user_id/presence", userHandler.GetUserPresence)
			}
		}

		// 消息路由（需要认证）
		messages := v1.Group("/messages")
		messages.Use(jwtSvc.AuthMiddleware())
		{
			messages.POST("", messageHandler.SendMessage)           // 发送消息
			messages.GET("/:message_id", messageHandler.GetMessage) // 获取单条消息
		}
	}

	// 聊天Hub路由（只有这个路径允许通过query传递token）
	router.GET(cfg.WebSocket.Path, hubHandler.ServeHub)

	// 7. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. 启动HTTP服务器
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 8.1 定期清理Redis中已过期的在线记录
	stopCleaner := make(chan struct{})
	if presenceStore != nil {
		go runPresenceCleaner(presenceStore, cfg.Redis.PresenceTTL, stopCleaner, log)
	}

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")
	close(stopCleaner)

	// 设置关闭超时
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 关闭HTTP服务器（不再接受新连接；已升级的WebSocket连接不受影响）
	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	// 关闭所有Hub会话，逐个走下线流程
	if err := chatHub.Shutdown(ctx); err != nil {
		log.Error("关闭聊天Hub失败", zap.Error(err))
	}

	log.Info("服务器已安全关闭")
}

// runPresenceCleaner 按TTL周期清理在线集合
func runPresenceCleaner(store *redis.PresenceStore, interval time.Duration, stop <-chan struct{}, log *zap.Logger) {
	if interval <= 0 {
		interval = redis.DefaultPresenceTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			removed, err := store.CleanExpired(ctx)
			cancel()
			if err != nil {
				log.Warn("清理过期在线状态失败", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("已清理过期在线状态", zap.Int("removed", removed))
			}
		}
	}
}

// setupBasicRoutes 设置基础路由
func setupBasicRoutes(router *gin.Engine, cfg *config.Config) {
	// 健康检查
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		dbStatus := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "degraded"
			dbStatus = "down"
		}

		redisStatus := "disabled"
		if cfg.Redis.Enabled {
			redisStatus = "ok"
			if err := redis.HealthCheck(c.Request.Context()); err != nil {
				status = "degraded"
				redisStatus = "down"
			}
		}

		response.Success(c, gin.H{
			"status":  status,
			"db":      dbStatus,
			"redis":   redisStatus,
			"message": "聊天系统运行状态",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 根路径
	// 完整url为：http://localhost:8080/
	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message":  "欢迎使用聊天系统",
			"version":  "1.0.0",
			"hub_path": cfg.WebSocket.Path,
		})
	})
}
