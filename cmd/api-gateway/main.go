// Package main 是应用程序入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/cache"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/config"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/database"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/scheduler"
)

func main() {
	// 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()

	log.Info("Starting Affiliate Engine Backend",
		zap.String("version", buildVersion),
		zap.String("commit", buildCommit),
		zap.String("env", cfg.Server.Mode),
	)

	// 初始化数据库连接
	db, err := database.Init(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// 同步表结构
	if err := autoMigrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// 初始化 Redis 连接
	redisClient, err := cache.Init(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Redis connected successfully")

	// 初始化指标收集
	if cfg.Metrics.Enabled {
		metrics.Init("")
	}

	// 初始化事件推送（未启用时发布为 no-op）
	publisher, err := notify.NewPublisher(&cfg.MQTT)
	if err != nil {
		log.Warn("Event publisher unavailable, continuing without it", zap.Error(err))
	}
	if publisher != nil {
		defer publisher.Close()
	}

	// 装配服务
	svcs, err := buildServices(cfg, db, publisher)
	if err != nil {
		log.Fatal("Failed to build services", zap.Error(err))
	}

	// 启动后台任务：过期评估、日志清理、账本一致性检查
	taskHandler := scheduler.NewTaskHandler(db, svcs.operationLogRepo, svcs.expirationSvc, 0)
	sched := scheduler.NewScheduler()
	sweepInterval := time.Duration(cfg.Business.Affiliate.SweepInterval) * time.Minute
	scheduler.SetupTasks(sched, taskHandler, sweepInterval)
	sched.Start()
	defer sched.Stop()

	// 设置 Gin 模式
	if cfg.Server.Mode == "production" || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Server.Mode == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 设置路由
	setupRouter(engine, cfg, log, db, redisClient, svcs)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("HTTP server starting",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// 创建超时上下文用于优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 关闭数据库连接
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}

	log.Info("Server exited")
}
