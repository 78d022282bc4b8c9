// Package main 是应用程序入口
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 构建时通过 -ldflags 注入
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

// healthHandler 健康检查（简单版）
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "affiliate-engine-backend",
		"version":   buildVersion,
		"commit":    buildCommit,
		"timestamp": time.Now().Unix(),
	})
}

// pingHandler Ping 检查
func pingHandler(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// checkDatabase 检查数据库连通性
func checkDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// checkRedis 检查 Redis 连通性
func checkRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// readyHandler 就绪检查（检查依赖服务）
// 数据库或 Redis 任一不可用时摘除流量，避免点击丢失
func readyHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]interface{})
		allHealthy := true

		dbStatus := "ok"
		if err := checkDatabase(ctx, db); err != nil {
			dbStatus = "error: " + err.Error()
			allHealthy = false
		}
		checks["database"] = dbStatus

		redisStatus := "ok"
		if err := checkRedis(ctx, redisClient); err != nil {
			redisStatus = "error: " + err.Error()
			allHealthy = false
		}
		checks["redis"] = redisStatus

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		c.JSON(status, gin.H{
			"status":    statusText,
			"timestamp": time.Now().Unix(),
			"checks":    checks,
		})
	}
}
