// Package main 是应用程序入口
package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/config"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/crypto"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/jwt"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	commonMiddleware "github.com/dumeirei/affiliate-engine-backend/internal/common/middleware"
	adminHandler "github.com/dumeirei/affiliate-engine-backend/internal/handler/admin"
	portalHandler "github.com/dumeirei/affiliate-engine-backend/internal/handler/portal"
	trackingHandler "github.com/dumeirei/affiliate-engine-backend/internal/handler/tracking"
	"github.com/dumeirei/affiliate-engine-backend/internal/middleware"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
	adminService "github.com/dumeirei/affiliate-engine-backend/internal/service/admin"
	affiliateService "github.com/dumeirei/affiliate-engine-backend/internal/service/affiliate"
	attributionService "github.com/dumeirei/affiliate-engine-backend/internal/service/attribution"
	commissionService "github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
	settlementService "github.com/dumeirei/affiliate-engine-backend/internal/service/settlement"
)

// appServices 路由层用到的服务集合
// 定时任务也依赖其中一部分，装配一次在 main 和 router 之间共享
type appServices struct {
	jwtManager *jwt.Manager

	affiliateSvc  *affiliateService.AffiliateService
	inviteSvc     *affiliateService.InviteService
	trackerSvc    *attributionService.TrackerService
	linkerSvc     *attributionService.LinkerService
	commissionSvc *commissionService.CommissionService
	expirationSvc *commissionService.ExpirationService
	withdrawSvc   *settlementService.WithdrawService
	adminAuthSvc  *adminService.AdminAuthService

	operationLogRepo *repository.OperationLogRepository
}

// buildServices 装配仓储与服务
func buildServices(
	cfg *config.Config,
	db *gorm.DB,
	publisher *notify.Publisher,
) (*appServices, error) {
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	// 仓储
	affiliateRepo := repository.NewAffiliateRepository(db)
	clickRepo := repository.NewClickRepository(db)
	conversionRepo := repository.NewConversionRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	operationLogRepo := repository.NewOperationLogRepository(db)

	// 收款信息加密
	var aes *crypto.AES
	if cfg.Crypto.AESKey != "" {
		var err error
		aes, err = crypto.NewAES(cfg.Crypto.AESKey)
		if err != nil {
			return nil, err
		}
	}

	affiliateCfg := &cfg.Business.Affiliate
	window := affiliateCfg.EligibilityWindow()

	// 服务
	affiliateSvc := affiliateService.NewAffiliateService(
		affiliateRepo, clickRepo, conversionRepo, commissionRepo,
		publisher, affiliateCfg.CodeLength, window,
	)
	inviteSvc := affiliateService.NewInviteService(affiliateRepo, cfg.Server.BaseURL)
	trackerSvc := attributionService.NewTrackerService(affiliateRepo, clickRepo)
	linkerSvc := attributionService.NewLinkerService(
		affiliateRepo, clickRepo, conversionRepo, db, publisher,
		affiliateCfg.ClickRetention(),
	)
	commissionSvc := commissionService.NewCommissionService(
		affiliateRepo, conversionRepo, commissionRepo, db, publisher, window,
	)
	expirationSvc := commissionService.NewExpirationService(commissionRepo, db, publisher, window)
	withdrawSvc := settlementService.NewWithdrawService(
		withdrawalRepo, commissionRepo, affiliateRepo, db, publisher, aes,
	)
	if affiliateCfg.MinWithdrawalAmount > 0 {
		withdrawSvc.SetMinWithdrawal(affiliateCfg.MinWithdrawalAmount)
	}
	adminAuthSvc := adminService.NewAdminAuthService(adminRepo, jwtManager)

	return &appServices{
		jwtManager:       jwtManager,
		affiliateSvc:     affiliateSvc,
		inviteSvc:        inviteSvc,
		trackerSvc:       trackerSvc,
		linkerSvc:        linkerSvc,
		commissionSvc:    commissionSvc,
		expirationSvc:    expirationSvc,
		withdrawSvc:      withdrawSvc,
		adminAuthSvc:     adminAuthSvc,
		operationLogRepo: operationLogRepo,
	}, nil
}

// setupRouter 设置路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
	svcs *appServices,
) {
	// 处理器
	trackingH := trackingHandler.NewTrackingHandler(svcs.trackerSvc, svcs.linkerSvc, svcs.commissionSvc)
	portalH := portalHandler.NewPortalHandler(svcs.affiliateSvc, svcs.inviteSvc, svcs.commissionSvc, svcs.withdrawSvc)
	adminAuthH := adminHandler.NewAuthHandler(svcs.adminAuthSvc)
	affiliateH := adminHandler.NewAffiliateHandler(svcs.affiliateSvc)
	commissionH := adminHandler.NewCommissionHandler(svcs.commissionSvc, svcs.expirationSvc)
	withdrawalH := adminHandler.NewWithdrawalHandler(svcs.withdrawSvc)
	systemH := adminHandler.NewSystemHandler(svcs.operationLogRepo)

	operationLogger := commonMiddleware.NewOperationLogger(svcs.operationLogRepo)

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RealIP())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.RequestSizeLimiter(1 << 20))
	r.Use(middleware.CORS(nil))
	r.Use(middleware.AccessLog(logger))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GetMetrics().Middleware())
	}
	if cfg.Tracing.Enabled {
		r.Use(commonMiddleware.Tracing(&commonMiddleware.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/ping", "/ready", "/metrics"},
		}))
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	// Prometheus 指标
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 追踪接口（公开，按 IP+推广码限流，禁止中间层缓存）
		public := v1.Group("")
		public.Use(middleware.NoCache())
		if cfg.RateLimit.Enabled {
			public.Use(middleware.TrackingRateLimit(redisClient, cfg.RateLimit.RequestsPerSecond, time.Second))
		}
		trackingH.RegisterRoutes(public)

		// 推广员门户（需要用户认证）
		portal := v1.Group("")
		portal.Use(middleware.UserAuth(svcs.jwtManager))
		portalH.RegisterRoutes(portal)
	}

	// 管理后台 API
	admin := r.Group("/api/admin")
	{
		// 管理员登录（公开）
		adminAuthH.RegisterRoutes(admin)

		// 需要管理员认证
		adminAuth := admin.Group("")
		adminAuth.Use(middleware.AdminAuth(svcs.jwtManager))
		adminAuth.Use(operationLogger.Log())
		{
			adminAuthH.RegisterProtectedRoutes(adminAuth)

			// 推广员与佣金：运营角色
			operator := adminAuth.Group("")
			operator.Use(middleware.RequireOperator())
			{
				affiliateH.RegisterRoutes(operator)
				commissionH.RegisterRoutes(operator)
			}

			// 提现审核：财务角色
			finance := adminAuth.Group("")
			finance.Use(middleware.RequireFinance())
			{
				withdrawalH.RegisterRoutes(finance)
			}

			// 操作日志：仅超级管理员
			super := adminAuth.Group("")
			super.Use(middleware.RequireSuperAdmin())
			{
				systemH.RegisterRoutes(super)
			}
		}
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    404,
			"message": "接口不存在",
		})
	})
}

// autoMigrate 同步数据库表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Affiliate{},
		&models.Click{},
		&models.Conversion{},
		&models.Commission{},
		&models.WithdrawalRequest{},
		&models.Admin{},
		&models.OperationLog{},
	)
}
