// Package scheduler 提供定时任务
package scheduler

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
	commissionService "github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
)

// TaskHandler 任务处理器
type TaskHandler struct {
	db                *gorm.DB
	operationLogRepo  *repository.OperationLogRepository
	expirationService *commissionService.ExpirationService
	logRetention      time.Duration
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(
	db *gorm.DB,
	operationLogRepo *repository.OperationLogRepository,
	expirationSvc *commissionService.ExpirationService,
	logRetention time.Duration,
) *TaskHandler {
	if logRetention <= 0 {
		logRetention = 180 * 24 * time.Hour
	}
	return &TaskHandler{
		db:                db,
		operationLogRepo:  operationLogRepo,
		expirationService: expirationSvc,
		logRetention:      logRetention,
	}
}

// SweepCommissions 评估确认窗口已结束的待确认佣金
func (h *TaskHandler) SweepCommissions(ctx context.Context) error {
	confirmed, err := h.expirationService.Sweep(ctx)
	if err != nil {
		return err
	}
	if confirmed > 0 {
		logger.Info("佣金确认任务完成", logger.Int("confirmed", confirmed))
	}
	return nil
}

// PurgeOperationLogs 清理超出保留期的操作日志
func (h *TaskHandler) PurgeOperationLogs(ctx context.Context) error {
	before := time.Now().Add(-h.logRetention)

	deleted, err := h.operationLogRepo.DeleteBefore(ctx, before)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info("操作日志清理完成", logger.Int64("deleted", deleted))
	}
	return nil
}

// CheckLedgerConsistency 核对推广员账本
// total_earnings 应等于尚未完成打款的已确认佣金之和，不一致说明簿记有缺口
func (h *TaskHandler) CheckLedgerConsistency(ctx context.Context) error {
	type row struct {
		AffiliateID   int64   `gorm:"column:affiliate_id"`
		TotalEarnings float64 `gorm:"column:total_earnings"`
		ConfirmedSum  float64 `gorm:"column:confirmed_sum"`
	}

	var rows []row
	err := h.db.WithContext(ctx).Model(&models.Affiliate{}).
		Select(`affiliates.id as affiliate_id, affiliates.total_earnings,
			COALESCE((SELECT SUM(amount) FROM commissions
				WHERE commissions.affiliate_id = affiliates.id
				AND commissions.status = 'confirmed'
				AND (commissions.paid_in_withdrawal_id IS NULL
					OR commissions.paid_in_withdrawal_id NOT IN
						(SELECT id FROM withdrawal_requests WHERE status = 'paid'))), 0) as confirmed_sum`).
		Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, r := range rows {
		if r.TotalEarnings != r.ConfirmedSum {
			logger.Warn("推广员账本不一致",
				logger.AffiliateID(r.AffiliateID),
				logger.Float64("total_earnings", r.TotalEarnings),
				logger.Float64("confirmed_sum", r.ConfirmedSum))
		}
	}
	return nil
}

// SetupTasks 设置所有任务
func SetupTasks(scheduler *Scheduler, handler *TaskHandler, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	// 周期性评估佣金确认窗口
	scheduler.AddTask("SweepCommissions", sweepInterval, handler.SweepCommissions)

	// 每天清理一次过期操作日志
	scheduler.AddTask("PurgeOperationLogs", 24*time.Hour, handler.PurgeOperationLogs)

	// 每小时核对一次账本
	scheduler.AddTask("CheckLedgerConsistency", 1*time.Hour, handler.CheckLedgerConsistency)
}
