package commission

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/cache"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// 单轮评估的批量上限
const sweepBatchSize = 500

// ExpirationService 佣金确认窗口评估服务
// 周期性地把窗口已结束的待确认佣金推进到终态；
// 评估是幂等的：对已到终态的记录重复执行为 no-op
type ExpirationService struct {
	commissionRepo *repository.CommissionRepository
	db             *gorm.DB
	publisher      *notify.Publisher
	window         time.Duration
}

// NewExpirationService 创建评估服务
func NewExpirationService(
	commissionRepo *repository.CommissionRepository,
	db *gorm.DB,
	publisher *notify.Publisher,
	window time.Duration,
) *ExpirationService {
	return &ExpirationService{
		commissionRepo: commissionRepo,
		db:             db,
		publisher:      publisher,
		window:         window,
	}
}

// Sweep 执行一轮评估
// 佣金记录的存在本身就证明合格事件已发生，
// 因此窗口结束后统一推进 waiting → confirmed，同时累计推广员待提余额
func (s *ExpirationService) Sweep(ctx context.Context) (int, error) {
	// 多实例部署时同一时刻只允许一轮评估
	locked, err := cache.TryLock(ctx, cache.KeyPrefixSweepLock, time.Minute)
	if err != nil {
		logger.Warn("获取评估锁失败", logger.Err(err))
	} else if !locked {
		return 0, nil
	} else {
		defer cache.Unlock(ctx, cache.KeyPrefixSweepLock)
	}

	start := time.Now()
	deadline := time.Now().Add(-s.window)

	confirmed := 0
	for {
		due, err := s.commissionRepo.ListWaitingDue(ctx, deadline, sweepBatchSize)
		if err != nil {
			return confirmed, err
		}
		if len(due) == 0 {
			break
		}

		for _, c := range due {
			if err := s.confirm(ctx, c); err != nil {
				logger.Error("佣金确认失败", logger.CommissionID(c.ID), logger.Err(err))
				continue
			}
			confirmed++
		}

		if len(due) < sweepBatchSize {
			break
		}
	}

	if confirmed > 0 {
		logger.Info("佣金确认评估完成",
			logger.Int("confirmed", confirmed),
			logger.Duration("elapsed", time.Since(start)))
	}

	pending, err := s.commissionRepo.CountByStatus(ctx, models.CommissionStatusWaiting)
	if err == nil {
		metrics.GetMetrics().SetPendingCommissions(float64(pending))
	}
	metrics.GetMetrics().ObserveSweepDuration(time.Since(start))

	return confirmed, nil
}

// confirm 把单条佣金推进到 confirmed 并累计收益
// 条件更新保证状态单向：已到终态的记录不会被二次推进
func (s *ExpirationService) confirm(ctx context.Context, c *models.Commission) error {
	now := time.Now()
	var advanced bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", c.ID, models.CommissionStatusWaiting).
			Updates(map[string]interface{}{
				"status":       models.CommissionStatusConfirmed,
				"confirmed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 已被其它实例推进
			return nil
		}
		advanced = true

		return tx.Model(&models.Affiliate{}).
			Where("id = ?", c.AffiliateID).
			Update("total_earnings", gorm.Expr("total_earnings + ?", c.Amount)).Error
	})
	if err != nil {
		return err
	}

	if advanced {
		metrics.GetMetrics().RecordCommission(c.Type, models.CommissionStatusConfirmed, c.Amount)
		s.publisher.Publish(notify.TopicCommissionSettled, c.AffiliateID, map[string]interface{}{
			"commission_id": c.ID,
			"amount":        c.Amount,
			"status":        models.CommissionStatusConfirmed,
		})
	}
	return nil
}
