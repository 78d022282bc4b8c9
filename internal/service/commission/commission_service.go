// Package commission 佣金服务
package commission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/utils"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// CommissionService 佣金计算服务
type CommissionService struct {
	affiliateRepo  *repository.AffiliateRepository
	conversionRepo *repository.ConversionRepository
	commissionRepo *repository.CommissionRepository
	db             *gorm.DB
	publisher      *notify.Publisher
	window         time.Duration // 佣金确认窗口
}

// NewCommissionService 创建佣金计算服务
func NewCommissionService(
	affiliateRepo *repository.AffiliateRepository,
	conversionRepo *repository.ConversionRepository,
	commissionRepo *repository.CommissionRepository,
	db *gorm.DB,
	publisher *notify.Publisher,
	window time.Duration,
) *CommissionService {
	return &CommissionService{
		affiliateRepo:  affiliateRepo,
		conversionRepo: conversionRepo,
		commissionRepo: commissionRepo,
		db:             db,
		publisher:      publisher,
		window:         window,
	}
}

// ComputeCommission 为一次合格事件计算并落库佣金
// 比例解析：自定义比例 > 等级默认比例；amount = round(basePrice × rate / 100, 2)
// 幂等：同一 (eventType, referenceID) 重复调用返回已有记录，不重复计佣
func (s *CommissionService) ComputeCommission(ctx context.Context, affiliateID, userID int64, eventType, referenceID string, basePrice float64) (*models.Commission, error) {
	if basePrice <= 0 {
		return nil, apperrors.ErrInvalidBasePrice
	}

	// 重复的合格事件：返回已有记录
	existing, err := s.commissionRepo.GetByTypeAndReference(ctx, eventType, referenceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	// 未归因用户不产生佣金
	conversion, err := s.conversionRepo.GetByAffiliateAndUser(ctx, affiliateID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoAttribution
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	rate := affiliate.ResolvedRate()
	amount := utils.CommissionAmount(basePrice, rate)

	// 合格事件发生在确认窗口之后：记录为已失效，仅留审计，不再计入收益
	status := models.CommissionStatusWaiting
	if s.window > 0 && time.Since(conversion.CreatedAt) > s.window {
		status = models.CommissionStatusExpired
	}

	commission := &models.Commission{
		AffiliateID: affiliateID,
		UserID:      userID,
		Type:        eventType,
		ReferenceID: referenceID,
		BasePrice:   basePrice,
		Rate:        rate,
		Amount:      amount,
		Status:      status,
	}

	if err := s.commissionRepo.Create(ctx, commission); err != nil {
		// 唯一索引兜底：并发写入时改查已有记录
		if existing, getErr := s.commissionRepo.GetByTypeAndReference(ctx, eventType, referenceID); getErr == nil {
			return existing, nil
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("佣金已创建",
		logger.AffiliateID(affiliateID),
		logger.UserID(userID),
		logger.CommissionID(commission.ID),
		logger.Amount(amount),
		logger.Status(status))
	metrics.GetMetrics().RecordCommission(eventType, status, amount)
	s.publisher.Publish(notify.TopicCommissionCreated, affiliateID, commission)

	return commission, nil
}

// ComputeForUser 按用户归因关系计算佣金
// 事件上报方只知道用户，归因到哪个推广员由转化记录决定
func (s *CommissionService) ComputeForUser(ctx context.Context, userID int64, eventType, referenceID string, basePrice float64) (*models.Commission, error) {
	conversion, err := s.conversionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoAttribution
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return s.ComputeCommission(ctx, conversion.AffiliateID, userID, eventType, referenceID, basePrice)
}

// GetByID 获取佣金详情
func (s *CommissionService) GetByID(ctx context.Context, id int64) (*models.Commission, error) {
	commission, err := s.commissionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCommissionNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return commission, nil
}

// ListByAffiliate 获取推广员的佣金记录
func (s *CommissionService) ListByAffiliate(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.Commission, int64, error) {
	return s.commissionRepo.GetByAffiliateID(ctx, affiliateID, offset, limit)
}

// List 获取佣金记录列表
func (s *CommissionService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Commission, int64, error) {
	return s.commissionRepo.List(ctx, offset, limit, filters)
}

// GetStats 获取推广员佣金统计
func (s *CommissionService) GetStats(ctx context.Context, affiliateID int64) (map[string]interface{}, error) {
	return s.commissionRepo.GetStatsByAffiliateID(ctx, affiliateID)
}
