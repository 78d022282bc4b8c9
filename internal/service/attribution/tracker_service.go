// Package attribution 归因服务
package attribution

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// TrackerService 点击追踪服务
type TrackerService struct {
	affiliateRepo *repository.AffiliateRepository
	clickRepo     *repository.ClickRepository
}

// NewTrackerService 创建点击追踪服务
func NewTrackerService(
	affiliateRepo *repository.AffiliateRepository,
	clickRepo *repository.ClickRepository,
) *TrackerService {
	return &TrackerService{
		affiliateRepo: affiliateRepo,
		clickRepo:     clickRepo,
	}
}

// RecordClick 记录一次推广链接点击
// 点击不去重：每次广告点击都产生独立记录
func (s *TrackerService) RecordClick(ctx context.Context, affiliateCode, source string) (int64, error) {
	affiliate, err := s.affiliateRepo.GetByCode(ctx, affiliateCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrUnknownAffiliateCode
		}
		return 0, apperrors.ErrDatabaseError.WithError(err)
	}
	if !affiliate.IsApproved() {
		return 0, apperrors.ErrUnknownAffiliateCode
	}

	click := &models.Click{
		AffiliateID: affiliate.ID,
		Source:      source,
	}
	if err := s.clickRepo.Create(ctx, click); err != nil {
		return 0, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Debug("记录推广点击",
		logger.AffiliateCode(affiliateCode),
		logger.Int64("click_id", click.ID))
	metrics.GetMetrics().RecordClick(source)

	return click.ID, nil
}
