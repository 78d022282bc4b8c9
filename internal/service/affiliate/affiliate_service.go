// Package affiliate 推广员服务
package affiliate

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/utils"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// 推广码生成的最大重试次数
const maxCodeRetries = 5

// AffiliateService 推广员服务
type AffiliateService struct {
	affiliateRepo  *repository.AffiliateRepository
	clickRepo      *repository.ClickRepository
	conversionRepo *repository.ConversionRepository
	commissionRepo *repository.CommissionRepository
	publisher      *notify.Publisher
	codeLength     int
	window         time.Duration
}

// NewAffiliateService 创建推广员服务
func NewAffiliateService(
	affiliateRepo *repository.AffiliateRepository,
	clickRepo *repository.ClickRepository,
	conversionRepo *repository.ConversionRepository,
	commissionRepo *repository.CommissionRepository,
	publisher *notify.Publisher,
	codeLength int,
	window time.Duration,
) *AffiliateService {
	if codeLength <= 0 {
		codeLength = 8
	}
	return &AffiliateService{
		affiliateRepo:  affiliateRepo,
		clickRepo:      clickRepo,
		conversionRepo: conversionRepo,
		commissionRepo: commissionRepo,
		publisher:      publisher,
		codeLength:     codeLength,
		window:         window,
	}
}

// Apply 申请成为推广员
// 推广码在申请时签发，审核通过后方可生效
func (s *AffiliateService) Apply(ctx context.Context, userID int64, name string) (*models.Affiliate, error) {
	_, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err == nil {
		return nil, apperrors.ErrAffiliateExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	affiliate := &models.Affiliate{
		UserID: userID,
		Code:   code,
		Name:   name,
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusPending,
	}
	if err := s.affiliateRepo.Create(ctx, affiliate); err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("推广员申请已提交", logger.UserID(userID), logger.AffiliateCode(code))
	return affiliate, nil
}

// generateUniqueCode 生成未被占用的推广码
func (s *AffiliateService) generateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeRetries; i++ {
		code := utils.GenerateAffiliateCode(s.codeLength)
		exists, err := s.affiliateRepo.ExistsCode(ctx, code)
		if err != nil {
			return "", apperrors.ErrDatabaseError.WithError(err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", apperrors.ErrOperationFailed.WithMessage("推广码生成失败，请重试")
}

// Approve 审核通过
func (s *AffiliateService) Approve(ctx context.Context, affiliateID int64) error {
	return s.transition(ctx, affiliateID, models.AffiliateStatusPending, models.AffiliateStatusApproved)
}

// Reject 审核拒绝
func (s *AffiliateService) Reject(ctx context.Context, affiliateID int64) error {
	return s.transition(ctx, affiliateID, models.AffiliateStatusPending, models.AffiliateStatusRejected)
}

// Suspend 冻结推广员
// 冻结后推广码立即失效，不再接受点击与归因
func (s *AffiliateService) Suspend(ctx context.Context, affiliateID int64) error {
	return s.transition(ctx, affiliateID, models.AffiliateStatusApproved, models.AffiliateStatusSuspended)
}

// Reinstate 解除冻结
func (s *AffiliateService) Reinstate(ctx context.Context, affiliateID int64) error {
	return s.transition(ctx, affiliateID, models.AffiliateStatusSuspended, models.AffiliateStatusApproved)
}

func (s *AffiliateService) transition(ctx context.Context, affiliateID int64, from, to string) error {
	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrAffiliateNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	ok, err := s.affiliateRepo.UpdateStatus(ctx, affiliateID, from, to)
	if err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	if !ok {
		return apperrors.ErrAffiliateStatusError
	}

	logger.Info("推广员状态流转",
		logger.AffiliateID(affiliateID),
		logger.String("from", affiliate.Status),
		logger.String("to", to))
	s.publisher.Publish(notify.TopicAffiliateChanged, affiliateID, map[string]interface{}{
		"affiliate_id": affiliateID,
		"status":       to,
	})
	return nil
}

// SetLevel 调整推广员等级
func (s *AffiliateService) SetLevel(ctx context.Context, affiliateID int64, level string) error {
	if level != models.AffiliateLevelBronze &&
		level != models.AffiliateLevelSilver &&
		level != models.AffiliateLevelGold {
		return apperrors.ErrInvalidParams
	}
	if err := s.mustExist(ctx, affiliateID); err != nil {
		return err
	}
	if err := s.affiliateRepo.UpdateLevel(ctx, affiliateID, level); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// SetCustomRate 设置自定义佣金比例，nil 表示回落到等级默认
func (s *AffiliateService) SetCustomRate(ctx context.Context, affiliateID int64, rate *float64) error {
	if rate != nil && (*rate <= 0 || *rate > 100) {
		return apperrors.ErrInvalidRate
	}
	if err := s.mustExist(ctx, affiliateID); err != nil {
		return err
	}
	if err := s.affiliateRepo.UpdateCustomRate(ctx, affiliateID, rate); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

func (s *AffiliateService) mustExist(ctx context.Context, affiliateID int64) error {
	if _, err := s.affiliateRepo.GetByID(ctx, affiliateID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrAffiliateNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// GetByID 获取推广员
func (s *AffiliateService) GetByID(ctx context.Context, affiliateID int64) (*models.Affiliate, error) {
	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return affiliate, nil
}

// GetByUserID 根据用户获取推广员
func (s *AffiliateService) GetByUserID(ctx context.Context, userID int64) (*models.Affiliate, error) {
	affiliate, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return affiliate, nil
}

// List 获取推广员列表
func (s *AffiliateService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Affiliate, int64, error) {
	return s.affiliateRepo.List(ctx, offset, limit, filters)
}

// Referral 推荐明细（转化 + 派生状态）
type Referral struct {
	Conversion *models.Conversion `json:"conversion"`
	Status     string             `json:"status"`
}

// ListReferrals 获取推广员的推荐明细
// 状态为派生值：无佣金且超出确认窗口的转化显示为已失效
func (s *AffiliateService) ListReferrals(ctx context.Context, affiliateID int64, offset, limit int) ([]*Referral, int64, error) {
	conversions, total, err := s.conversionRepo.GetByAffiliateID(ctx, affiliateID, offset, limit)
	if err != nil {
		return nil, 0, apperrors.ErrDatabaseError.WithError(err)
	}

	referrals := make([]*Referral, 0, len(conversions))
	for _, c := range conversions {
		status, err := s.referralStatus(ctx, c)
		if err != nil {
			return nil, 0, err
		}
		referrals = append(referrals, &Referral{Conversion: c, Status: status})
	}
	return referrals, total, nil
}

func (s *AffiliateService) referralStatus(ctx context.Context, c *models.Conversion) (string, error) {
	hasConfirmed, err := s.commissionRepo.ExistsByUserAndStatus(ctx, c.AffiliateID, c.UserID, models.CommissionStatusConfirmed)
	if err != nil {
		return "", apperrors.ErrDatabaseError.WithError(err)
	}
	if hasConfirmed {
		return models.ReferralStatusConfirmed, nil
	}
	hasWaiting, err := s.commissionRepo.ExistsByUserAndStatus(ctx, c.AffiliateID, c.UserID, models.CommissionStatusWaiting)
	if err != nil {
		return "", apperrors.ErrDatabaseError.WithError(err)
	}
	if hasWaiting {
		return models.ReferralStatusWaiting, nil
	}
	if s.window > 0 && time.Since(c.CreatedAt) > s.window {
		return models.ReferralStatusExpired, nil
	}
	return models.ReferralStatusPending, nil
}

// Stats 推广员业绩统计
type Stats struct {
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	TotalEarnings   float64 `json:"total_earnings"`
	TotalPaid       float64 `json:"total_paid"`
	WaitingAmount   float64 `json:"waiting_amount"`
	ConfirmedAmount float64 `json:"confirmed_amount"`
}

// GetStats 获取推广员业绩统计
func (s *AffiliateService) GetStats(ctx context.Context, affiliateID int64) (*Stats, error) {
	affiliate, err := s.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clickRepo.CountByAffiliateID(ctx, affiliateID, nil)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	conversions, err := s.conversionRepo.CountByAffiliateID(ctx, affiliateID, nil)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	commissionStats, err := s.commissionRepo.GetStatsByAffiliateID(ctx, affiliateID)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	return &Stats{
		Clicks:          clicks,
		Conversions:     conversions,
		TotalEarnings:   affiliate.TotalEarnings,
		TotalPaid:       affiliate.TotalPaid,
		WaitingAmount:   commissionStats["waiting_amount"].(float64),
		ConfirmedAmount: commissionStats["confirmed_amount"].(float64),
	}, nil
}
