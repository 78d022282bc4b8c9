package attribution

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// LinkerService 转化绑定服务
// 将新注册用户绑定到推广员最近一条未绑定的点击上，
// 首次归因胜出：已归因用户不会产生第二条转化
type LinkerService struct {
	affiliateRepo  *repository.AffiliateRepository
	clickRepo      *repository.ClickRepository
	conversionRepo *repository.ConversionRepository
	db             *gorm.DB
	publisher      *notify.Publisher
	clickRetention time.Duration
}

// NewLinkerService 创建转化绑定服务
func NewLinkerService(
	affiliateRepo *repository.AffiliateRepository,
	clickRepo *repository.ClickRepository,
	conversionRepo *repository.ConversionRepository,
	db *gorm.DB,
	publisher *notify.Publisher,
	clickRetention time.Duration,
) *LinkerService {
	return &LinkerService{
		affiliateRepo:  affiliateRepo,
		clickRepo:      clickRepo,
		conversionRepo: conversionRepo,
		db:             db,
		publisher:      publisher,
		clickRetention: clickRetention,
	}
}

// LinkSignup 尝试把新用户归因到推广员
// 所有匹配失败均为静默 no-op（返回 nil, nil）：
// 用户可能自行填写了推广码但从未点击过追踪链接
func (s *LinkerService) LinkSignup(ctx context.Context, affiliateCode string, newUserID int64) (*models.Conversion, error) {
	affiliate, err := s.affiliateRepo.GetByCode(ctx, affiliateCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.GetMetrics().RecordConversion("unknown_code")
			return nil, nil
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if !affiliate.IsApproved() {
		metrics.GetMetrics().RecordConversion("not_approved")
		return nil, nil
	}

	// 用户已被归因：首次归因胜出
	attributed, err := s.conversionRepo.ExistsByUserID(ctx, newUserID)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if attributed {
		metrics.GetMetrics().RecordConversion("already_attributed")
		return nil, nil
	}

	click, err := s.clickRepo.GetLatestUnbound(ctx, affiliate.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.GetMetrics().RecordConversion("no_click")
			return nil, nil
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	// 保留期之外的点击视为失效，不再参与归因
	if s.clickRetention > 0 && time.Since(click.CreatedAt) > s.clickRetention {
		metrics.GetMetrics().RecordConversion("click_stale")
		return nil, nil
	}

	conversion := &models.Conversion{
		AffiliateID: affiliate.ID,
		UserID:      newUserID,
		ClickID:     click.ID,
		Type:        models.ConversionTypeSignup,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 条件绑定：仅当点击尚未绑定时生效，并发注册时先写者胜出
		result := tx.Model(&models.Click{}).
			Where("id = ? AND user_id IS NULL", click.ID).
			Updates(map[string]interface{}{
				"user_id":   newUserID,
				"converted": true,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errClickAlreadyBound
		}

		return tx.Create(conversion).Error
	})

	if err != nil {
		if errors.Is(err, errClickAlreadyBound) {
			// 绑定竞争失败，按 no-op 处理
			metrics.GetMetrics().RecordConversion("lost_race")
			return nil, nil
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("归因成功",
		logger.AffiliateID(affiliate.ID),
		logger.UserID(newUserID),
		logger.Int64("click_id", click.ID))
	metrics.GetMetrics().RecordConversion("linked")
	s.publisher.Publish(notify.TopicConversionCreated, affiliate.ID, conversion)

	return conversion, nil
}

// errClickAlreadyBound 点击已被并发绑定
var errClickAlreadyBound = errors.New("click already bound")

// GetReferralStatus 计算转化的派生状态
// 无佣金且超出确认窗口的转化在读取时视为已失效
func GetReferralStatus(conversion *models.Conversion, hasCommission, commissionTerminal bool, window time.Duration) string {
	if hasCommission {
		if commissionTerminal {
			return models.ReferralStatusConfirmed
		}
		return models.ReferralStatusWaiting
	}
	if time.Since(conversion.CreatedAt) > window {
		return models.ReferralStatusExpired
	}
	return models.ReferralStatusPending
}
