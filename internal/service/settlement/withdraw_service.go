// Package settlement 提现结算服务
package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/cache"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/crypto"
	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/utils"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/notify"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// 默认最低提现金额
const DefaultMinWithdrawal = 50.00

// 提现单号前缀
const withdrawalNoPrefix = "W"

// WithdrawService 提现服务
// 正确性核心：分配必须原子且排他，一条佣金不能被两笔提现同时认领
type WithdrawService struct {
	withdrawalRepo *repository.WithdrawalRepository
	commissionRepo *repository.CommissionRepository
	affiliateRepo  *repository.AffiliateRepository
	db             *gorm.DB
	publisher      *notify.Publisher
	aes            *crypto.AES
	minWithdrawal  float64
}

// NewWithdrawService 创建提现服务
func NewWithdrawService(
	withdrawalRepo *repository.WithdrawalRepository,
	commissionRepo *repository.CommissionRepository,
	affiliateRepo *repository.AffiliateRepository,
	db *gorm.DB,
	publisher *notify.Publisher,
	aes *crypto.AES,
) *WithdrawService {
	return &WithdrawService{
		withdrawalRepo: withdrawalRepo,
		commissionRepo: commissionRepo,
		affiliateRepo:  affiliateRepo,
		db:             db,
		publisher:      publisher,
		aes:            aes,
		minWithdrawal:  DefaultMinWithdrawal,
	}
}

// SetMinWithdrawal 设置最低提现金额
func (s *WithdrawService) SetMinWithdrawal(min float64) {
	s.minWithdrawal = min
}

// RequestWithdrawal 申请提现
// 按创建时间从早到晚挑选已确认未分配的佣金，直到累计金额覆盖申请额；
// 佣金不可拆分，最终提现金额为所分配佣金之和（可能略高于申请额）
func (s *WithdrawService) RequestWithdrawal(ctx context.Context, affiliateID int64, amount float64, paymentMethod, paymentDetails string) (*models.WithdrawalRequest, error) {
	if paymentMethod != models.PaymentMethodPix && paymentMethod != models.PaymentMethodTransfer {
		return nil, apperrors.ErrInvalidPaymentMethod
	}
	if amount < s.minWithdrawal {
		return nil, apperrors.ErrBelowMinimumWithdrawal
	}

	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAffiliateNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if !affiliate.IsApproved() {
		return nil, apperrors.ErrAffiliateNotApproved
	}

	// 收款信息加密落库
	encrypted := paymentDetails
	if s.aes != nil {
		encrypted, err = s.aes.Encrypt(paymentDetails)
		if err != nil {
			return nil, apperrors.ErrInternalError.WithError(err)
		}
	}

	// 同一推广员的分配串行化，缩小数据库冲突窗口
	lockKey := cache.BuildKey(cache.KeyPrefixSettleLock, strconv.FormatInt(affiliateID, 10))
	locked, lockErr := cache.TryLock(ctx, lockKey, 10*time.Second)
	if lockErr == nil && !locked {
		return nil, apperrors.ErrConcurrentAllocationConflict
	}
	if lockErr == nil && locked {
		defer cache.Unlock(ctx, lockKey)
	}

	withdrawal := &models.WithdrawalRequest{
		WithdrawalNo:   utils.GenerateWithdrawalNo(withdrawalNoPrefix),
		AffiliateID:    affiliateID,
		Status:         models.WithdrawalStatusPending,
		PaymentMethod:  paymentMethod,
		PaymentDetails: encrypted,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 余额在事务内复核，关闭校验与分配之间的竞态窗口
		available, err := s.availableInTx(tx, affiliateID)
		if err != nil {
			return err
		}
		if available < amount {
			return apperrors.ErrInsufficientBalance
		}

		var candidates []*models.Commission
		if err := tx.
			Where("affiliate_id = ? AND status = ? AND paid_in_withdrawal_id IS NULL",
				affiliateID, models.CommissionStatusConfirmed).
			Order("created_at ASC").
			Find(&candidates).Error; err != nil {
			return err
		}

		var allocated float64
		var picked []*models.Commission
		for _, c := range candidates {
			picked = append(picked, c)
			allocated = utils.Round2(allocated + c.Amount)
			if allocated >= amount {
				break
			}
		}
		if allocated < amount {
			return apperrors.ErrInsufficientBalance
		}

		withdrawal.Amount = allocated
		if err := tx.Create(withdrawal).Error; err != nil {
			return err
		}

		// 条件更新逐条认领，任何一条已被并发认领即整体回滚
		for _, c := range picked {
			result := tx.Model(&models.Commission{}).
				Where("id = ? AND status = ? AND paid_in_withdrawal_id IS NULL",
					c.ID, models.CommissionStatusConfirmed).
				Update("paid_in_withdrawal_id", withdrawal.ID)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return apperrors.ErrConcurrentAllocationConflict
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("提现申请已受理",
		logger.AffiliateID(affiliateID),
		logger.WithdrawalNo(withdrawal.WithdrawalNo),
		logger.Amount(withdrawal.Amount))
	metrics.GetMetrics().RecordWithdrawal(models.WithdrawalStatusPending)
	s.publisher.Publish(notify.TopicWithdrawalChanged, affiliateID, withdrawal)

	return withdrawal, nil
}

// availableInTx 事务内计算可提现余额
func (s *WithdrawService) availableInTx(tx *gorm.DB, affiliateID int64) (float64, error) {
	var sum float64
	err := tx.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ? AND status = ? AND paid_in_withdrawal_id IS NULL",
			affiliateID, models.CommissionStatusConfirmed).
		Scan(&sum).Error
	return sum, err
}

// AdvanceStatus 推进提现状态
// 仅允许 pending→approved→processing→paid 与 pending|approved→rejected；
// rejected 释放已分配佣金，paid 完成收益与已付总额的簿记迁移
func (s *WithdrawService) AdvanceStatus(ctx context.Context, withdrawalID int64, newStatus string, operatorID *int64, reason *string) error {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrWithdrawalNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	if !models.CanTransition(withdrawal.Status, newStatus) {
		return apperrors.ErrIllegalTransition
	}

	fromStatus := withdrawal.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"status":       newStatus,
			"processed_at": now,
		}
		if operatorID != nil {
			updates["operator_id"] = *operatorID
		}
		if reason != nil {
			updates["rejection_reason"] = *reason
		}
		if newStatus == models.WithdrawalStatusPaid {
			updates["paid_at"] = now
		}

		// 条件更新：并发操作时只有一方的流转生效
		result := tx.Model(&models.WithdrawalRequest{}).
			Where("id = ? AND status = ?", withdrawalID, fromStatus).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrIllegalTransition
		}

		switch newStatus {
		case models.WithdrawalStatusRejected:
			// 释放分配，佣金回到可提现余额
			return tx.Model(&models.Commission{}).
				Where("paid_in_withdrawal_id = ?", withdrawalID).
				Update("paid_in_withdrawal_id", nil).Error

		case models.WithdrawalStatusPaid:
			// 簿记迁移：待提收益 → 已付总额，佣金本身保持 confirmed
			return tx.Model(&models.Affiliate{}).
				Where("id = ?", withdrawal.AffiliateID).
				Updates(map[string]interface{}{
					"total_paid":     gorm.Expr("total_paid + ?", withdrawal.Amount),
					"total_earnings": gorm.Expr("total_earnings - ?", withdrawal.Amount),
				}).Error
		}
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	logger.Info("提现状态流转",
		logger.WithdrawalNo(withdrawal.WithdrawalNo),
		logger.String("from", fromStatus),
		logger.String("to", newStatus))
	metrics.GetMetrics().RecordWithdrawal(newStatus)
	s.publisher.Publish(notify.TopicWithdrawalChanged, withdrawal.AffiliateID, map[string]interface{}{
		"withdrawal_id": withdrawalID,
		"status":        newStatus,
	})

	return nil
}

// GetAvailableBalance 查询推广员可提现余额
func (s *WithdrawService) GetAvailableBalance(ctx context.Context, affiliateID int64) (float64, error) {
	return s.commissionRepo.SumAvailable(ctx, affiliateID)
}

// GetByID 获取提现详情
func (s *WithdrawService) GetByID(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.withdrawalRepo.GetByIDWithRelations(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrWithdrawalNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return withdrawal, nil
}

// DecryptPaymentDetails 解密收款信息（仅财务审核时使用）
func (s *WithdrawService) DecryptPaymentDetails(withdrawal *models.WithdrawalRequest) (string, error) {
	if s.aes == nil {
		return withdrawal.PaymentDetails, nil
	}
	return s.aes.Decrypt(withdrawal.PaymentDetails)
}

// ListByAffiliate 获取推广员的提现记录
func (s *WithdrawService) ListByAffiliate(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.GetByAffiliateID(ctx, affiliateID, offset, limit)
}

// List 获取提现列表
func (s *WithdrawService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.List(ctx, offset, limit, filters)
}

// GetPendingList 获取待审核列表
func (s *WithdrawService) GetPendingList(ctx context.Context, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.GetPendingList(ctx, offset, limit)
}

// GetAllocations 获取提现单分配到的佣金记录
func (s *WithdrawService) GetAllocations(ctx context.Context, withdrawalID int64) ([]*models.Commission, error) {
	return s.commissionRepo.GetByWithdrawalID(ctx, withdrawalID)
}
