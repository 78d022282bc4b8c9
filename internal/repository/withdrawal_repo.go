// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// WithdrawalRepository 提现仓储
type WithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓储
func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create 创建提现申请
func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

// GetByID 根据 ID 获取提现申请
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := r.db.WithContext(ctx).First(&withdrawal, id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByIDWithRelations 根据 ID 获取提现申请（包含关联）
func (r *WithdrawalRepository) GetByIDWithRelations(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Preload("Affiliate").
		Preload("Operator").
		First(&withdrawal, id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByWithdrawalNo 根据提现单号获取申请
func (r *WithdrawalRepository) GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("withdrawal_no = ?", withdrawalNo).First(&withdrawal).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByAffiliateID 获取推广员的提现申请列表
func (r *WithdrawalRepository) GetByAffiliateID(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	var withdrawals []*models.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where("affiliate_id = ?", affiliateID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}

	return withdrawals, total, nil
}

// Transition 条件化状态流转，仅当当前状态匹配时生效
// 返回是否实际流转成功，并发操作时先写者胜出
func (r *WithdrawalRepository) Transition(ctx context.Context, id int64, fromStatus, toStatus string, operatorID *int64, reason *string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       toStatus,
		"processed_at": now,
	}
	if operatorID != nil {
		updates["operator_id"] = *operatorID
	}
	if reason != nil {
		updates["rejection_reason"] = *reason
	}
	if toStatus == models.WithdrawalStatusPaid {
		updates["paid_at"] = now
	}
	result := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// List 获取提现申请列表
func (r *WithdrawalRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.WithdrawalRequest, int64, error) {
	var withdrawals []*models.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{})

	// 应用过滤条件
	if affiliateID, ok := filters["affiliate_id"].(int64); ok && affiliateID > 0 {
		query = query.Where("affiliate_id = ?", affiliateID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if method, ok := filters["payment_method"].(string); ok && method != "" {
		query = query.Where("payment_method = ?", method)
	}
	if startTime, ok := filters["start_time"].(time.Time); ok {
		query = query.Where("requested_at >= ?", startTime)
	}
	if endTime, ok := filters["end_time"].(time.Time); ok {
		query = query.Where("requested_at <= ?", endTime)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 查询列表
	if err := query.
		Preload("Affiliate").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}

	return withdrawals, total, nil
}

// GetPendingList 获取待审核列表，按申请先后排序
func (r *WithdrawalRepository) GetPendingList(ctx context.Context, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	var withdrawals []*models.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where("status = ?", models.WithdrawalStatusPending)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Preload("Affiliate").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}

	return withdrawals, total, nil
}

// SumByAffiliateID 统计推广员的提现总额
func (r *WithdrawalRepository) SumByAffiliateID(ctx context.Context, affiliateID int64, status *string) (float64, error) {
	var sum float64
	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ?", affiliateID)

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	err := query.Scan(&sum).Error
	return sum, err
}

// CountByStatus 按状态统计提现申请数量
func (r *WithdrawalRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// CountInFlightByAffiliateID 统计推广员进行中的提现申请数量
func (r *WithdrawalRepository) CountInFlightByAffiliateID(ctx context.Context, affiliateID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("affiliate_id = ? AND status IN ?", affiliateID, []string{
			models.WithdrawalStatusPending,
			models.WithdrawalStatusApproved,
			models.WithdrawalStatusProcessing,
		}).
		Count(&count).Error
	return count, err
}
