// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// CommissionRepository 佣金仓储
type CommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓储
func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Create 创建佣金记录
func (r *CommissionRepository) Create(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

// GetByID 根据 ID 获取佣金记录
func (r *CommissionRepository) GetByID(ctx context.Context, id int64) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).First(&commission, id).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// GetByTypeAndReference 根据事件类型和引用 ID 获取佣金记录
// (type, reference_id) 上有唯一索引，用于合格事件去重
func (r *CommissionRepository) GetByTypeAndReference(ctx context.Context, commissionType, referenceID string) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).
		Where("type = ? AND reference_id = ?", commissionType, referenceID).
		First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// GetByAffiliateID 获取推广员的佣金记录列表
func (r *CommissionRepository) GetByAffiliateID(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.Commission, int64, error) {
	var commissions []*models.Commission
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Commission{}).Where("affiliate_id = ?", affiliateID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&commissions).Error; err != nil {
		return nil, 0, err
	}

	return commissions, total, nil
}

// ExistsQualifyingByUser 检查用户是否已有合格事件产生的佣金
func (r *CommissionRepository) ExistsQualifyingByUser(ctx context.Context, affiliateID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ? AND user_id = ? AND status IN ?", affiliateID, userID,
			[]string{models.CommissionStatusWaiting, models.CommissionStatusConfirmed}).
		Count(&count).Error
	return count > 0, err
}

// ExistsByUserAndStatus 检查用户在指定状态下是否存在佣金
func (r *CommissionRepository) ExistsByUserAndStatus(ctx context.Context, affiliateID, userID int64, status string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ? AND user_id = ? AND status = ?", affiliateID, userID, status).
		Count(&count).Error
	return count > 0, err
}

// List 获取佣金记录列表
func (r *CommissionRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Commission, int64, error) {
	var commissions []*models.Commission
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Commission{})

	// 应用过滤条件
	if affiliateID, ok := filters["affiliate_id"].(int64); ok && affiliateID > 0 {
		query = query.Where("affiliate_id = ?", affiliateID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if commissionType, ok := filters["type"].(string); ok && commissionType != "" {
		query = query.Where("type = ?", commissionType)
	}
	if startTime, ok := filters["start_time"].(time.Time); ok {
		query = query.Where("created_at >= ?", startTime)
	}
	if endTime, ok := filters["end_time"].(time.Time); ok {
		query = query.Where("created_at <= ?", endTime)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 查询列表
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&commissions).Error; err != nil {
		return nil, 0, err
	}

	return commissions, total, nil
}

// ListWaitingDue 列出确认窗口已结束的待确认佣金
// 窗口从父转化的创建时间起算，而非佣金自身的创建时间
func (r *CommissionRepository) ListWaitingDue(ctx context.Context, deadline time.Time, limit int) ([]*models.Commission, error) {
	var commissions []*models.Commission
	err := r.db.WithContext(ctx).
		Joins("JOIN conversions ON conversions.user_id = commissions.user_id AND conversions.affiliate_id = commissions.affiliate_id").
		Where("commissions.status = ? AND conversions.created_at < ?", models.CommissionStatusWaiting, deadline).
		Order("commissions.created_at ASC").
		Limit(limit).
		Find(&commissions).Error
	return commissions, err
}

// ListAvailable 列出推广员可结算的佣金（已确认且未分配），按创建时间升序
func (r *CommissionRepository) ListAvailable(ctx context.Context, affiliateID int64) ([]*models.Commission, error) {
	var commissions []*models.Commission
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND status = ? AND paid_in_withdrawal_id IS NULL",
			affiliateID, models.CommissionStatusConfirmed).
		Order("created_at ASC").
		Find(&commissions).Error
	return commissions, err
}

// GetByWithdrawalID 获取分配给指定提现单的佣金记录
func (r *CommissionRepository) GetByWithdrawalID(ctx context.Context, withdrawalID int64) ([]*models.Commission, error) {
	var commissions []*models.Commission
	err := r.db.WithContext(ctx).
		Where("paid_in_withdrawal_id = ?", withdrawalID).
		Order("id ASC").
		Find(&commissions).Error
	return commissions, err
}

// SumAvailable 统计推广员的可提现余额
func (r *CommissionRepository) SumAvailable(ctx context.Context, affiliateID int64) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ? AND status = ? AND paid_in_withdrawal_id IS NULL",
			affiliateID, models.CommissionStatusConfirmed).
		Scan(&sum).Error
	return sum, err
}

// SumByStatus 按状态统计推广员的佣金总额
func (r *CommissionRepository) SumByStatus(ctx context.Context, affiliateID int64, status string) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ? AND status = ?", affiliateID, status).
		Scan(&sum).Error
	return sum, err
}

// CountByStatus 按状态统计佣金记录数
func (r *CommissionRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetStatsByAffiliateID 获取推广员佣金统计
func (r *CommissionRepository) GetStatsByAffiliateID(ctx context.Context, affiliateID int64) (map[string]interface{}, error) {
	type Stats struct {
		TotalAmount     float64 `gorm:"column:total_amount"`
		WaitingAmount   float64 `gorm:"column:waiting_amount"`
		ConfirmedAmount float64 `gorm:"column:confirmed_amount"`
		PaidAmount      float64 `gorm:"column:paid_amount"`
		TotalCount      int64   `gorm:"column:total_count"`
	}

	var stats Stats
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Select(`
			COALESCE(SUM(amount), 0) as total_amount,
			COALESCE(SUM(CASE WHEN status = 'waiting' THEN amount ELSE 0 END), 0) as waiting_amount,
			COALESCE(SUM(CASE WHEN status = 'confirmed' AND paid_in_withdrawal_id IS NULL THEN amount ELSE 0 END), 0) as confirmed_amount,
			COALESCE(SUM(CASE WHEN paid_in_withdrawal_id IS NOT NULL THEN amount ELSE 0 END), 0) as paid_amount,
			COUNT(*) as total_count
		`).
		Where("affiliate_id = ?", affiliateID).
		Scan(&stats).Error

	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_amount":     stats.TotalAmount,
		"waiting_amount":   stats.WaitingAmount,
		"confirmed_amount": stats.ConfirmedAmount,
		"paid_amount":      stats.PaidAmount,
		"total_count":      stats.TotalCount,
	}, nil
}
