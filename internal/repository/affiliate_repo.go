// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// AffiliateRepository 推广员仓储
type AffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广员仓储
func NewAffiliateRepository(db *gorm.DB) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

// Create 创建推广员
func (r *AffiliateRepository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

// GetByID 根据 ID 获取推广员
func (r *AffiliateRepository) GetByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).First(&affiliate, id).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetByUserID 根据用户 ID 获取推广员
func (r *AffiliateRepository) GetByUserID(ctx context.Context, userID int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetByCode 根据推广码获取推广员
func (r *AffiliateRepository) GetByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// ExistsCode 检查推广码是否已被占用
func (r *AffiliateRepository) ExistsCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Update 更新推广员
func (r *AffiliateRepository) Update(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Save(affiliate).Error
}

// UpdateStatus 更新推广员状态（带前置状态校验）
func (r *AffiliateRepository) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) (bool, error) {
	updates := map[string]interface{}{
		"status": toStatus,
	}
	if toStatus == models.AffiliateStatusApproved {
		updates["approved_at"] = time.Now()
	}
	result := r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// UpdateLevel 更新推广员等级
func (r *AffiliateRepository) UpdateLevel(ctx context.Context, id int64, level string) error {
	return r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ?", id).
		Update("level", level).Error
}

// UpdateCustomRate 更新自定义佣金比例（nil 表示回落到等级默认）
func (r *AffiliateRepository) UpdateCustomRate(ctx context.Context, id int64, rate *float64) error {
	return r.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ?", id).
		Update("custom_commission_rate", rate).Error
}

// List 获取推广员列表
func (r *AffiliateRepository) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Affiliate, int64, error) {
	var affiliates []*models.Affiliate
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Affiliate{})

	// 应用过滤条件
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if level, ok := filters["level"].(string); ok && level != "" {
		query = query.Where("level = ?", level)
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("code LIKE ? OR name LIKE ?", "%"+keyword+"%", "%"+keyword+"%")
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 查询列表
	if err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&affiliates).Error; err != nil {
		return nil, 0, err
	}

	return affiliates, total, nil
}

// CountByStatus 按状态统计推广员数量
func (r *AffiliateRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Affiliate{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
